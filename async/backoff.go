package async

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default retry policy for network operations
const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// BackoffOptions configures the exponential retry policy. Zero values
// fall back to the defaults.
type BackoffOptions struct {
	Base time.Duration
	Max  time.Duration
}

func (o BackoffOptions) withDefaults() BackoffOptions {
	if o.Base <= 0 {
		o.Base = DefaultBackoffBase
	}
	if o.Max <= 0 {
		o.Max = DefaultBackoffMax
	}
	return o
}

func (o BackoffOptions) policy(ctx context.Context) backoff.BackOffContext {
	o = o.withDefaults()
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.Base
	policy.MaxInterval = o.Max
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0 // retry forever, the caller cancels via ctx
	return backoff.WithContext(policy, ctx)
}

// Retry runs fn until it succeeds, sleeping with exponential backoff
// between attempts. There is no attempt limit: failed syncs keep
// retrying until the context is cancelled, which is the only way this
// returns a non-nil error.
func Retry(ctx context.Context, opts BackoffOptions, fn func(context.Context) error) error {
	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return fn(ctx)
	}, opts.policy(ctx))
}

// RetryValue is Retry for operations that produce a value
func RetryValue[T any](ctx context.Context, opts BackoffOptions, fn func(context.Context) (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		return fn(ctx)
	}, opts.policy(ctx))
}
