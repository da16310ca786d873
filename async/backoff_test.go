package async

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	var stamps []time.Time

	err := Retry(context.Background(), BackoffOptions{Base: 10 * time.Millisecond}, func(ctx context.Context) error {
		attempts++
		stamps = append(stamps, time.Now())
		if attempts < 3 {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)

	// Delays between attempts must not decrease
	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	assert.GreaterOrEqual(t, second, first)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := Retry(ctx, BackoffOptions{Base: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return assert.AnError
	})
	require.Error(t, err)
	assert.LessOrEqual(t, attempts, 3)
}

func TestRetryValueReturnsResult(t *testing.T) {
	attempts := 0
	got, err := RetryValue(context.Background(), BackoffOptions{Base: time.Millisecond}, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", assert.AnError
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 2, attempts)
}

func TestBackoffOptionsDefaults(t *testing.T) {
	opts := BackoffOptions{}.withDefaults()
	assert.Equal(t, DefaultBackoffBase, opts.Base)
	assert.Equal(t, DefaultBackoffMax, opts.Max)

	custom := BackoffOptions{Base: time.Second, Max: 2 * time.Second}.withDefaults()
	assert.Equal(t, time.Second, custom.Base)
	assert.Equal(t, 2*time.Second, custom.Max)
}
