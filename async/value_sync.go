package async

import (
	"context"
	"sync"
)

// ValueSync is the value-carrying variant of InvalidateSync: SetValue
// always processes the most recently set value, dropping superseded
// intermediate values when they arrive faster than the command can run
// (last-write-wins under backpressure). Used for draft saves, settings
// pushes and other "only the latest matters" writes.
type ValueSync[T any] struct {
	command func(context.Context, T) error
	opts    BackoffOptions

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	value    T
	hasValue bool
	running  bool
	stopped  bool
	waiters  []chan struct{}
}

// NewValueSync creates a ValueSync around command
func NewValueSync[T any](command func(context.Context, T) error, opts BackoffOptions) *ValueSync[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &ValueSync[T]{
		command: command,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetValue records v as the latest value and schedules processing.
// Values set while a run is in flight replace each other; only the last
// one is guaranteed to be processed.
func (s *ValueSync[T]) SetValue(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setValueLocked(v)
}

func (s *ValueSync[T]) setValueLocked(v T) {
	if s.stopped {
		return
	}
	s.value = v
	s.hasValue = true
	if !s.running {
		s.running = true
		go s.run()
	}
}

// SetValueAndAwait sets v and blocks until the queue drains (the run
// that processes v, or a later value superseding it, has completed)
func (s *ValueSync[T]) SetValueAndAwait(ctx context.Context, v T) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	waiter := make(chan struct{})
	s.waiters = append(s.waiters, waiter)
	s.setValueLocked(v)
	s.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitQueue resolves immediately when idle, otherwise waits for all
// currently scheduled work to finish
func (s *ValueSync[T]) AwaitQueue(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped || !s.running {
		s.mu.Unlock()
		return nil
	}
	waiter := make(chan struct{})
	s.waiters = append(s.waiters, waiter)
	s.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop flushes all pending waiters and marks the instance permanently
// inert. Idempotent.
func (s *ValueSync[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.hasValue = false
	s.cancel()
	for _, waiter := range s.waiters {
		close(waiter)
	}
	s.waiters = nil
}

func (s *ValueSync[T]) run() {
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		if !s.hasValue {
			s.running = false
			for _, waiter := range s.waiters {
				close(waiter)
			}
			s.waiters = nil
			s.mu.Unlock()
			return
		}
		value := s.value
		s.hasValue = false
		s.mu.Unlock()

		_ = Retry(s.ctx, s.opts, func(ctx context.Context) error {
			return s.command(ctx, value)
		})
	}
}
