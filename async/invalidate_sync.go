package async

import (
	"context"
	"sync"
)

// InvalidateSync wraps an async command with coalescing-retry semantics:
// at most one execution of the command is in flight at any time, and any
// number of Invalidate calls arriving during a run collapse into exactly
// one follow-up run. Command failures are retried transparently under
// the backoff policy; the state machine only sees "one logical run".
//
// States: idle -> running -> (idle | running with follow-up pending) -> idle.
// Once stopped no transition is possible.
type InvalidateSync struct {
	command func(context.Context) error
	opts    BackoffOptions

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	pending bool
	stopped bool
	waiters []chan struct{}
}

// NewInvalidateSync creates an InvalidateSync around command. The command
// must be safe to call repeatedly; it receives a context that is
// cancelled when Stop is called.
func NewInvalidateSync(command func(context.Context) error, opts BackoffOptions) *InvalidateSync {
	ctx, cancel := context.WithCancel(context.Background())
	return &InvalidateSync{
		command: command,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Invalidate marks work as pending. If no run is in flight one starts
// immediately; otherwise a single follow-up run is scheduled no matter
// how many times Invalidate is called meanwhile.
func (s *InvalidateSync) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked()
}

func (s *InvalidateSync) invalidateLocked() {
	if s.stopped {
		return
	}
	if s.running {
		s.pending = true
		return
	}
	s.running = true
	go s.run()
}

// InvalidateAndAwait invalidates and blocks until the run scheduled as a
// result has completed, or ctx is cancelled
func (s *InvalidateSync) InvalidateAndAwait(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	waiter := make(chan struct{})
	s.waiters = append(s.waiters, waiter)
	s.invalidateLocked()
	s.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitQueue resolves immediately when idle, otherwise waits for all
// currently scheduled work (including a pending follow-up run) to finish
func (s *InvalidateSync) AwaitQueue(ctx context.Context) error {
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
// inert. Idempotent. A request already sent by the command is not
// aborted, but no further run will be scheduled.
func (s *InvalidateSync) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.pending = false
	s.cancel()
	s.flushWaitersLocked()
}

func (s *InvalidateSync) flushWaitersLocked() {
	for _, waiter := range s.waiters {
		close(waiter)
	}
	s.waiters = nil
}

func (s *InvalidateSync) run() {
	for {
		// Retry only returns early when the context is cancelled by Stop
		_ = Retry(s.ctx, s.opts, s.command)

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		if s.pending {
			s.pending = false
			s.mu.Unlock()
			continue
		}
		s.running = false
		s.flushWaitersLocked()
		s.mu.Unlock()
		return
	}
}
