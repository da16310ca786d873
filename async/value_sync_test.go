package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSyncProcessesValue(t *testing.T) {
	var mu sync.Mutex
	var processed []int

	s := NewValueSync(func(ctx context.Context, v int) error {
		mu.Lock()
		processed = append(processed, v)
		mu.Unlock()
		return nil
	}, BackoffOptions{Base: time.Millisecond})
	defer s.Stop()

	require.NoError(t, s.SetValueAndAwait(context.Background(), 42))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{42}, processed)
}

func TestValueSyncLastWriteWins(t *testing.T) {
	var mu sync.Mutex
	var processed []int
	started := make(chan struct{})
	release := make(chan struct{})
	first := true

	s := NewValueSync(func(ctx context.Context, v int) error {
		mu.Lock()
		processed = append(processed, v)
		blockHere := first
		first = false
		mu.Unlock()
		if blockHere {
			close(started)
			<-release
		}
		return nil
	}, BackoffOptions{Base: time.Millisecond})
	defer s.Stop()

	s.SetValue(1)
	<-started

	// Values superseded while the first run is in flight are dropped;
	// only the latest survives
	s.SetValue(2)
	s.SetValue(3)
	close(release)

	require.NoError(t, s.AwaitQueue(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 3}, processed)
}

func TestValueSyncStopFlushesWaiters(t *testing.T) {
	s := NewValueSync(func(ctx context.Context, v int) error {
		<-ctx.Done()
		return ctx.Err()
	}, BackoffOptions{Base: time.Millisecond})

	done := make(chan error, 1)
	go func() {
		done <- s.SetValueAndAwait(context.Background(), 1)
	}()

	time.Sleep(10 * time.Millisecond)
	s.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by Stop")
	}

	// Values set after stop are discarded
	s.SetValue(2)
	require.NoError(t, s.SetValueAndAwait(context.Background(), 3))
}
