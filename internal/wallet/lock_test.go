package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOLock_ArrivalOrder(t *testing.T) {
	var l fifoLock
	ctx := context.Background()

	first, err := l.acquire(ctx)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.with(ctx, func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		// Let goroutine i queue before i+1.
		time.Sleep(5 * time.Millisecond)
	}

	first()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFIFOLock_CancelledWaiterPassesOn(t *testing.T) {
	var l fifoLock

	held, err := l.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	done := make(chan struct{})
	go func() {
		_ = l.with(context.Background(), func() error { return nil })
		close(done)
	}()

	held()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock was never handed past the cancelled waiter")
	}
}

func TestFIFOLock_TimedOutWaiterHandsOff(t *testing.T) {
	var l fifoLock

	held, err := l.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	release, err := l.acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, release)

	held()

	acquired := make(chan struct{})
	go func() {
		_ = l.with(context.Background(), func() error { return nil })
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was never handed past the timed-out waiter")
	}
}

func TestFIFOLock_ReleaseIsIdempotent(t *testing.T) {
	var l fifoLock
	release, err := l.acquire(context.Background())
	require.NoError(t, err)
	release()
	release()

	require.NoError(t, l.with(context.Background(), func() error { return nil }))
}
