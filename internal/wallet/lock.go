package wallet

import (
	"context"
	"sync"
)

// fifoLock hands the state lock to waiters in arrival order. Each holder
// closes its own channel on release, which wakes exactly the next waiter.
type fifoLock struct {
	mu   sync.Mutex
	tail chan struct{}
}

// acquire blocks until every earlier holder has released. If ctx ends first
// the caller's slot is still passed on once its predecessor releases.
func (l *fifoLock) acquire(ctx context.Context) (release func(), err error) {
	next := make(chan struct{})

	l.mu.Lock()
	prev := l.tail
	l.tail = next
	l.mu.Unlock()

	var once sync.Once
	rel := func() { once.Do(func() { close(next) }) }

	if prev == nil {
		return rel, nil
	}
	select {
	case <-prev:
		return rel, nil
	case <-ctx.Done():
		go func() {
			<-prev
			rel()
		}()
		return nil, ctx.Err()
	}
}

// with runs fn while holding the lock.
func (l *fifoLock) with(ctx context.Context, fn func() error) error {
	release, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
