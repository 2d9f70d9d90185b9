package submit

import (
	"context"
	"sync"
)

type lockKey struct {
	respondent int64
	version    int64
}

// keyedMutex serializes work per (respondent, version). Idle entries are
// dropped once the last holder or waiter is done.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[lockKey]*entry
}

type entry struct {
	ch   chan struct{} // buffered(1): a token in the channel means held
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[lockKey]*entry)}
}

// Lock blocks until the key is free or ctx is done.
func (k *keyedMutex) Lock(ctx context.Context, key lockKey) (unlock func(), err error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(key, e)
		})
	}, nil
}

func (k *keyedMutex) release(key lockKey, e *entry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// size is the number of keys currently held or awaited.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
