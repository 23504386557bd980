// Package keyedmutex provides a mutex per string key. Waiters for the
// same key are served in FIFO order; different keys never block each other.
package keyedmutex

import (
	"context"
	"sync"
)

// KeyedMutex serializes work per key. The zero value is ready to use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	held    bool
	waiters []chan struct{}
	refs    int // holder plus queued waiters
}

// New creates a KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock blocks until the lock for key is acquired or ctx is done.
// The returned unlock func is safe to call more than once.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++

	if !l.held {
		l.held = true
		k.mu.Unlock()
		return k.unlocker(key), nil
	}

	ready := make(chan struct{})
	l.waiters = append(l.waiters, ready)
	k.mu.Unlock()

	select {
	case <-ready:
		return k.unlocker(key), nil
	case <-ctx.Done():
	}

	k.mu.Lock()
	for i, w := range l.waiters {
		if w == ready {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			l.refs--
			if l.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	k.mu.Unlock()

	// Handed off concurrently with cancellation: pass it on.
	k.release(key)
	return nil, ctx.Err()
}

// RunExclusive runs fn while holding the lock for key. The lock is
// released even if fn panics.
func (k *KeyedMutex) RunExclusive(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	unlock, err := k.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	return fn(ctx)
}

// Do is RunExclusive for functions that return a value.
func Do[T any](ctx context.Context, k *KeyedMutex, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := k.RunExclusive(ctx, key, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func (k *KeyedMutex) unlocker(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { k.release(key) })
	}
}

// release hands the lock to the oldest waiter, or frees it.
func (k *KeyedMutex) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[key]
	if !ok {
		return
	}
	l.refs--

	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next)
		return
	}

	l.held = false
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
