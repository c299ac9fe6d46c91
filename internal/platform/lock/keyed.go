// Package lock provides per-key mutual exclusion whose acquisition respects a
// context deadline.
package lock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperror"
)

type slot struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex serialises work per key (one doctor queue per key). Slots are
// reference counted and dropped once nobody holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*slot
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[uuid.UUID]*slot)}
}

// Lock blocks until key is free or ctx is done. On success the returned
// function releases the lock and is safe to call more than once.
func (k *KeyedMutex) Lock(ctx context.Context, key uuid.UUID) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, s)
		return nil, apperror.Timeout("lock.acquire", ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.release(key, s)
		})
	}, nil
}

func (k *KeyedMutex) release(key uuid.UUID, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
