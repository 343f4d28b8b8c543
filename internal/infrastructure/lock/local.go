// Package lock implements posting.Locker in process and on Redis.
package lock

import (
	"context"
	"sync"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/posting"
)

var _ posting.Locker = (*KeyedMutex)(nil)

// KeyedMutex is an in-process lock per key. Use it with a single server
// process or with the memory driver. A key's slot lives only while some
// caller holds or waits for it.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates a locker. wait bounds how long Acquire blocks per
// key; zero waits until ctx is done.
func NewKeyedMutex(wait time.Duration) *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*slot), wait: wait}
}

func (m *KeyedMutex) ref(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.locks[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.locks[key] = s
	}
	s.refs++
	return s
}

func (m *KeyedMutex) unref(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.locks, key)
	}
}

// Acquire takes keys in order.
func (m *KeyedMutex) Acquire(ctx context.Context, keys []string) (func(), error) {
	taken := make([]string, 0, len(keys))
	slots := make([]*slot, 0, len(keys))
	release := func() {
		for i := len(slots) - 1; i >= 0; i-- {
			<-slots[i].ch
			m.unref(taken[i], slots[i])
		}
	}

	for _, key := range keys {
		s := m.ref(key)
		if err := m.lockOne(ctx, s.ch); err != nil {
			m.unref(key, s)
			release()
			return nil, apperror.NewConcurrentModification("ledger", key).WithCause(err)
		}
		taken = append(taken, key)
		slots = append(slots, s)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// size reports how many keys currently have a slot.
func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *KeyedMutex) lockOne(ctx context.Context, ch chan struct{}) error {
	if m.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.wait)
		defer cancel()
	}
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
