package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/posting"
)

func lockers(t *testing.T) map[string]posting.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]posting.Locker{
		"local": NewKeyedMutex(100 * time.Millisecond),
		"redis": NewRedis(rdb, 5*time.Second, 100*time.Millisecond),
	}
}

func TestLockerExcludes(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			release, err := l.Acquire(ctx, []string{"ledger:a:b"})
			require.NoError(t, err)

			_, err = l.Acquire(ctx, []string{"ledger:a:b"})
			require.Error(t, err)
			assert.True(t, apperror.IsConcurrentModification(err))

			release()
			release2, err := l.Acquire(ctx, []string{"ledger:a:b"})
			require.NoError(t, err)
			release2()
		})
	}
}

func TestLockerReleasesPartialAcquire(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			busy, err := l.Acquire(ctx, []string{"k2"})
			require.NoError(t, err)

			_, err = l.Acquire(ctx, []string{"k1", "k2"})
			require.Error(t, err)

			// k1 must have been given back.
			release, err := l.Acquire(ctx, []string{"k1"})
			require.NoError(t, err)
			release()
			busy()
		})
	}
}

func TestLockerSerializesHolders(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			var inside, maxInside int32
			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					var release func()
					var err error
					for {
						release, err = l.Acquire(ctx, []string{"shared"})
						if err == nil || ctx.Err() != nil {
							break
						}
					}
					if !assert.NoError(t, err) {
						return
					}
					n := atomic.AddInt32(&inside, 1)
					for {
						m := atomic.LoadInt32(&maxInside)
						if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					atomic.AddInt32(&inside, -1)
					release()
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), maxInside)
		})
	}
}

func TestKeyedMutexDropsIdleKeys(t *testing.T) {
	m := NewKeyedMutex(20 * time.Millisecond)
	ctx := context.Background()

	release, err := m.Acquire(ctx, []string{"ledger:w1:m1", "ledger:w1:m2"})
	require.NoError(t, err)
	assert.Equal(t, 2, m.size())

	// A waiter that times out gives its reference back.
	_, err = m.Acquire(ctx, []string{"ledger:w1:m0", "ledger:w1:m2"})
	require.Error(t, err)
	assert.Equal(t, 2, m.size())

	release()
	assert.Equal(t, 0, m.size())

	for i := 0; i < 100; i++ {
		r, err := m.Acquire(ctx, []string{"ledger:w2:m" + string(rune('a'+i%26))})
		require.NoError(t, err)
		r()
	}
	assert.Equal(t, 0, m.size())
}
