package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/posting"
	"stockledger/pkg/logger"
)

var _ posting.Locker = (*Redis)(nil)

// retryInterval is the pause between attempts on a busy key.
const retryInterval = 25 * time.Millisecond

// Redis locks keys across server processes. A lock expires after ttl, so
// ttl must exceed the longest posting transaction.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedis creates a distributed locker on rdb.
func NewRedis(rdb redis.UniversalClient, ttl, wait time.Duration) *Redis {
	return &Redis{client: redislock.New(rdb), ttl: ttl, wait: wait}
}

// Acquire takes keys in order, each waiting at most the configured wait.
func (r *Redis) Acquire(ctx context.Context, keys []string) (func(), error) {
	held := make([]*redislock.Lock, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			// Release must not be cut short by a cancelled request.
			if err := held[i].Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Warn(ctx, "release redis lock", "key", held[i].Key(), "error", err)
			}
		}
	}

	for _, key := range keys {
		l, err := r.obtain(ctx, key)
		if err != nil {
			release()
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, apperror.NewConcurrentModification("ledger", key).WithCause(err)
			}
			return nil, err
		}
		held = append(held, l)
	}
	return release, nil
}

func (r *Redis) obtain(ctx context.Context, key string) (*redislock.Lock, error) {
	if r.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.wait)
		defer cancel()
	}
	l, err := r.client.Obtain(ctx, key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(retryInterval),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, redislock.ErrNotObtained
		}
		return nil, err
	}
	return l, nil
}
