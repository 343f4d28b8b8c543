package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/core/id"
)

// DefaultLockSet is the Redis set the workflow engine adds finalized
// transaction ids to.
const DefaultLockSet = "stockledger:workflow:locked"

// RedisRegistry reads finalized transactions from a Redis set.
type RedisRegistry struct {
	rdb redis.UniversalClient
	key string
}

var _ LockRegistry = (*RedisRegistry)(nil)

// NewRedisRegistry creates a registry on the set key (DefaultLockSet when empty).
func NewRedisRegistry(rdb redis.UniversalClient, key string) *RedisRegistry {
	if key == "" {
		key = DefaultLockSet
	}
	return &RedisRegistry{rdb: rdb, key: key}
}

func (r *RedisRegistry) IsLocked(ctx context.Context, transactionID id.ID) (bool, error) {
	ok, err := r.rdb.SIsMember(ctx, r.key, transactionID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("workflow lock lookup: %w", err)
	}
	return ok, nil
}

// Lock marks a transaction as finalized.
func (r *RedisRegistry) Lock(ctx context.Context, transactionID id.ID) error {
	return r.rdb.SAdd(ctx, r.key, transactionID.String()).Err()
}

// Unlock removes the mark.
func (r *RedisRegistry) Unlock(ctx context.Context, transactionID id.ID) error {
	return r.rdb.SRem(ctx, r.key, transactionID.String()).Err()
}

// MemoryRegistry is an in-process registry.
type MemoryRegistry struct {
	mu     sync.RWMutex
	locked map[id.ID]struct{}
}

var _ LockRegistry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{locked: make(map[id.ID]struct{})}
}

func (r *MemoryRegistry) IsLocked(_ context.Context, transactionID id.ID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.locked[transactionID]
	return ok, nil
}

func (r *MemoryRegistry) Lock(_ context.Context, transactionID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked[transactionID] = struct{}{}
	return nil
}

func (r *MemoryRegistry) Unlock(_ context.Context, transactionID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locked, transactionID)
	return nil
}
