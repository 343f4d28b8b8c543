package posting

import (
	"context"
	"slices"

	"stockledger/internal/domain/ledger"
)

// Locker grants exclusive, named locks. Implementations must acquire keys in
// the order given and release every key already taken when one fails.
type Locker interface {
	Acquire(ctx context.Context, keys []string) (release func(), err error)
}

type heldLocksKey struct{}

// lockKeys returns the sorted, deduplicated lock keys of pairs that ctx does
// not already hold. A fixed order across callers rules out deadlocks.
func lockKeys(ctx context.Context, pairs []ledger.Pair) []string {
	held := heldLocks(ctx)
	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		k := p.LockKey()
		if _, ok := held[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

func heldLocks(ctx context.Context) map[string]struct{} {
	if m, ok := ctx.Value(heldLocksKey{}).(map[string]struct{}); ok {
		return m
	}
	return nil
}

func withHeldLocks(ctx context.Context, keys []string) context.Context {
	prev := heldLocks(ctx)
	m := make(map[string]struct{}, len(prev)+len(keys))
	for k := range prev {
		m[k] = struct{}{}
	}
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return context.WithValue(ctx, heldLocksKey{}, m)
}

// HoldsLock reports whether ctx runs under the allocation lock of pair.
func HoldsLock(ctx context.Context, pair ledger.Pair) bool {
	_, ok := heldLocks(ctx)[pair.LockKey()]
	return ok
}
