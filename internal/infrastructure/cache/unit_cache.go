// Package cache keeps unit conversion factors in memory in front of the
// unit catalog.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

var _ ledger.UnitCatalog = (*UnitCache)(nil)

type factorEntry struct {
	factor    decimal.Decimal
	expiresAt time.Time
}

type baseEntry struct {
	unitID    id.ID
	expiresAt time.Time
}

// UnitCache memoizes catalog lookups for ttl. Concurrent misses on the same
// key share one catalog call. Errors are not cached.
type UnitCache struct {
	next ledger.UnitCatalog
	ttl  time.Duration
	now  func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	factors map[string]factorEntry
	bases   map[id.ID]baseEntry
}

// NewUnitCache wraps next.
func NewUnitCache(next ledger.UnitCatalog, ttl time.Duration) *UnitCache {
	return &UnitCache{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		factors: make(map[string]factorEntry),
		bases:   make(map[id.ID]baseEntry),
	}
}

func factorKey(unitID, materialID id.ID) string {
	return materialID.String() + "/" + unitID.String()
}

func (c *UnitCache) GetConversionFactor(ctx context.Context, unitID, materialID id.ID) (decimal.Decimal, error) {
	key := factorKey(unitID, materialID)

	c.mu.RLock()
	e, ok := c.factors[key]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiresAt) {
		return e.factor, nil
	}

	v, err, _ := c.group.Do("f:"+key, func() (any, error) {
		c.mu.RLock()
		e, ok := c.factors[key]
		c.mu.RUnlock()
		if ok && c.now().Before(e.expiresAt) {
			return e.factor, nil
		}
		f, err := c.next.GetConversionFactor(ctx, unitID, materialID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.factors[key] = factorEntry{factor: f, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func (c *UnitCache) GetBaseUnit(ctx context.Context, materialID id.ID) (id.ID, error) {
	c.mu.RLock()
	e, ok := c.bases[materialID]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiresAt) {
		return e.unitID, nil
	}

	v, err, _ := c.group.Do("b:"+materialID.String(), func() (any, error) {
		c.mu.RLock()
		e, ok := c.bases[materialID]
		c.mu.RUnlock()
		if ok && c.now().Before(e.expiresAt) {
			return e.unitID, nil
		}
		unitID, err := c.next.GetBaseUnit(ctx, materialID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.bases[materialID] = baseEntry{unitID: unitID, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return unitID, nil
	})
	if err != nil {
		return id.Nil(), err
	}
	return v.(id.ID), nil
}

// InvalidateMaterial drops every cached value of one material.
func (c *UnitCache) InvalidateMaterial(materialID id.ID) {
	prefix := materialID.String() + "/"
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bases, materialID)
	for key := range c.factors {
		if strings.HasPrefix(key, prefix) {
			delete(c.factors, key)
		}
	}
}

// InvalidateAll empties the cache.
func (c *UnitCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.factors)
	clear(c.bases)
}
