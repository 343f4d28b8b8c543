package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

type countingCatalog struct {
	calls  atomic.Int32
	factor decimal.Decimal
	base   id.ID
	delay  time.Duration
	fail   bool
}

func (c *countingCatalog) GetConversionFactor(context.Context, id.ID, id.ID) (decimal.Decimal, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	if c.fail {
		return decimal.Zero, apperror.NewNotFound("unit conversion", "x")
	}
	return c.factor, nil
}

func (c *countingCatalog) GetBaseUnit(context.Context, id.ID) (id.ID, error) {
	c.calls.Add(1)
	return c.base, nil
}

func TestUnitCacheHitsAndExpiry(t *testing.T) {
	next := &countingCatalog{factor: decimal.NewFromInt(12), base: id.New()}
	c := NewUnitCache(next, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	unitID, materialID := id.New(), id.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f, err := c.GetConversionFactor(ctx, unitID, materialID)
		require.NoError(t, err)
		assert.True(t, f.Equal(decimal.NewFromInt(12)))
	}
	assert.Equal(t, int32(1), next.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err := c.GetConversionFactor(ctx, unitID, materialID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())

	base, err := c.GetBaseUnit(ctx, materialID)
	require.NoError(t, err)
	assert.Equal(t, next.base, base)
	c.InvalidateMaterial(materialID)
	_, err = c.GetConversionFactor(ctx, unitID, materialID)
	require.NoError(t, err)
	_, err = c.GetBaseUnit(ctx, materialID)
	require.NoError(t, err)
	assert.Equal(t, int32(5), next.calls.Load())
}

func TestUnitCacheSharesConcurrentMisses(t *testing.T) {
	next := &countingCatalog{factor: decimal.NewFromInt(3), delay: 20 * time.Millisecond}
	c := NewUnitCache(next, time.Minute)
	unitID, materialID := id.New(), id.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetConversionFactor(context.Background(), unitID, materialID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestUnitCacheDoesNotCacheErrors(t *testing.T) {
	next := &countingCatalog{fail: true}
	c := NewUnitCache(next, time.Minute)
	unitID, materialID := id.New(), id.New()

	_, err := c.GetConversionFactor(context.Background(), unitID, materialID)
	assert.True(t, apperror.IsNotFound(err))
	_, err = c.GetConversionFactor(context.Background(), unitID, materialID)
	assert.Error(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}
