package posting_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/posting"
	"stockledger/internal/infrastructure/lock"
	"stockledger/internal/infrastructure/storage/memory"
)

// staleStore rejects the first failures decrements as if another writer had
// drained the batch.
type staleStore struct {
	ledger.Store
	failures int
	calls    int
}

func (s *staleStore) Decrement(ctx context.Context, entryID id.ID, amount decimal.Decimal) error {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return apperror.NewInsufficientBatchQuantity(entryID.String(), amount.String(), "0")
	}
	return s.Store.Decrement(ctx, entryID, amount)
}

type harness struct {
	store  *memory.Store
	ledger *staleStore
	engine *posting.Engine
	pair   ledger.Pair
	batch  id.ID
}

func newHarness(t *testing.T, failures int) *harness {
	t.Helper()
	store := memory.NewStore()
	stale := &staleStore{Store: memory.NewLedgerStore(store), failures: failures}
	h := &harness{
		store:  store,
		ledger: stale,
		engine: posting.NewEngine(stale, lock.NewKeyedMutex(100*time.Millisecond), store),
		pair:   ledger.Pair{WarehouseID: id.New(), MaterialID: id.New()},
	}

	entry := &ledger.Entry{
		WarehouseID:         h.pair.WarehouseID,
		MaterialID:          h.pair.MaterialID,
		SourceKind:          ledger.SourceStockIn,
		SourceTransactionID: id.New(),
		SourceLineID:        id.New(),
		TransactionDate:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Policy:              ledger.PolicyFIFO,
		Quantity:            decimal.NewFromInt(10),
		RemainingQuantity:   decimal.NewFromInt(10),
		UnitPrice:           decimal.NewFromInt(2),
		ConversionFactor:    decimal.NewFromInt(1),
	}
	require.NoError(t, h.engine.Execute(context.Background(), nil, func(ctx context.Context) error {
		return h.engine.Receive(ctx, entry)
	}))
	require.False(t, entry.CreatedAt.IsZero())
	h.batch = entry.ID
	return h
}

func (h *harness) request(qty int64) posting.ConsumeRequest {
	return posting.ConsumeRequest{
		Kind:          ledger.SourceStockOut,
		TransactionID: id.New(),
		LineID:        id.New(),
		Pair:          h.pair,
		Quantity:      decimal.NewFromInt(qty),
		Policy:        ledger.PolicyFIFO,
	}
}

func (h *harness) remaining(t *testing.T) decimal.Decimal {
	t.Helper()
	e, err := h.ledger.GetByID(context.Background(), h.batch)
	require.NoError(t, err)
	return e.RemainingQuantity
}

func TestConsume_RequiresLock(t *testing.T) {
	h := newHarness(t, 0)
	err := h.engine.Execute(context.Background(), nil, func(ctx context.Context) error {
		_, err := h.engine.Consume(ctx, h.request(1))
		return err
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInternal), "got %v", err)
	assert.True(t, h.remaining(t).Equal(decimal.NewFromInt(10)))
}

func TestConsume_RePlansOnceAfterStaleBatch(t *testing.T) {
	h := newHarness(t, 1)
	var mappings []ledger.Mapping
	err := h.engine.Execute(context.Background(), []ledger.Pair{h.pair}, func(ctx context.Context) error {
		var err error
		mappings, err = h.engine.Consume(ctx, h.request(4))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, h.ledger.calls)
	require.Len(t, mappings, 1)
	assert.True(t, mappings[0].QuantityUsed.Equal(decimal.NewFromInt(4)))
	assert.True(t, h.remaining(t).Equal(decimal.NewFromInt(6)))
}

func TestConsume_PersistentConflict(t *testing.T) {
	h := newHarness(t, 2)
	req := h.request(4)
	err := h.engine.Execute(context.Background(), []ledger.Pair{h.pair}, func(ctx context.Context) error {
		_, err := h.engine.Consume(ctx, req)
		return err
	})
	assert.True(t, apperror.IsConcurrentModification(err), "got %v", err)
	assert.Equal(t, 2, h.ledger.calls)
	assert.True(t, h.remaining(t).Equal(decimal.NewFromInt(10)))

	mappings, err := h.ledger.ListMappingsByTransaction(context.Background(), ledger.SourceStockOut, req.TransactionID)
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestConsume_InsufficientStock(t *testing.T) {
	h := newHarness(t, 0)
	err := h.engine.Execute(context.Background(), []ledger.Pair{h.pair}, func(ctx context.Context) error {
		_, err := h.engine.Consume(ctx, h.request(11))
		return err
	})
	assert.True(t, apperror.IsInsufficientStock(err), "got %v", err)
	assert.Zero(t, h.ledger.calls)
}

func TestExecute_RollsBackOnError(t *testing.T) {
	h := newHarness(t, 0)
	boom := apperror.NewBusinessRule("BOOM", "later step failed")
	err := h.engine.Execute(context.Background(), []ledger.Pair{h.pair}, func(ctx context.Context) error {
		if _, err := h.engine.Consume(ctx, h.request(3)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, h.remaining(t).Equal(decimal.NewFromInt(10)))
}

func TestExecute_Nests(t *testing.T) {
	h := newHarness(t, 0)
	err := h.engine.Execute(context.Background(), []ledger.Pair{h.pair}, func(ctx context.Context) error {
		assert.True(t, posting.HoldsLock(ctx, h.pair))
		// The inner call must not wait for the lock the outer call holds.
		return h.engine.Execute(ctx, []ledger.Pair{h.pair}, func(ctx context.Context) error {
			_, err := h.engine.Consume(ctx, h.request(2))
			return err
		})
	})
	require.NoError(t, err)
	assert.True(t, h.remaining(t).Equal(decimal.NewFromInt(8)))
}

func TestExecute_LockTimeout(t *testing.T) {
	h := newHarness(t, 0)
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = h.engine.Execute(context.Background(), []ledger.Pair{h.pair}, func(context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	err := h.engine.Execute(context.Background(), []ledger.Pair{h.pair}, func(context.Context) error {
		t.Fatal("ran without the lock")
		return nil
	})
	assert.True(t, apperror.IsConcurrentModification(err), "got %v", err)
}
