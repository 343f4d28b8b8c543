package memory

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

var _ ledger.Store = (*LedgerStore)(nil)

// LedgerStore is the arena-backed ledger.Store.
type LedgerStore struct {
	store *Store
}

// NewLedgerStore creates a ledger store on s.
func NewLedgerStore(s *Store) *LedgerStore {
	return &LedgerStore{store: s}
}

func (l *LedgerStore) ListOrdered(ctx context.Context, pair ledger.Pair, policy ledger.Policy) ([]ledger.Entry, error) {
	var out []ledger.Entry
	err := l.store.read(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.Pair() == pair && e.IsOpen() {
				out = append(out, e)
			}
		}
		return nil
	})
	policy.Sort(out)
	return out, err
}

func (l *LedgerStore) SumRemaining(ctx context.Context, pair ledger.Pair) (decimal.Decimal, error) {
	total := decimal.Zero
	err := l.store.read(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.Pair() == pair {
				total = total.Add(e.RemainingQuantity)
			}
		}
		return nil
	})
	return total, err
}

func (l *LedgerStore) GetByID(ctx context.Context, entryID id.ID) (*ledger.Entry, error) {
	var out *ledger.Entry
	err := l.store.read(ctx, func(st *state) error {
		e, ok := st.entries[entryID]
		if !ok {
			return apperror.NewNotFound("ledger entry", entryID.String())
		}
		out = &e
		return nil
	})
	return out, err
}

func (l *LedgerStore) Insert(ctx context.Context, entry *ledger.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	return l.store.write(ctx, func(st *state) error {
		if _, exists := st.entries[entry.ID]; exists {
			return apperror.NewConflict("ledger entry already exists").WithDetail("ledgerEntryId", entry.ID.String())
		}
		st.entries[entry.ID] = *entry
		return nil
	})
}

// Decrement applies the write-time guard remaining >= amount.
func (l *LedgerStore) Decrement(ctx context.Context, entryID id.ID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperror.NewInvalidArgument("decrement must be positive").WithDetail("quantity", amount.String())
	}
	return l.store.write(ctx, func(st *state) error {
		e, ok := st.entries[entryID]
		if !ok {
			return apperror.NewNotFound("ledger entry", entryID.String())
		}
		if e.RemainingQuantity.LessThan(amount) {
			return apperror.NewInsufficientBatchQuantity(entryID.String(), amount.String(), e.RemainingQuantity.String())
		}
		e.RemainingQuantity = e.RemainingQuantity.Sub(amount)
		st.entries[entryID] = e
		return nil
	})
}

func (l *LedgerStore) ListBySource(ctx context.Context, kind ledger.SourceKind, transactionID id.ID) ([]ledger.Entry, error) {
	var out []ledger.Entry
	err := l.store.read(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.SourceKind == kind && e.SourceTransactionID == transactionID {
				out = append(out, e)
			}
		}
		return nil
	})
	ledger.PolicyFIFO.Sort(out)
	return out, err
}

func (l *LedgerStore) ListOpenByWarehouse(ctx context.Context, warehouseID id.ID) ([]ledger.Entry, error) {
	var out []ledger.Entry
	err := l.store.read(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.WarehouseID == warehouseID && e.IsOpen() {
				out = append(out, e)
			}
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b ledger.Entry) int {
		if c := id.Compare(a.MaterialID, b.MaterialID); c != 0 {
			return c
		}
		switch {
		case ledger.PolicyFIFO.Before(&a, &b):
			return -1
		case ledger.PolicyFIFO.Before(&b, &a):
			return 1
		}
		return 0
	})
	return out, err
}

func (l *LedgerStore) SaveMappings(ctx context.Context, mappings []ledger.Mapping) error {
	if len(mappings) == 0 {
		return nil
	}
	return l.store.write(ctx, func(st *state) error {
		for _, m := range mappings {
			if id.IsNil(m.ID) {
				m.ID = id.New()
			}
			st.mappings = append(st.mappings, m)
		}
		return nil
	})
}

func (l *LedgerStore) ListMappingsByTransaction(ctx context.Context, kind ledger.SourceKind, transactionID id.ID) ([]ledger.Mapping, error) {
	var out []ledger.Mapping
	err := l.store.read(ctx, func(st *state) error {
		for _, m := range st.mappings {
			if m.Kind == kind && m.TransactionID == transactionID {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

func (l *LedgerStore) ListMappingsByEntry(ctx context.Context, entryID id.ID) ([]ledger.Mapping, error) {
	var out []ledger.Mapping
	err := l.store.read(ctx, func(st *state) error {
		for _, m := range st.mappings {
			if m.LedgerEntryID == entryID {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}
