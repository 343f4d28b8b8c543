// Package memory is the in-process storage driver. All repositories share
// one arena; a transaction works on a copy of the arena and swaps it in on
// commit, so an error anywhere discards every change the transaction made.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/documents/adjustment"
	"stockledger/internal/domain/documents/inventory_count"
	"stockledger/internal/domain/documents/stock_in"
	"stockledger/internal/domain/documents/stock_out"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/workflow"
)

var _ tx.ReadOnlyManager = (*Store)(nil)

// state is the arena. Values are stored by value and replaced on write,
// never mutated in place, so a shallow copy of every map is a full
// snapshot.
type state struct {
	entries  map[id.ID]ledger.Entry
	mappings []ledger.Mapping

	stockIns     map[id.ID]stock_in.StockIn
	stockInLines map[id.ID][]stock_in.Line

	stockOuts     map[id.ID]stock_out.StockOut
	stockOutLines map[id.ID][]stock_out.Line

	adjustments     map[id.ID]adjustment.Adjustment
	adjustmentLines map[id.ID][]adjustment.Line

	counts     map[id.ID]inventory_count.InventoryCount
	countLines map[id.ID][]inventory_count.Line

	outbox []workflow.Event
	audit  []audit.Record
}

func newState() *state {
	return &state{
		entries:         make(map[id.ID]ledger.Entry),
		stockIns:        make(map[id.ID]stock_in.StockIn),
		stockInLines:    make(map[id.ID][]stock_in.Line),
		stockOuts:       make(map[id.ID]stock_out.StockOut),
		stockOutLines:   make(map[id.ID][]stock_out.Line),
		adjustments:     make(map[id.ID]adjustment.Adjustment),
		adjustmentLines: make(map[id.ID][]adjustment.Line),
		counts:          make(map[id.ID]inventory_count.InventoryCount),
		countLines:      make(map[id.ID][]inventory_count.Line),
	}
}

func (s *state) clone() *state {
	return &state{
		entries:         maps.Clone(s.entries),
		mappings:        slices.Clip(s.mappings),
		stockIns:        maps.Clone(s.stockIns),
		stockInLines:    maps.Clone(s.stockInLines),
		stockOuts:       maps.Clone(s.stockOuts),
		stockOutLines:   maps.Clone(s.stockOutLines),
		adjustments:     maps.Clone(s.adjustments),
		adjustmentLines: maps.Clone(s.adjustmentLines),
		counts:          maps.Clone(s.counts),
		countLines:      maps.Clone(s.countLines),
		outbox:          slices.Clip(s.outbox),
		audit:           slices.Clip(s.audit),
	}
}

// Store owns the arena and is its transaction manager. Write transactions
// are serialized; read-only work sees the last committed snapshot.
type Store struct {
	writeMu sync.Mutex

	mu        sync.RWMutex
	committed *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{committed: newState()}
}

type txKey struct{}

type unit struct {
	state    *state
	readOnly bool
}

var errReadOnly = errors.New("write in read-only transaction")

func unitFrom(ctx context.Context) *unit {
	u, _ := ctx.Value(txKey{}).(*unit)
	return u
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed
}

// RunInTransaction implements tx.Manager.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if u := unitFrom(ctx); u != nil {
		if u.readOnly {
			return apperror.NewInternal(errReadOnly)
		}
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	u := &unit{state: s.snapshot().clone()}
	if err := fn(context.WithValue(ctx, txKey{}, u)); err != nil {
		return err
	}

	s.mu.Lock()
	s.committed = u.state
	s.mu.Unlock()
	return nil
}

// RunInSavepoint implements tx.Manager.
func (s *Store) RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	parent := unitFrom(ctx)
	if parent == nil {
		return s.RunInTransaction(ctx, fn)
	}
	if parent.readOnly {
		return apperror.NewInternal(errReadOnly)
	}

	child := &unit{state: parent.state.clone()}
	if err := fn(context.WithValue(ctx, txKey{}, child)); err != nil {
		return err
	}
	parent.state = child.state
	return nil
}

// ReadOnly implements tx.ReadOnlyManager. Inside a transaction fn reads the
// transaction's own state.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if unitFrom(ctx) != nil {
		return fn(ctx)
	}
	return fn(context.WithValue(ctx, txKey{}, &unit{state: s.snapshot(), readOnly: true}))
}

// read runs fn against the state visible to ctx.
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if u := unitFrom(ctx); u != nil {
		return fn(u.state)
	}
	return fn(s.snapshot())
}

// write runs fn against the transaction of ctx, opening one if needed.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if u := unitFrom(ctx); u != nil {
		if u.readOnly {
			return apperror.NewInternal(errReadOnly)
		}
		return fn(u.state)
	}
	return s.RunInTransaction(ctx, func(ctx context.Context) error {
		return fn(unitFrom(ctx).state)
	})
}
