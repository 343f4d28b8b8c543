package memory

import (
	"context"
	"slices"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/documents/adjustment"
	"stockledger/internal/domain/documents/inventory_count"
	"stockledger/internal/domain/documents/stock_in"
	"stockledger/internal/domain/documents/stock_out"
)

// table binds a document type to its maps in the arena.
type table[D any, L any] struct {
	entity string
	docs   func(st *state) map[id.ID]D
	lines  func(st *state) map[id.ID][]L
	header func(doc *D) *entity.Transaction
	strip  func(doc D) D
}

// DocumentRepo is a document repository over one table of the arena. The
// version check of Update is the optimistic lock every document relies on.
type DocumentRepo[D any, L any] struct {
	store *Store
	t     table[D, L]
}

func (r *DocumentRepo[D, L]) Create(ctx context.Context, doc *D) error {
	h := r.t.header(doc)
	return r.store.write(ctx, func(st *state) error {
		docs := r.t.docs(st)
		if _, exists := docs[h.ID]; exists {
			return apperror.NewConflict(r.t.entity + " already exists").WithDetail("id", h.ID.String())
		}
		if number := h.Number; number != "" {
			for _, other := range docs {
				if o := r.t.header(&other); o.Number == number {
					return apperror.NewConflict(r.t.entity + " number already used").WithDetail("number", number)
				}
			}
		}
		docs[h.ID] = r.t.strip(*doc)
		return nil
	})
}

func (r *DocumentRepo[D, L]) GetByID(ctx context.Context, docID id.ID) (*D, error) {
	var out *D
	err := r.store.read(ctx, func(st *state) error {
		doc, ok := r.t.docs(st)[docID]
		if !ok {
			return apperror.NewNotFound(r.t.entity, docID.String())
		}
		out = &doc
		return nil
	})
	return out, err
}

func (r *DocumentRepo[D, L]) Update(ctx context.Context, doc *D) error {
	h := r.t.header(doc)
	return r.store.write(ctx, func(st *state) error {
		docs := r.t.docs(st)
		current, ok := docs[h.ID]
		if !ok {
			return apperror.NewNotFound(r.t.entity, h.ID.String())
		}
		if r.t.header(&current).Version != h.Version {
			return apperror.NewConcurrentModification(r.t.entity, h.ID.String())
		}
		h.Version++
		docs[h.ID] = r.t.strip(*doc)
		return nil
	})
}

func (r *DocumentRepo[D, L]) Delete(ctx context.Context, docID id.ID) error {
	return r.store.write(ctx, func(st *state) error {
		docs := r.t.docs(st)
		if _, ok := docs[docID]; !ok {
			return apperror.NewNotFound(r.t.entity, docID.String())
		}
		delete(docs, docID)
		delete(r.t.lines(st), docID)
		return nil
	})
}

func (r *DocumentRepo[D, L]) GetLines(ctx context.Context, docID id.ID) ([]L, error) {
	var out []L
	err := r.store.read(ctx, func(st *state) error {
		out = slices.Clone(r.t.lines(st)[docID])
		return nil
	})
	if out == nil {
		out = make([]L, 0)
	}
	return out, err
}

func (r *DocumentRepo[D, L]) SaveLines(ctx context.Context, docID id.ID, lines []L) error {
	return r.store.write(ctx, func(st *state) error {
		r.t.lines(st)[docID] = slices.Clone(lines)
		return nil
	})
}

var (
	_ stock_in.Repository        = (*DocumentRepo[stock_in.StockIn, stock_in.Line])(nil)
	_ stock_out.Repository       = (*DocumentRepo[stock_out.StockOut, stock_out.Line])(nil)
	_ adjustment.Repository      = (*DocumentRepo[adjustment.Adjustment, adjustment.Line])(nil)
	_ inventory_count.Repository = (*DocumentRepo[inventory_count.InventoryCount, inventory_count.Line])(nil)
)

// NewStockInRepo creates the stock-in repository.
func NewStockInRepo(s *Store) *DocumentRepo[stock_in.StockIn, stock_in.Line] {
	return &DocumentRepo[stock_in.StockIn, stock_in.Line]{store: s, t: table[stock_in.StockIn, stock_in.Line]{
		entity: "stock-in",
		docs:   func(st *state) map[id.ID]stock_in.StockIn { return st.stockIns },
		lines:  func(st *state) map[id.ID][]stock_in.Line { return st.stockInLines },
		header: func(d *stock_in.StockIn) *entity.Transaction { return &d.Transaction },
		strip:  func(d stock_in.StockIn) stock_in.StockIn { d.Lines = nil; return d },
	}}
}

// NewStockOutRepo creates the stock-out repository.
func NewStockOutRepo(s *Store) *DocumentRepo[stock_out.StockOut, stock_out.Line] {
	return &DocumentRepo[stock_out.StockOut, stock_out.Line]{store: s, t: table[stock_out.StockOut, stock_out.Line]{
		entity: "stock-out",
		docs:   func(st *state) map[id.ID]stock_out.StockOut { return st.stockOuts },
		lines:  func(st *state) map[id.ID][]stock_out.Line { return st.stockOutLines },
		header: func(d *stock_out.StockOut) *entity.Transaction { return &d.Transaction },
		strip:  func(d stock_out.StockOut) stock_out.StockOut { d.Lines = nil; return d },
	}}
}

// NewAdjustmentRepo creates the adjustment repository.
func NewAdjustmentRepo(s *Store) *DocumentRepo[adjustment.Adjustment, adjustment.Line] {
	return &DocumentRepo[adjustment.Adjustment, adjustment.Line]{store: s, t: table[adjustment.Adjustment, adjustment.Line]{
		entity: "adjustment",
		docs:   func(st *state) map[id.ID]adjustment.Adjustment { return st.adjustments },
		lines:  func(st *state) map[id.ID][]adjustment.Line { return st.adjustmentLines },
		header: func(d *adjustment.Adjustment) *entity.Transaction { return &d.Transaction },
		strip:  func(d adjustment.Adjustment) adjustment.Adjustment { d.Lines = nil; return d },
	}}
}

// NewInventoryCountRepo creates the inventory count repository.
func NewInventoryCountRepo(s *Store) *DocumentRepo[inventory_count.InventoryCount, inventory_count.Line] {
	return &DocumentRepo[inventory_count.InventoryCount, inventory_count.Line]{store: s, t: table[inventory_count.InventoryCount, inventory_count.Line]{
		entity: "inventory-count",
		docs:   func(st *state) map[id.ID]inventory_count.InventoryCount { return st.counts },
		lines:  func(st *state) map[id.ID][]inventory_count.Line { return st.countLines },
		header: func(d *inventory_count.InventoryCount) *entity.Transaction { return &d.Transaction },
		strip:  func(d inventory_count.InventoryCount) inventory_count.InventoryCount { d.Lines = nil; return d },
	}}
}
