package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
)

// PreviewItem is one line to preview, in the caller's unit.
type PreviewItem struct {
	LineNo     int
	MaterialID id.ID
	UnitID     id.ID
	Quantity   decimal.Decimal

	// LedgerEntryID pins the line to one batch instead of policy selection.
	LedgerEntryID *id.ID
}

// PreviewBatch is one batch the line would consume.
type PreviewBatch struct {
	BatchID         id.ID           `json:"batchId"`
	BatchNumber     string          `json:"batchNumber"`
	TransactionDate time.Time       `json:"transactionDate"`
	QuantityUsed    decimal.Decimal `json:"quantityUsed"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	RemainingAfter  decimal.Decimal `json:"remainingAfter"`
}

// PreviewLine is the computed allocation of one item. When Sufficient is
// false, Batches is empty and Shortage tells how much is missing.
type PreviewLine struct {
	LineNo           int             `json:"lineNo"`
	MaterialID       id.ID           `json:"materialId"`
	UnitID           id.ID           `json:"unitId"`
	Quantity         decimal.Decimal `json:"quantity"`
	BaseQuantity     decimal.Decimal `json:"baseQuantity"`
	ConversionFactor decimal.Decimal `json:"conversionFactor"`
	Policy           Policy          `json:"policy"`
	Sufficient       bool            `json:"sufficient"`
	Available        decimal.Decimal `json:"available"`
	Shortage         decimal.Decimal `json:"shortage"`
	Batches          []PreviewBatch  `json:"batches"`
	TotalQuantity    decimal.Decimal `json:"totalQuantity"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
}

// Preview is the result for a whole set of lines.
type Preview struct {
	WarehouseID   id.ID           `json:"warehouseId"`
	Lines         []PreviewLine   `json:"lines"`
	Sufficient    bool            `json:"sufficient"`
	TotalQuantity decimal.Decimal `json:"totalQuantity"`
	GrandTotal    decimal.Decimal `json:"grandTotal"`
}

// Previewer computes what a set of decrease lines would consume if posted
// now. It never writes to the ledger and takes no allocation locks, so the
// answer may be stale by the time a real posting runs.
//
// Lines of the same material are evaluated in order against a shared
// working copy, the way posting applies them; distinct materials are
// evaluated concurrently, each in its own read-only unit of work. Preview
// must therefore not be called inside an open transaction.
type Previewer struct {
	reader     Reader
	normalizer *Normalizer
	policies   PolicyResolver
	txm        tx.ReadOnlyManager
	parallel   int
}

// NewPreviewer creates a previewer. parallel bounds concurrent material groups.
func NewPreviewer(reader Reader, normalizer *Normalizer, policies PolicyResolver, txm tx.ReadOnlyManager, parallel int) *Previewer {
	if parallel <= 0 {
		parallel = 4
	}
	return &Previewer{
		reader:     reader,
		normalizer: normalizer,
		policies:   policies,
		txm:        txm,
		parallel:   parallel,
	}
}

// Preview evaluates items against the warehouse ledger.
func (p *Previewer) Preview(ctx context.Context, warehouseID id.ID, items []PreviewItem) (*Preview, error) {
	if id.IsNil(warehouseID) {
		return nil, apperror.NewInvalidArgument("warehouse is required").WithDetail("field", "warehouseId")
	}
	for _, item := range items {
		if !item.Quantity.IsPositive() {
			return nil, apperror.NewInvalidArgument("quantity must be positive").
				WithDetail("lineNo", item.LineNo).
				WithDetail("quantity", item.Quantity.String())
		}
	}

	var order []id.ID
	groups := make(map[id.ID][]int)
	for i, item := range items {
		if _, ok := groups[item.MaterialID]; !ok {
			order = append(order, item.MaterialID)
		}
		groups[item.MaterialID] = append(groups[item.MaterialID], i)
	}

	lines := make([]PreviewLine, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)
	for _, materialID := range order {
		pair := Pair{WarehouseID: warehouseID, MaterialID: materialID}
		idx := groups[materialID]
		g.Go(func() error {
			return p.txm.ReadOnly(gctx, func(ctx context.Context) error {
				return p.previewGroup(ctx, pair, items, idx, lines)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Preview{WarehouseID: warehouseID, Lines: lines, Sufficient: true}
	for _, l := range lines {
		if !l.Sufficient {
			out.Sufficient = false
		}
		out.TotalQuantity = out.TotalQuantity.Add(l.TotalQuantity)
		out.GrandTotal = out.GrandTotal.Add(l.TotalAmount)
	}
	return out, nil
}

// previewGroup fills lines[i] for every i in idx. All items share pair.
func (p *Previewer) previewGroup(ctx context.Context, pair Pair, items []PreviewItem, idx []int, lines []PreviewLine) error {
	policy, err := p.policies.PolicyFor(ctx, pair)
	if err != nil {
		return fmt.Errorf("resolve policy: %w", err)
	}
	entries, err := p.reader.ListOrdered(ctx, pair, policy)
	if err != nil {
		return fmt.Errorf("list batches: %w", err)
	}
	policy.Sort(entries)

	// entries is a private copy; consuming from it lets later lines of the
	// same material see what earlier lines took.
	position := make(map[id.ID]int, len(entries))
	for i := range entries {
		position[entries[i].ID] = i
	}
	for _, i := range idx {
		item := items[i]
		base, factor, err := p.normalizer.ToBase(ctx, item.Quantity, item.UnitID, item.MaterialID)
		if err != nil {
			return err
		}
		line := PreviewLine{
			LineNo:           item.LineNo,
			MaterialID:       item.MaterialID,
			UnitID:           item.UnitID,
			Quantity:         item.Quantity,
			BaseQuantity:     base,
			ConversionFactor: factor,
			Policy:           policy,
			Batches:          []PreviewBatch{},
		}

		var steps []Consumption
		if item.LedgerEntryID != nil {
			steps, line.Available, err = p.fromBatch(ctx, pair, *item.LedgerEntryID, base, entries, position)
			if err != nil {
				return err
			}
		} else {
			line.Available = sumRemaining(entries)
			if !line.Available.LessThan(base) {
				steps, _ = Allocate(entries, base)
			}
		}

		if steps == nil {
			line.Shortage = base.Sub(line.Available)
			lines[i] = line
			continue
		}
		line.Sufficient = true
		for _, s := range steps {
			entries[position[s.EntryID]].RemainingQuantity = s.RemainingAfter()
			line.Batches = append(line.Batches, PreviewBatch{
				BatchID:         s.EntryID,
				BatchNumber:     s.BatchNumber,
				TransactionDate: s.TransactionDate,
				QuantityUsed:    s.Quantity,
				UnitPrice:       s.UnitPrice,
				TotalAmount:     s.Amount(),
				RemainingAfter:  s.RemainingAfter(),
			})
			line.TotalQuantity = line.TotalQuantity.Add(s.Quantity)
			line.TotalAmount = line.TotalAmount.Add(s.Amount())
		}
		lines[i] = line
	}
	return nil
}

// fromBatch previews an explicit-batch line. A nil step slice means the batch
// cannot cover base.
func (p *Previewer) fromBatch(ctx context.Context, pair Pair, entryID id.ID, base decimal.Decimal, entries []Entry, position map[id.ID]int) ([]Consumption, decimal.Decimal, error) {
	pos, open := position[entryID]
	if !open {
		// Fully consumed batches are not listed; load to tell "empty" from "foreign".
		entry, err := p.reader.GetByID(ctx, entryID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if entry.Pair() != pair {
			return nil, decimal.Zero, apperror.NewInvalidArgument("batch belongs to another warehouse or material").
				WithDetail("ledgerEntryId", entryID.String())
		}
		return nil, entry.RemainingQuantity, nil
	}
	e := entries[pos]
	if base.GreaterThan(e.RemainingQuantity) {
		return nil, e.RemainingQuantity, nil
	}
	return []Consumption{{
		EntryID:         e.ID,
		BatchNumber:     e.BatchNumber,
		TransactionDate: e.TransactionDate,
		Quantity:        base,
		UnitPrice:       e.UnitPrice,
		RemainingBefore: e.RemainingQuantity,
	}}, e.RemainingQuantity, nil
}

func sumRemaining(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.RemainingQuantity)
	}
	return total
}
