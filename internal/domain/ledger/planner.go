package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// Consumption is one planned (entry, quantity) step.
type Consumption struct {
	EntryID         id.ID
	BatchNumber     string
	TransactionDate time.Time
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	RemainingBefore decimal.Decimal
}

// RemainingAfter is the batch remainder once the step is applied.
func (c Consumption) RemainingAfter() decimal.Decimal {
	return c.RemainingBefore.Sub(c.Quantity)
}

// Amount returns quantity * unitPrice.
func (c Consumption) Amount() decimal.Decimal {
	return c.Quantity.Mul(c.UnitPrice)
}

// Plan is a complete allocation of a requested quantity. A Plan always covers
// the whole request; shortfalls are reported as errors instead.
type Plan struct {
	Pair         Pair
	Policy       Policy
	Requested    decimal.Decimal
	Consumptions []Consumption
}

// TotalAmount returns the cost of the plan.
func (p *Plan) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, c := range p.Consumptions {
		total = total.Add(c.Amount())
	}
	return total
}

// Mappings converts the plan into mappings attributed to one document line.
func (p *Plan) Mappings(kind SourceKind, transactionID, lineID id.ID, at time.Time) []Mapping {
	out := make([]Mapping, 0, len(p.Consumptions))
	for _, c := range p.Consumptions {
		out = append(out, Mapping{
			ID:            id.New(),
			Kind:          kind,
			TransactionID: transactionID,
			LineID:        lineID,
			LedgerEntryID: c.EntryID,
			QuantityUsed:  c.Quantity,
			UnitPrice:     c.UnitPrice,
			CreatedAt:     at,
		})
	}
	return out
}

// Allocate walks entries in the given order and greedily takes
// min(remaining, stillNeeded) from each. It returns the steps and what is
// still missing; callers must discard the steps when missing is positive.
// Entries are not modified.
func Allocate(entries []Entry, requested decimal.Decimal) ([]Consumption, decimal.Decimal) {
	var steps []Consumption
	need := requested
	for i := range entries {
		if !need.IsPositive() {
			break
		}
		e := &entries[i]
		if !e.RemainingQuantity.IsPositive() {
			continue
		}
		take := decimal.Min(e.RemainingQuantity, need)
		steps = append(steps, Consumption{
			EntryID:         e.ID,
			BatchNumber:     e.BatchNumber,
			TransactionDate: e.TransactionDate,
			Quantity:        take,
			UnitPrice:       e.UnitPrice,
			RemainingBefore: e.RemainingQuantity,
		})
		need = need.Sub(take)
	}
	return steps, need
}

// Planner selects source batches for a requested quantity without mutating
// the ledger.
type Planner struct {
	reader Reader
}

// NewPlanner creates a planner over a ledger reader.
func NewPlanner(reader Reader) *Planner {
	return &Planner{reader: reader}
}

// Plan allocates requested (base unit) from the pair's open batches. It fails
// with an insufficient-stock error, and returns no partial plan, when the
// batches cannot cover the whole request.
func (p *Planner) Plan(ctx context.Context, pair Pair, requested decimal.Decimal, policy Policy) (*Plan, error) {
	if !requested.IsPositive() {
		return nil, apperror.NewInvalidArgument("requested quantity must be positive").
			WithDetail("materialId", pair.MaterialID.String()).
			WithDetail("requested", requested.String())
	}
	if !policy.Valid() {
		return nil, apperror.NewInvalidArgument("unknown allocation policy").
			WithDetail("policy", uint8(policy))
	}

	available, err := p.reader.SumRemaining(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("sum remaining: %w", err)
	}
	if available.LessThan(requested) {
		return nil, apperror.NewInsufficientStock(pair.MaterialID.String(), requested.String(), available.String())
	}

	entries, err := p.reader.ListOrdered(ctx, pair, policy)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	policy.Sort(entries)

	steps, missing := Allocate(entries, requested)
	if missing.IsPositive() {
		return nil, apperror.NewInsufficientStock(pair.MaterialID.String(), requested.String(), requested.Sub(missing).String())
	}

	return &Plan{Pair: pair, Policy: policy, Requested: requested, Consumptions: steps}, nil
}

// PlanFromBatch plans a decrement of one explicitly chosen batch. The batch
// must belong to the pair and hold at least requested.
func (p *Planner) PlanFromBatch(ctx context.Context, pair Pair, entryID id.ID, requested decimal.Decimal) (*Plan, error) {
	if !requested.IsPositive() {
		return nil, apperror.NewInvalidArgument("requested quantity must be positive").
			WithDetail("ledgerEntryId", entryID.String()).
			WithDetail("requested", requested.String())
	}
	entry, err := p.reader.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Pair() != pair {
		return nil, apperror.NewInvalidArgument("batch belongs to another warehouse or material").
			WithDetail("ledgerEntryId", entryID.String())
	}
	if requested.GreaterThan(entry.RemainingQuantity) {
		return nil, apperror.NewInsufficientBatchQuantity(entryID.String(), requested.String(), entry.RemainingQuantity.String())
	}
	return &Plan{
		Pair:      pair,
		Policy:    entry.Policy,
		Requested: requested,
		Consumptions: []Consumption{{
			EntryID:         entry.ID,
			BatchNumber:     entry.BatchNumber,
			TransactionDate: entry.TransactionDate,
			Quantity:        requested,
			UnitPrice:       entry.UnitPrice,
			RemainingBefore: entry.RemainingQuantity,
		}},
	}, nil
}
