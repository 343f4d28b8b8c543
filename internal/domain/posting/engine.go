// Package posting applies document effects to the batch ledger.
//
// Allocation on a (warehouse, material) pair runs under that pair's exclusive
// lock, acquired before the transaction begins and released after it ends.
// Each decrement is additionally guarded by the store (remaining >= amount at
// write time); a failed guard means the plan went stale, so the line is
// re-planned once and then reported as a concurrent modification.
package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/posting")

// maxAttempts is the initial plan plus the single re-plan after a stale write.
const maxAttempts = 2

// Engine plans and applies ledger changes.
type Engine struct {
	store   ledger.Store
	planner *ledger.Planner
	locker  Locker
	txm     tx.Manager
}

// NewEngine creates a posting engine.
func NewEngine(store ledger.Store, locker Locker, txm tx.Manager) *Engine {
	return &Engine{
		store:   store,
		planner: ledger.NewPlanner(store),
		locker:  locker,
		txm:     txm,
	}
}

// Store exposes the ledger the engine writes to.
func (e *Engine) Store() ledger.Store { return e.store }

// Execute runs fn in one transaction while holding the allocation locks of
// pairs. Locks already held by ctx are not taken again, so Execute nests.
// Any error from fn rolls back every change fn made.
func (e *Engine) Execute(ctx context.Context, pairs []ledger.Pair, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "posting.Execute",
		trace.WithAttributes(attribute.Int("ledger.pairs", len(pairs))))
	defer span.End()

	keys := lockKeys(ctx, pairs)
	if len(keys) > 0 {
		release, err := e.locker.Acquire(ctx, keys)
		if err != nil {
			return err
		}
		defer release()
		ctx = withHeldLocks(ctx, keys)
	}

	err := e.txm.RunInTransaction(ctx, fn)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Receive appends a new batch.
func (e *Engine) Receive(ctx context.Context, entry *ledger.Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	if err := e.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// ConsumeRequest describes one decrease line in base units.
type ConsumeRequest struct {
	Kind          ledger.SourceKind
	TransactionID id.ID
	LineID        id.ID
	Pair          ledger.Pair
	Quantity      decimal.Decimal
	Policy        ledger.Policy

	// LedgerEntryID decrements this batch only instead of policy selection.
	LedgerEntryID *id.ID
}

// staleBatchError marks a decrement rejected by the store's write-time guard.
type staleBatchError struct{ cause error }

func (e *staleBatchError) Error() string { return "stale batch: " + e.cause.Error() }
func (e *staleBatchError) Unwrap() error { return e.cause }

// Consume plans req, decrements every selected batch and stores the
// mappings. It must run inside Execute holding the pair's lock. Either the
// whole line is applied or nothing is.
func (e *Engine) Consume(ctx context.Context, req ConsumeRequest) ([]ledger.Mapping, error) {
	ctx, span := tracer.Start(ctx, "posting.Consume",
		trace.WithAttributes(
			attribute.String("ledger.warehouse_id", req.Pair.WarehouseID.String()),
			attribute.String("ledger.material_id", req.Pair.MaterialID.String()),
			attribute.String("ledger.quantity", req.Quantity.String()),
		))
	defer span.End()

	if !HoldsLock(ctx, req.Pair) {
		return nil, apperror.NewInternal(errors.New("allocation lock not held")).
			WithDetail("pair", req.Pair.LockKey())
	}

	var mappings []ledger.Mapping
	for attempt := 1; ; attempt++ {
		err := e.txm.RunInSavepoint(ctx, func(ctx context.Context) error {
			plan, err := e.plan(ctx, req)
			if err != nil {
				return err
			}
			for _, c := range plan.Consumptions {
				if err := e.store.Decrement(ctx, c.EntryID, c.Quantity); err != nil {
					if apperror.IsInsufficientBatchQuantity(err) {
						return &staleBatchError{cause: err}
					}
					return fmt.Errorf("decrement batch %s: %w", c.EntryID, err)
				}
			}
			mappings = plan.Mappings(req.Kind, req.TransactionID, req.LineID, time.Now().UTC())
			if err := e.store.SaveMappings(ctx, mappings); err != nil {
				return fmt.Errorf("save mappings: %w", err)
			}
			return nil
		})
		if err == nil {
			span.SetAttributes(attribute.Int("ledger.mappings", len(mappings)))
			return mappings, nil
		}

		var stale *staleBatchError
		if !errors.As(err, &stale) {
			span.RecordError(err)
			return nil, err
		}
		if attempt >= maxAttempts {
			logger.Warn(ctx, "allocation conflict persisted after re-plan",
				"pair", req.Pair.LockKey(), "transaction_id", req.TransactionID)
			return nil, apperror.NewConcurrentModification("ledger", req.Pair.LockKey()).WithCause(stale.cause)
		}
		logger.Warn(ctx, "batch changed during allocation, re-planning",
			"pair", req.Pair.LockKey(), "transaction_id", req.TransactionID)
	}
}

func (e *Engine) plan(ctx context.Context, req ConsumeRequest) (*ledger.Plan, error) {
	if req.LedgerEntryID != nil {
		return e.planner.PlanFromBatch(ctx, req.Pair, *req.LedgerEntryID, req.Quantity)
	}
	return e.planner.Plan(ctx, req.Pair, req.Quantity, req.Policy)
}
