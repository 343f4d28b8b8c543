package inventory_count

import (
	"context"
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/documents/adjustment"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/workflow"
	"stockledger/pkg/logger"
)

// Adjuster posts the adjustment a reconciliation produces, skipping the
// lines that fail.
type Adjuster interface {
	CreateAndPostEach(ctx context.Context, doc *adjustment.Adjustment) (map[id.ID]error, error)
}

// Service provides the stocktake lifecycle.
type Service struct {
	repo     Repository
	adjuster Adjuster
	deps     domain.Deps
}

// NewService creates a new inventory count service.
func NewService(repo Repository, adjuster Adjuster, deps domain.Deps) *Service {
	return &Service{repo: repo, adjuster: adjuster, deps: deps.WithDefaults()}
}

// LoadBatches lists every batch of the warehouse with stock left, the
// sheet a count is prepared from.
func (s *Service) LoadBatches(ctx context.Context, warehouseID id.ID) ([]ledger.Entry, error) {
	if id.IsNil(warehouseID) {
		return nil, apperror.NewInvalidArgument("warehouse is required").WithDetail("field", "warehouseId")
	}
	var out []ledger.Entry
	err := s.deps.TxManager.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.deps.Ledger().ListOpenByWarehouse(ctx, warehouseID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list open batches: %w", err)
	}
	return out, nil
}

// Create stores a draft count. Every line must name a batch of the count's
// warehouse and the line's material.
func (s *Service) Create(ctx context.Context, doc *InventoryCount) error {
	doc.Status = StatusDraft
	doc.Renumber()
	if err := doc.Validate(ctx); err != nil {
		return domain.NormalizeValidationErr(err)
	}
	if err := s.deps.AssignNumber(ctx, &doc.Transaction, NumeratorPrefix, NumeratorStrategy); err != nil {
		return err
	}
	audit.EnrichCreatedBy(ctx, &doc.BaseEntity)

	err := s.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, line := range doc.Lines {
			if err := s.checkBatch(ctx, doc, line); err != nil {
				return err
			}
		}
		if err := s.repo.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return s.deps.Audit.Record(ctx, audit.Record{
			EntityType: entityName, EntityID: doc.ID, Action: audit.ActionCreate,
			Changes: map[string]any{"number": doc.Number, "lines": len(doc.Lines)},
		})
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "inventory count created", "id", doc.ID, "number", doc.Number, "lines", len(doc.Lines))
	return nil
}

func (s *Service) checkBatch(ctx context.Context, doc *InventoryCount, line Line) error {
	entry, err := s.deps.Ledger().GetByID(ctx, line.LedgerEntryID)
	if err != nil {
		if appErr, ok := apperror.AsAppError(err); ok {
			return appErr.WithDetail("lineNo", line.LineNo)
		}
		return err
	}
	if entry.WarehouseID != doc.WarehouseID || entry.MaterialID != line.MaterialID {
		return apperror.NewInvalidArgument("batch belongs to another warehouse or material").
			WithDetail("lineNo", line.LineNo).
			WithDetail("ledgerEntryId", entry.ID.String())
	}
	return nil
}

// GetByID retrieves a count with lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*InventoryCount, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.GetLines(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	doc.Lines = lines
	return doc, nil
}

// Update replaces the header and lines of a count that is still being
// prepared or counted. Status and start time are kept.
func (s *Service) Update(ctx context.Context, doc *InventoryCount) error {
	err := s.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, doc.ID)
		if err != nil {
			return err
		}
		if err := s.deps.EnsureModifiable(ctx, entityName, &current.Transaction); err != nil {
			return err
		}
		if err := current.checkEditable(); err != nil {
			return err
		}

		doc.BaseEntity.CreatedAt = current.CreatedAt
		doc.BaseEntity.CreatedBy = current.CreatedBy
		doc.Version = current.Version
		doc.Number = current.Number
		doc.Status = current.Status
		doc.StartedAt = current.StartedAt
		doc.CompletedAt = nil
		doc.AdjustmentTransactionID = nil
		doc.Renumber()
		if err := doc.Validate(ctx); err != nil {
			return domain.NormalizeValidationErr(err)
		}
		for _, line := range doc.Lines {
			if err := s.checkBatch(ctx, doc, line); err != nil {
				return err
			}
		}
		doc.Touch()
		audit.EnrichUpdatedBy(ctx, &doc.BaseEntity)

		if err := s.repo.Update(ctx, doc); err != nil {
			return err
		}
		if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return s.deps.Audit.Record(ctx, audit.Record{
			EntityType: entityName, EntityID: doc.ID, Action: audit.ActionUpdate,
			Changes: map[string]any{"lines": len(doc.Lines)},
		})
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "inventory count updated", "id", doc.ID, "lines", len(doc.Lines))
	return nil
}

// Delete removes a count that is neither completed nor cancelled.
func (s *Service) Delete(ctx context.Context, docID id.ID) error {
	return s.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, docID)
		if err != nil {
			return err
		}
		if err := s.deps.EnsureModifiable(ctx, entityName, &current.Transaction); err != nil {
			return err
		}
		if err := current.checkEditable(); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, docID); err != nil {
			return err
		}
		return s.deps.Audit.Record(ctx, audit.Record{
			EntityType: entityName, EntityID: docID, Action: audit.ActionDelete,
		})
	})
}

// Start moves a draft count to IN_PROGRESS.
func (s *Service) Start(ctx context.Context, docID id.ID) (*InventoryCount, error) {
	return s.changeStatus(ctx, docID, StatusInProgress, audit.ActionStart)
}

// Cancel abandons a count that is not completed.
func (s *Service) Cancel(ctx context.Context, docID id.ID) (*InventoryCount, error) {
	return s.changeStatus(ctx, docID, StatusCancelled, audit.ActionCancel)
}

func (s *Service) changeStatus(ctx context.Context, docID id.ID, next Status, action audit.Action) (*InventoryCount, error) {
	var doc *InventoryCount
	err := s.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.GetByID(ctx, docID)
		if err != nil {
			return err
		}
		if err := s.deps.EnsureModifiable(ctx, entityName, &doc.Transaction); err != nil {
			return err
		}
		from := doc.Status
		if err := doc.transition(next); err != nil {
			return err
		}
		audit.EnrichUpdatedBy(ctx, &doc.BaseEntity)
		if err := s.repo.Update(ctx, doc); err != nil {
			return err
		}
		return s.deps.Audit.Record(ctx, audit.Record{
			EntityType: entityName, EntityID: doc.ID, Action: action,
			Changes: map[string]any{"from": from.String(), "to": next.String()},
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "inventory count status changed", "id", doc.ID, "status", doc.Status.String())
	return doc, nil
}

// Complete reconciles the count against the ledger. Each line whose actual
// quantity differs from the batch's remaining quantity becomes one line of
// a single INVENTORY_COUNT adjustment targeting that batch. Lines are
// reconciled independently: a failing line keeps its error and the rest
// are still applied.
func (s *Service) Complete(ctx context.Context, docID id.ID) (*InventoryCount, error) {
	before, err := s.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := s.deps.EnsureModifiable(ctx, entityName, &before.Transaction); err != nil {
		return nil, err
	}
	if before.Status != StatusInProgress {
		return nil, before.transition(StatusCompleted)
	}

	var doc *InventoryCount
	err = s.deps.Engine.Execute(ctx, before.Pairs(), func(ctx context.Context) error {
		var err error
		doc, err = s.GetByID(ctx, docID)
		if err != nil {
			return err
		}
		if err := domain.EnsureSameVersion(entityName, &before.Transaction, &doc.Transaction); err != nil {
			return err
		}
		return s.reconcile(ctx, doc)
	})
	if err != nil {
		logger.Warn(ctx, "inventory count completion failed", "id", docID, "error", err)
		return nil, err
	}

	failed := 0
	for _, l := range doc.Lines {
		if l.ErrorCode != "" {
			failed++
		}
	}
	logger.Info(ctx, "inventory count completed",
		"id", doc.ID, "number", doc.Number, "adjustment_id", doc.AdjustmentTransactionID, "failed_lines", failed)
	return doc, nil
}

// reconcile must run inside Execute holding the count's pairs.
func (s *Service) reconcile(ctx context.Context, doc *InventoryCount) error {
	if err := doc.transition(StatusCompleted); err != nil {
		return err
	}

	adj := adjustment.New(doc.WarehouseID, adjustment.TypeInventoryCount, doc.TransactionDate)
	countID := doc.ID
	adj.InventoryCountID = &countID
	adj.Reason = "inventory count " + doc.Number

	byAdjLine := make(map[id.ID]int)
	for i := range doc.Lines {
		line := &doc.Lines[i]
		line.ErrorCode, line.ErrorMessage, line.AdjustmentLineID = "", "", nil

		adjLine, err := s.compare(ctx, doc, line)
		if err != nil {
			appErr, ok := apperror.AsAppError(err)
			if !ok {
				return fmt.Errorf("line %d: %w", line.LineNo, err)
			}
			line.ErrorCode, line.ErrorMessage = appErr.Code, appErr.Message
			continue
		}
		if adjLine == nil {
			continue
		}
		adj.AddLine(*adjLine)
		byAdjLine[adj.Lines[len(adj.Lines)-1].LineID] = i
	}

	if len(adj.Lines) > 0 {
		failures, err := s.adjuster.CreateAndPostEach(ctx, adj)
		if err != nil {
			return err
		}
		for adjLineID, lineErr := range failures {
			line := &doc.Lines[byAdjLine[adjLineID]]
			if appErr, ok := apperror.AsAppError(lineErr); ok {
				line.ErrorCode, line.ErrorMessage = appErr.Code, appErr.Message
			}
		}
		for _, l := range adj.Lines {
			lineID := l.LineID
			doc.Lines[byAdjLine[lineID]].AdjustmentLineID = &lineID
		}
		if len(adj.Lines) > 0 {
			adjID := adj.ID
			doc.AdjustmentTransactionID = &adjID
		}
	}

	doc.MarkLocked()
	audit.EnrichUpdatedBy(ctx, &doc.BaseEntity)
	if err := s.repo.Update(ctx, doc); err != nil {
		return err
	}
	if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
		return fmt.Errorf("save lines: %w", err)
	}

	changes := map[string]any{"lines": len(doc.Lines), "adjustedLines": len(adj.Lines)}
	if doc.AdjustmentTransactionID != nil {
		changes["adjustmentTransactionId"] = doc.AdjustmentTransactionID.String()
	}
	return s.deps.Finalize(ctx, entityName, &doc.Transaction, audit.ActionComplete, workflow.EventInventoryCountComplete, changes)
}

// compare fills the system and difference quantities of line and returns the
// adjustment line that would correct the batch, or nil if none is needed.
func (s *Service) compare(ctx context.Context, doc *InventoryCount, line *Line) (*adjustment.Line, error) {
	entry, err := s.deps.Ledger().GetByID(ctx, line.LedgerEntryID)
	if err != nil {
		return nil, err
	}
	if entry.WarehouseID != doc.WarehouseID || entry.MaterialID != line.MaterialID {
		return nil, apperror.NewInvalidArgument("batch belongs to another warehouse or material").
			WithDetail("ledgerEntryId", entry.ID.String())
	}
	actual, _, err := s.deps.Normalizer.ToBase(ctx, line.ActualQuantity, line.UnitID, line.MaterialID)
	if err != nil {
		return nil, err
	}

	line.ActualBaseQuantity = actual
	line.SystemQuantity = entry.RemainingQuantity
	line.DifferenceQuantity = actual.Sub(entry.RemainingQuantity)
	if line.DifferenceQuantity.IsZero() {
		return nil, nil
	}

	baseUnit, err := s.deps.Normalizer.BaseUnit(ctx, line.MaterialID)
	if err != nil {
		return nil, err
	}
	entryID := entry.ID
	adjLine := &adjustment.Line{
		Direction:     adjustment.DirectionDecrease,
		MaterialID:    line.MaterialID,
		UnitID:        baseUnit,
		Quantity:      line.DifferenceQuantity.Abs(),
		LedgerEntryID: &entryID,
		Notes:         line.Notes,
	}
	if line.DifferenceQuantity.IsPositive() {
		adjLine.Direction = adjustment.DirectionIncrease
		adjLine.UnitPrice = entry.UnitPrice
	}
	return adjLine, nil
}
