package adjustment

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/posting"
	"stockledger/internal/domain/workflow"
	"stockledger/pkg/logger"
)

// Service provides business operations for adjustments.
type Service struct {
	repo Repository
	deps domain.Deps
}

// NewService creates a new adjustment service.
func NewService(repo Repository, deps domain.Deps) *Service {
	return &Service{repo: repo, deps: deps.WithDefaults()}
}

// Create stores a new unlocked adjustment.
func (s *Service) Create(ctx context.Context, doc *Adjustment) error {
	if err := s.prepare(ctx, doc); err != nil {
		return err
	}
	err := s.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.create(ctx, doc)
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "adjustment created", "id", doc.ID, "number", doc.Number, "type", doc.Type.String())
	return nil
}

func (s *Service) prepare(ctx context.Context, doc *Adjustment) error {
	doc.Renumber()
	if err := doc.Validate(ctx); err != nil {
		return domain.NormalizeValidationErr(err)
	}
	if err := s.deps.AssignNumber(ctx, &doc.Transaction, NumeratorPrefix, NumeratorStrategy); err != nil {
		return err
	}
	audit.EnrichCreatedBy(ctx, &doc.BaseEntity)
	return nil
}

func (s *Service) create(ctx context.Context, doc *Adjustment) error {
	if err := s.repo.Create(ctx, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
		return fmt.Errorf("save lines: %w", err)
	}
	return s.deps.Audit.Record(ctx, audit.Record{
		EntityType: entityName,
		EntityID:   doc.ID,
		Action:     audit.ActionCreate,
		Changes:    map[string]any{"number": doc.Number, "type": doc.Type.String(), "lines": len(doc.Lines)},
	})
}

// GetByID retrieves an adjustment with lines and, once posted, the batch
// mappings of its decrease lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*Adjustment, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.GetLines(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	doc.Lines = lines

	if !doc.Locked {
		return doc, nil
	}
	mappings, err := s.deps.Ledger().ListMappingsByTransaction(ctx, ledger.SourceAdjustment, docID)
	if err != nil {
		return nil, fmt.Errorf("get mappings: %w", err)
	}
	byLine := make(map[id.ID][]ledger.Mapping)
	for _, m := range mappings {
		byLine[m.LineID] = append(byLine[m.LineID], m)
	}
	for i := range doc.Lines {
		doc.Lines[i].BatchMappings = byLine[doc.Lines[i].LineID]
	}
	return doc, nil
}

// Delete removes an unlocked adjustment.
func (s *Service) Delete(ctx context.Context, docID id.ID) error {
	return s.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, docID)
		if err != nil {
			return err
		}
		if err := s.deps.EnsureModifiable(ctx, entityName, &current.Transaction); err != nil {
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

// Post applies every line and locks the adjustment. Any failing line rolls
// back the whole document.
func (s *Service) Post(ctx context.Context, docID id.ID) (*Adjustment, error) {
	before, err := s.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := s.deps.EnsureModifiable(ctx, entityName, &before.Transaction); err != nil {
		return nil, err
	}

	var doc *Adjustment
	err = s.deps.Engine.Execute(ctx, before.Pairs(), func(ctx context.Context) error {
		var err error
		doc, err = s.GetByID(ctx, docID)
		if err != nil {
			return err
		}
		if err := domain.EnsureSameVersion(entityName, &before.Transaction, &doc.Transaction); err != nil {
			return err
		}
		if err := s.applyAll(ctx, doc); err != nil {
			return err
		}
		return s.lock(ctx, doc)
	})
	if err != nil {
		logPostFailure(ctx, docID, err)
		return nil, err
	}
	s.logPosted(ctx, doc)
	return doc, nil
}

// CreateAndPost stores and posts doc in one transaction, all lines or none.
func (s *Service) CreateAndPost(ctx context.Context, doc *Adjustment) error {
	if err := s.prepare(ctx, doc); err != nil {
		return err
	}
	err := s.deps.Engine.Execute(ctx, doc.Pairs(), func(ctx context.Context) error {
		if err := s.create(ctx, doc); err != nil {
			return err
		}
		if err := s.applyAll(ctx, doc); err != nil {
			return err
		}
		return s.lock(ctx, doc)
	})
	if err != nil {
		logPostFailure(ctx, doc.ID, err)
		return err
	}
	s.logPosted(ctx, doc)
	return nil
}

// CreateAndPostEach applies every line in its own savepoint and posts the
// lines that succeeded. Failed lines are removed from doc and returned by
// line id. If no line succeeds the document is not stored.
func (s *Service) CreateAndPostEach(ctx context.Context, doc *Adjustment) (map[id.ID]error, error) {
	if err := s.prepare(ctx, doc); err != nil {
		return nil, err
	}

	failed := make(map[id.ID]error)
	err := s.deps.Engine.Execute(ctx, doc.Pairs(), func(ctx context.Context) error {
		applied := make([]Line, 0, len(doc.Lines))
		for i := range doc.Lines {
			line := doc.Lines[i]
			err := s.deps.TxManager.RunInSavepoint(ctx, func(ctx context.Context) error {
				return s.apply(ctx, doc, &line)
			})
			if err != nil {
				if !apperror.IsAppError(err) {
					return fmt.Errorf("line %d: %w", line.LineNo, err)
				}
				failed[line.LineID] = err
				logger.Warn(ctx, "adjustment line skipped", "number", doc.Number, "line_no", line.LineNo, "error", err)
				continue
			}
			applied = append(applied, line)
		}
		doc.Lines = applied
		if len(doc.Lines) == 0 {
			return nil
		}
		if err := s.create(ctx, doc); err != nil {
			return err
		}
		return s.lock(ctx, doc)
	})
	if err != nil {
		logPostFailure(ctx, doc.ID, err)
		return nil, err
	}
	if len(doc.Lines) > 0 {
		s.logPosted(ctx, doc)
	}
	return failed, nil
}

func (s *Service) applyAll(ctx context.Context, doc *Adjustment) error {
	if err := s.deps.EnsureModifiable(ctx, entityName, &doc.Transaction); err != nil {
		return err
	}
	if err := doc.Validate(ctx); err != nil {
		return domain.NormalizeValidationErr(err)
	}
	for i := range doc.Lines {
		line := &doc.Lines[i]
		if err := s.apply(ctx, doc, line); err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				return appErr.WithDetail("lineNo", line.LineNo)
			}
			return fmt.Errorf("line %d: %w", line.LineNo, err)
		}
	}
	return nil
}

// lock marks a document whose lines are applied as posted.
func (s *Service) lock(ctx context.Context, doc *Adjustment) error {
	doc.Recalculate()
	doc.MarkLocked()
	audit.EnrichUpdatedBy(ctx, &doc.BaseEntity)
	if err := s.repo.Update(ctx, doc); err != nil {
		return err
	}
	if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
		return fmt.Errorf("save lines: %w", err)
	}

	created := make([]string, 0)
	mappings := make([]map[string]any, 0)
	for _, line := range doc.Lines {
		if line.CreatedEntryID != nil {
			created = append(created, line.CreatedEntryID.String())
		}
		for _, m := range line.BatchMappings {
			mappings = append(mappings, map[string]any{
				"lineNo":        line.LineNo,
				"ledgerEntryId": m.LedgerEntryID.String(),
				"quantityUsed":  m.QuantityUsed.String(),
				"unitPrice":     m.UnitPrice.String(),
			})
		}
	}
	return s.deps.Finalize(ctx, entityName, &doc.Transaction, audit.ActionPost, workflow.EventAdjustmentPosted, map[string]any{
		"type":        doc.Type.String(),
		"batchIds":    created,
		"mappings":    mappings,
		"totalAmount": doc.TotalAmount.String(),
	})
}

// apply performs one line against the ledger.
func (s *Service) apply(ctx context.Context, doc *Adjustment, line *Line) error {
	base, factor, err := s.deps.Normalizer.ToBase(ctx, line.Quantity, line.UnitID, line.MaterialID)
	if err != nil {
		return err
	}
	if !base.IsPositive() {
		return apperror.NewInvalidArgument("normalized quantity must be positive").
			WithDetail("baseQuantity", base.String())
	}
	pair := ledger.Pair{WarehouseID: doc.WarehouseID, MaterialID: line.MaterialID}
	policy, err := s.deps.Policies.PolicyFor(ctx, pair)
	if err != nil {
		return fmt.Errorf("resolve policy: %w", err)
	}
	line.BaseQuantity = base
	line.ConversionFactor = factor

	if line.Direction == DirectionIncrease {
		return s.increase(ctx, doc, line, pair, policy)
	}

	mappings, err := s.deps.Engine.Consume(ctx, posting.ConsumeRequest{
		Kind:          ledger.SourceAdjustment,
		TransactionID: doc.ID,
		LineID:        line.LineID,
		Pair:          pair,
		Quantity:      base,
		Policy:        policy,
		LedgerEntryID: line.LedgerEntryID,
	})
	if err != nil {
		return err
	}
	_, amount := ledger.SumMappings(mappings)
	line.BatchMappings = mappings
	line.TotalAmount = amount
	return nil
}

func (s *Service) increase(ctx context.Context, doc *Adjustment, line *Line, pair ledger.Pair, policy ledger.Policy) error {
	price, err := s.increasePrice(ctx, line, pair)
	if err != nil {
		return err
	}
	entry := &ledger.Entry{
		ID:                  id.New(),
		BatchNumber:         doc.BatchNumber(*line),
		WarehouseID:         doc.WarehouseID,
		MaterialID:          line.MaterialID,
		SourceKind:          ledger.SourceAdjustment,
		SourceTransactionID: doc.ID,
		SourceLineID:        line.LineID,
		TransactionDate:     doc.TransactionDate,
		Policy:              policy,
		Quantity:            line.BaseQuantity,
		RemainingQuantity:   line.BaseQuantity,
		UnitPrice:           price,
		OriginalUnitID:      line.UnitID,
		OriginalQuantity:    line.Quantity,
		ConversionFactor:    line.ConversionFactor,
	}
	if err := s.deps.Engine.Receive(ctx, entry); err != nil {
		return err
	}
	entryID := entry.ID
	line.CreatedEntryID = &entryID
	line.TotalAmount = entry.Quantity.Mul(entry.UnitPrice)
	return nil
}

// increasePrice returns the price per base unit of the batch an increase
// creates.
func (s *Service) increasePrice(ctx context.Context, line *Line, pair ledger.Pair) (decimal.Decimal, error) {
	if !line.UnitPrice.IsZero() || line.LedgerEntryID == nil {
		return ledger.PricePerBase(line.UnitPrice, line.ConversionFactor), nil
	}
	source, err := s.deps.Ledger().GetByID(ctx, *line.LedgerEntryID)
	if err != nil {
		return decimal.Zero, err
	}
	if source.Pair() != pair {
		return decimal.Zero, apperror.NewInvalidArgument("batch belongs to another warehouse or material").
			WithDetail("ledgerEntryId", source.ID.String())
	}
	line.UnitPrice = source.UnitPrice.Mul(line.ConversionFactor)
	return source.UnitPrice, nil
}

// Preview shows what posting would do now: decrease lines list the batches
// they would consume, increase lines list none.
func (s *Service) Preview(ctx context.Context, docID id.ID) (*ledger.Preview, error) {
	doc, err := s.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := s.deps.EnsureModifiable(ctx, entityName, &doc.Transaction); err != nil {
		return nil, err
	}

	var items []ledger.PreviewItem
	var increases []ledger.PreviewLine
	for _, line := range doc.Lines {
		if line.Direction == DirectionDecrease {
			items = append(items, ledger.PreviewItem{
				LineNo:        line.LineNo,
				MaterialID:    line.MaterialID,
				UnitID:        line.UnitID,
				Quantity:      line.Quantity,
				LedgerEntryID: line.LedgerEntryID,
			})
			continue
		}
		base, factor, err := s.deps.Normalizer.ToBase(ctx, line.Quantity, line.UnitID, line.MaterialID)
		if err != nil {
			return nil, err
		}
		increases = append(increases, ledger.PreviewLine{
			LineNo:           line.LineNo,
			MaterialID:       line.MaterialID,
			UnitID:           line.UnitID,
			Quantity:         line.Quantity,
			BaseQuantity:     base,
			ConversionFactor: factor,
			Sufficient:       true,
			Batches:          []ledger.PreviewBatch{},
		})
	}

	out, err := s.deps.Previewer.Preview(ctx, doc.WarehouseID, items)
	if err != nil {
		return nil, err
	}
	out.Lines = append(out.Lines, increases...)
	sort.Slice(out.Lines, func(i, j int) bool { return out.Lines[i].LineNo < out.Lines[j].LineNo })
	return out, nil
}

func (s *Service) logPosted(ctx context.Context, doc *Adjustment) {
	logger.Info(ctx, "adjustment posted",
		"id", doc.ID, "number", doc.Number, "lines", len(doc.Lines), "total", doc.TotalAmount.String())
}

func logPostFailure(ctx context.Context, docID id.ID, err error) {
	if appErr, ok := apperror.AsAppError(err); ok {
		logger.Warn(ctx, "adjustment post rejected", "id", docID, "code", appErr.Code)
		return
	}
	logger.Error(ctx, "adjustment post failed", "id", docID, "error", err)
}
