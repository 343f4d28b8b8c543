package stock_in

import (
	"context"
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/workflow"
	"stockledger/pkg/logger"
)

// Service provides business operations for stock-in documents.
type Service struct {
	repo Repository
	deps domain.Deps
}

// NewService creates a new stock-in service.
func NewService(repo Repository, deps domain.Deps) *Service {
	return &Service{repo: repo, deps: deps.WithDefaults()}
}

// Create stores a new unlocked stock-in.
func (s *Service) Create(ctx context.Context, doc *StockIn) error {
	doc.Recalculate()
	if err := doc.Validate(ctx); err != nil {
		return domain.NormalizeValidationErr(err)
	}
	if err := s.deps.AssignNumber(ctx, &doc.Transaction, NumeratorPrefix, NumeratorStrategy); err != nil {
		return err
	}
	audit.EnrichCreatedBy(ctx, &doc.BaseEntity)

	err := s.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.create(ctx, doc)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "stock-in created", "id", doc.ID, "number", doc.Number)
	return nil
}

func (s *Service) create(ctx context.Context, doc *StockIn) error {
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
		Changes:    map[string]any{"number": doc.Number, "lines": len(doc.Lines)},
	})
}

// GetByID retrieves a stock-in with lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*StockIn, error) {
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

// Update replaces the editable fields and lines of an unlocked stock-in.
func (s *Service) Update(ctx context.Context, doc *StockIn) error {
	return s.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, doc.ID)
		if err != nil {
			return err
		}
		if err := s.deps.EnsureModifiable(ctx, entityName, &current.Transaction); err != nil {
			return err
		}

		doc.BaseEntity.CreatedAt = current.CreatedAt
		doc.BaseEntity.CreatedBy = current.CreatedBy
		doc.Version = current.Version
		doc.Number = current.Number
		doc.Recalculate()
		if err := doc.Validate(ctx); err != nil {
			return domain.NormalizeValidationErr(err)
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
}

// Delete removes an unlocked stock-in.
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

// Post appends one batch per line and locks the document.
func (s *Service) Post(ctx context.Context, docID id.ID) (*StockIn, error) {
	var doc *StockIn
	err := s.deps.Engine.Execute(ctx, nil, func(ctx context.Context) error {
		var err error
		doc, err = s.GetByID(ctx, docID)
		if err != nil {
			return err
		}
		return s.post(ctx, doc)
	})
	if err != nil {
		logPostFailure(ctx, docID, err)
		return nil, err
	}
	logger.Info(ctx, "stock-in posted", "id", doc.ID, "number", doc.Number, "batches", len(doc.Lines))
	return doc, nil
}

// CreateAndPost stores and posts doc in one transaction. Inside an open
// transaction it joins it, which is how transfers create their receipt.
func (s *Service) CreateAndPost(ctx context.Context, doc *StockIn) error {
	doc.Recalculate()
	if err := doc.Validate(ctx); err != nil {
		return domain.NormalizeValidationErr(err)
	}
	if err := s.deps.AssignNumber(ctx, &doc.Transaction, NumeratorPrefix, NumeratorStrategy); err != nil {
		return err
	}
	audit.EnrichCreatedBy(ctx, &doc.BaseEntity)

	err := s.deps.Engine.Execute(ctx, nil, func(ctx context.Context) error {
		if err := s.create(ctx, doc); err != nil {
			return err
		}
		return s.post(ctx, doc)
	})
	if err != nil {
		logPostFailure(ctx, doc.ID, err)
		return err
	}
	logger.Info(ctx, "stock-in posted", "id", doc.ID, "number", doc.Number, "batches", len(doc.Lines))
	return nil
}

// post must run inside a transaction.
func (s *Service) post(ctx context.Context, doc *StockIn) error {
	if err := s.deps.EnsureModifiable(ctx, entityName, &doc.Transaction); err != nil {
		return err
	}
	if err := doc.Validate(ctx); err != nil {
		return domain.NormalizeValidationErr(err)
	}

	for i := range doc.Lines {
		line := &doc.Lines[i]
		entry, err := s.batchFor(ctx, doc, line)
		if err != nil {
			return err
		}
		if err := s.deps.Engine.Receive(ctx, entry); err != nil {
			return err
		}
		entryID := entry.ID
		line.LedgerEntryID = &entryID
	}

	doc.MarkLocked()
	audit.EnrichUpdatedBy(ctx, &doc.BaseEntity)
	if err := s.repo.Update(ctx, doc); err != nil {
		return err
	}
	if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
		return fmt.Errorf("save lines: %w", err)
	}

	return s.deps.Finalize(ctx, entityName, &doc.Transaction, audit.ActionPost, workflow.EventStockInPosted, map[string]any{
		"type":        doc.Type.String(),
		"batchIds":    doc.BatchIDs(),
		"totalAmount": doc.TotalAmount.String(),
	})
}

// batchFor builds the batch a line creates, quantity in base units.
func (s *Service) batchFor(ctx context.Context, doc *StockIn, line *Line) (*ledger.Entry, error) {
	base, factor, err := s.deps.Normalizer.ToBase(ctx, line.Quantity, line.UnitID, line.MaterialID)
	if err != nil {
		return nil, err
	}
	if !base.IsPositive() {
		return nil, apperror.NewInvalidArgument("normalized quantity must be positive").
			WithDetail("lineNo", line.LineNo).
			WithDetail("baseQuantity", base.String())
	}
	pair := ledger.Pair{WarehouseID: doc.WarehouseID, MaterialID: line.MaterialID}
	policy, err := s.deps.Policies.PolicyFor(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("resolve policy: %w", err)
	}

	line.BaseQuantity = base
	line.ConversionFactor = factor
	return &ledger.Entry{
		ID:                  id.New(),
		BatchNumber:         doc.BatchNumber(*line),
		WarehouseID:         doc.WarehouseID,
		MaterialID:          line.MaterialID,
		SourceKind:          ledger.SourceStockIn,
		SourceTransactionID: doc.ID,
		SourceLineID:        line.LineID,
		TransactionDate:     doc.TransactionDate,
		Policy:              policy,
		Quantity:            base,
		RemainingQuantity:   base,
		UnitPrice:           ledger.PricePerBase(line.UnitPrice, factor),
		OriginalUnitID:      line.UnitID,
		OriginalQuantity:    line.Quantity,
		ConversionFactor:    factor,
	}, nil
}

// Preview shows the batches posting would create. Locked documents cannot
// be previewed.
func (s *Service) Preview(ctx context.Context, docID id.ID) (*ledger.Preview, error) {
	var out *ledger.Preview
	err := s.deps.TxManager.ReadOnly(ctx, func(ctx context.Context) error {
		doc, err := s.GetByID(ctx, docID)
		if err != nil {
			return err
		}
		if err := s.deps.EnsureModifiable(ctx, entityName, &doc.Transaction); err != nil {
			return err
		}

		out = &ledger.Preview{WarehouseID: doc.WarehouseID, Sufficient: true, Lines: make([]ledger.PreviewLine, 0, len(doc.Lines))}
		for i := range doc.Lines {
			line := doc.Lines[i]
			entry, err := s.batchFor(ctx, doc, &line)
			if err != nil {
				return err
			}
			amount := entry.Quantity.Mul(entry.UnitPrice)
			out.Lines = append(out.Lines, ledger.PreviewLine{
				LineNo:           line.LineNo,
				MaterialID:       line.MaterialID,
				UnitID:           line.UnitID,
				Quantity:         line.Quantity,
				BaseQuantity:     entry.Quantity,
				ConversionFactor: entry.ConversionFactor,
				Policy:           entry.Policy,
				Sufficient:       true,
				Available:        entry.Quantity,
				Batches: []ledger.PreviewBatch{{
					BatchNumber:     entry.BatchNumber,
					TransactionDate: entry.TransactionDate,
					QuantityUsed:    entry.Quantity,
					UnitPrice:       entry.UnitPrice,
					TotalAmount:     amount,
					RemainingAfter:  entry.Quantity,
				}},
				TotalQuantity: entry.Quantity,
				TotalAmount:   line.TotalAmount,
			})
			out.TotalQuantity = out.TotalQuantity.Add(entry.Quantity)
			out.GrandTotal = out.GrandTotal.Add(line.TotalAmount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func logPostFailure(ctx context.Context, docID id.ID, err error) {
	if appErr, ok := apperror.AsAppError(err); ok {
		logger.Warn(ctx, "stock-in post rejected", "id", docID, "code", appErr.Code)
		return
	}
	logger.Error(ctx, "stock-in post failed", "id", docID, "error", err)
}
