package stock_out

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/documents/stock_in"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/posting"
	"stockledger/internal/domain/workflow"
	"stockledger/pkg/logger"
)

// Receiver creates and posts the destination receipt of a transfer inside
// the caller's transaction.
type Receiver interface {
	CreateAndPost(ctx context.Context, doc *stock_in.StockIn) error
}

// Service provides business operations for stock-out documents.
type Service struct {
	repo     Repository
	receiver Receiver
	deps     domain.Deps
}

// NewService creates a new stock-out service.
func NewService(repo Repository, receiver Receiver, deps domain.Deps) *Service {
	return &Service{repo: repo, receiver: receiver, deps: deps.WithDefaults()}
}

// Create stores a new unlocked stock-out.
func (s *Service) Create(ctx context.Context, doc *StockOut) error {
	if err := s.prepare(ctx, doc); err != nil {
		return err
	}
	err := s.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.create(ctx, doc)
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "stock-out created", "id", doc.ID, "number", doc.Number, "type", doc.Type.String())
	return nil
}

func (s *Service) prepare(ctx context.Context, doc *StockOut) error {
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

func (s *Service) create(ctx context.Context, doc *StockOut) error {
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

// GetByID retrieves a stock-out with lines and, once posted, the batch
// mappings of every line.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*StockOut, error) {
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
	mappings, err := s.deps.Ledger().ListMappingsByTransaction(ctx, ledger.SourceStockOut, docID)
	if err != nil {
		return nil, fmt.Errorf("get mappings: %w", err)
	}
	byLine := make(map[id.ID][]ledger.Mapping, len(doc.Lines))
	for _, m := range mappings {
		byLine[m.LineID] = append(byLine[m.LineID], m)
	}
	for i := range doc.Lines {
		doc.Lines[i].BatchMappings = byLine[doc.Lines[i].LineID]
	}
	return doc, nil
}

// Update replaces the editable fields and lines of an unlocked stock-out.
func (s *Service) Update(ctx context.Context, doc *StockOut) error {
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
		doc.Renumber()
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

// Delete removes an unlocked stock-out.
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

// Post allocates every line and locks the document. A line that cannot be
// covered in full fails the whole document and leaves the ledger unchanged.
func (s *Service) Post(ctx context.Context, docID id.ID) (*StockOut, error) {
	before, err := s.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	// Refuse early, before taking any allocation lock.
	if err := s.deps.EnsureModifiable(ctx, entityName, &before.Transaction); err != nil {
		return nil, err
	}

	var doc *StockOut
	err = s.deps.Engine.Execute(ctx, before.Pairs(), func(ctx context.Context) error {
		var err error
		doc, err = s.GetByID(ctx, docID)
		if err != nil {
			return err
		}
		if err := domain.EnsureSameVersion(entityName, &before.Transaction, &doc.Transaction); err != nil {
			return err
		}
		return s.post(ctx, doc)
	})
	if err != nil {
		logPostFailure(ctx, docID, err)
		return nil, err
	}
	s.logPosted(ctx, doc)
	return doc, nil
}

// CreateAndPost stores and posts doc in one transaction.
func (s *Service) CreateAndPost(ctx context.Context, doc *StockOut) error {
	if err := s.prepare(ctx, doc); err != nil {
		return err
	}
	err := s.deps.Engine.Execute(ctx, doc.Pairs(), func(ctx context.Context) error {
		if err := s.create(ctx, doc); err != nil {
			return err
		}
		return s.post(ctx, doc)
	})
	if err != nil {
		logPostFailure(ctx, doc.ID, err)
		return err
	}
	s.logPosted(ctx, doc)
	return nil
}

// post must run inside Execute holding the document's pairs.
func (s *Service) post(ctx context.Context, doc *StockOut) error {
	if err := s.deps.EnsureModifiable(ctx, entityName, &doc.Transaction); err != nil {
		return err
	}
	if err := doc.Validate(ctx); err != nil {
		return domain.NormalizeValidationErr(err)
	}

	doc.TotalAmount = decimal.Zero
	for i := range doc.Lines {
		line := &doc.Lines[i]
		if err := s.allocate(ctx, doc, line); err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				return appErr.WithDetail("lineNo", line.LineNo)
			}
			return fmt.Errorf("line %d: %w", line.LineNo, err)
		}
		doc.TotalAmount = doc.TotalAmount.Add(line.TotalAmount)
	}

	if doc.Type == TypeTransfer {
		receipt, err := s.receipt(ctx, doc)
		if err != nil {
			return err
		}
		if err := s.receiver.CreateAndPost(ctx, receipt); err != nil {
			return fmt.Errorf("transfer receipt: %w", err)
		}
		receiptID := receipt.ID
		doc.RelatedTransactionID = &receiptID
	}

	doc.MarkLocked()
	audit.EnrichUpdatedBy(ctx, &doc.BaseEntity)
	if err := s.repo.Update(ctx, doc); err != nil {
		return err
	}
	if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
		return fmt.Errorf("save lines: %w", err)
	}

	changes := map[string]any{
		"type":        doc.Type.String(),
		"mappings":    doc.MappingsSnapshot(),
		"totalAmount": doc.TotalAmount.String(),
	}
	if doc.RelatedTransactionID != nil {
		changes["relatedTransactionId"] = doc.RelatedTransactionID.String()
	}
	return s.deps.Finalize(ctx, entityName, &doc.Transaction, audit.ActionPost, workflow.EventStockOutPosted, changes)
}

func (s *Service) allocate(ctx context.Context, doc *StockOut, line *Line) error {
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

	mappings, err := s.deps.Engine.Consume(ctx, posting.ConsumeRequest{
		Kind:          ledger.SourceStockOut,
		TransactionID: doc.ID,
		LineID:        line.LineID,
		Pair:          pair,
		Quantity:      base,
		Policy:        policy,
	})
	if err != nil {
		return err
	}

	_, amount := ledger.SumMappings(mappings)
	line.BaseQuantity = base
	line.ConversionFactor = factor
	line.BatchMappings = mappings
	line.TotalAmount = amount
	line.AverageUnitCost = amount.DivRound(base, s.deps.PriceScale)
	return nil
}

// receipt builds the destination stock-in of a transfer. Lines are in the
// material's base unit and carry the source cost per base unit.
func (s *Service) receipt(ctx context.Context, doc *StockOut) (*stock_in.StockIn, error) {
	in := stock_in.New(*doc.DestinationWarehouseID, stock_in.TypeInternalTransfer, doc.TransactionDate)
	sourceID := doc.ID
	in.RelatedTransactionID = &sourceID
	in.ReferenceNumber = doc.Number
	in.Notes = doc.Notes

	for _, line := range doc.Lines {
		unitID, err := s.deps.Normalizer.BaseUnit(ctx, line.MaterialID)
		if err != nil {
			return nil, err
		}
		in.AddLine(line.MaterialID, unitID, line.BaseQuantity, line.AverageUnitCost, line.Notes)
	}
	return in, nil
}

// Preview shows which batches posting would consume now. Locked documents
// cannot be previewed.
func (s *Service) Preview(ctx context.Context, docID id.ID) (*ledger.Preview, error) {
	doc, err := s.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := s.deps.EnsureModifiable(ctx, entityName, &doc.Transaction); err != nil {
		return nil, err
	}
	return s.deps.Previewer.Preview(ctx, doc.WarehouseID, doc.PreviewItems())
}

func (s *Service) logPosted(ctx context.Context, doc *StockOut) {
	mappings := 0
	for _, line := range doc.Lines {
		mappings += len(line.BatchMappings)
	}
	logger.Info(ctx, "stock-out posted",
		"id", doc.ID, "number", doc.Number, "mappings", mappings, "total", doc.TotalAmount.String())
}

func logPostFailure(ctx context.Context, docID id.ID, err error) {
	if appErr, ok := apperror.AsAppError(err); ok {
		logger.Warn(ctx, "stock-out post rejected", "id", docID, "code", appErr.Code)
		return
	}
	logger.Error(ctx, "stock-out post failed", "id", docID, "error", err)
}
