package stock_out

import (
	"context"

	"stockledger/internal/core/id"
)

// Repository defines operations for stock-out documents. Batch mappings are
// owned by the ledger, not by this repository.
type Repository interface {
	Create(ctx context.Context, doc *StockOut) error
	GetByID(ctx context.Context, docID id.ID) (*StockOut, error)
	Update(ctx context.Context, doc *StockOut) error
	Delete(ctx context.Context, docID id.ID) error

	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error
}
