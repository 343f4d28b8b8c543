package stock_in

import (
	"context"

	"stockledger/internal/core/id"
)

// Repository defines operations for stock-in documents.
type Repository interface {
	Create(ctx context.Context, doc *StockIn) error
	GetByID(ctx context.Context, docID id.ID) (*StockIn, error)

	// Update saves the header when doc.Version still matches the stored
	// version and advances doc.Version; otherwise it fails with a
	// concurrent-modification error.
	Update(ctx context.Context, doc *StockIn) error
	Delete(ctx context.Context, docID id.ID) error

	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error
}
