package adjustment

import (
	"context"

	"stockledger/internal/core/id"
)

// Repository defines operations for adjustment documents.
type Repository interface {
	Create(ctx context.Context, doc *Adjustment) error
	GetByID(ctx context.Context, docID id.ID) (*Adjustment, error)
	Update(ctx context.Context, doc *Adjustment) error
	Delete(ctx context.Context, docID id.ID) error

	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error
}
