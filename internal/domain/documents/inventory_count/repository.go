package inventory_count

import (
	"context"

	"stockledger/internal/core/id"
)

// Repository defines operations for inventory counts.
type Repository interface {
	Create(ctx context.Context, doc *InventoryCount) error
	GetByID(ctx context.Context, docID id.ID) (*InventoryCount, error)
	Update(ctx context.Context, doc *InventoryCount) error
	Delete(ctx context.Context, docID id.ID) error

	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error
}
