package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/id"
)

// Reader is the read side of the ledger used by planning and previews.
type Reader interface {
	// ListOrdered returns the open entries (remaining > 0) of the pair in
	// consumption order for the policy. Each call is a fresh read.
	ListOrdered(ctx context.Context, pair Pair, policy Policy) ([]Entry, error)

	// SumRemaining returns the total remaining quantity of the pair.
	SumRemaining(ctx context.Context, pair Pair) (decimal.Decimal, error)

	// GetByID returns one entry or a not-found error.
	GetByID(ctx context.Context, entryID id.ID) (*Entry, error)
}

// Store is the append-only batch ledger. Entries are never deleted and only
// their remaining quantity changes after insert.
type Store interface {
	Reader

	// Insert appends a new entry. Fails with an invalid-argument error when
	// the entry's quantity is not positive.
	Insert(ctx context.Context, entry *Entry) error

	// Decrement reduces the entry's remaining quantity by amount. Fails with
	// an insufficient-batch-quantity error when amount exceeds the remainder
	// at the moment of the write. Not safe to retry blindly.
	Decrement(ctx context.Context, entryID id.ID, amount decimal.Decimal) error

	// ListBySource returns the entries created by one document.
	ListBySource(ctx context.Context, kind SourceKind, transactionID id.ID) ([]Entry, error)

	// ListOpenByWarehouse returns every open entry of a warehouse ordered by
	// material and then FIFO order.
	ListOpenByWarehouse(ctx context.Context, warehouseID id.ID) ([]Entry, error)

	// SaveMappings appends consumption mappings.
	SaveMappings(ctx context.Context, mappings []Mapping) error

	// ListMappingsByTransaction returns the mappings written by one document.
	ListMappingsByTransaction(ctx context.Context, kind SourceKind, transactionID id.ID) ([]Mapping, error)

	// ListMappingsByEntry returns every consumption of one batch.
	ListMappingsByEntry(ctx context.Context, entryID id.ID) ([]Mapping, error)
}
