// Package workflow defines the contract of the external approval engine.
// The ledger only asks whether a transaction is finalized and reports
// successful postings; approval steps live entirely on the other side.
package workflow

import (
	"context"
	"time"

	"stockledger/internal/core/id"
)

// Event types reported through OnPosted.
const (
	EventStockInPosted          = "stock_in.posted"
	EventStockOutPosted         = "stock_out.posted"
	EventAdjustmentPosted       = "adjustment.posted"
	EventInventoryCountComplete = "inventory_count.completed"
)

// Event describes a document whose ledger effects were just applied.
type Event struct {
	Type          string         `json:"type"`
	TransactionID id.ID          `json:"transactionId"`
	Number        string         `json:"number"`
	WarehouseID   id.ID          `json:"warehouseId"`
	OccurredAt    time.Time      `json:"occurredAt"`
	Data          map[string]any `json:"data,omitempty"`
}

// Collaborator is the workflow engine as seen by the ledger.
type Collaborator interface {
	// IsLocked reports whether the workflow has finalized the transaction.
	IsLocked(ctx context.Context, transactionID id.ID) (bool, error)

	// OnPosted is called inside the posting transaction. An error rolls the
	// posting back.
	OnPosted(ctx context.Context, event Event) error
}

// Nop never locks and ignores notifications.
type Nop struct{}

var _ Collaborator = Nop{}

func (Nop) IsLocked(context.Context, id.ID) (bool, error) { return false, nil }

func (Nop) OnPosted(context.Context, Event) error { return nil }
