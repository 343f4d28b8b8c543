package entity

import (
	"context"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// Transaction is the header shared by stock-in, stock-out, adjustment and
// inventory count documents.
type Transaction struct {
	BaseEntity

	// Number is the document number (auto-generated, unique within type+period)
	Number string `db:"number" json:"number"`

	// TransactionDate is the business date; it drives FIFO/LIFO ordering of
	// the batches the document creates.
	TransactionDate time.Time `db:"transaction_date" json:"transactionDate"`

	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	// Locked is set once the document's ledger effects are applied. Locked
	// documents and their ledger effects are immutable.
	Locked   bool       `db:"locked" json:"locked"`
	LockedAt *time.Time `db:"locked_at" json:"lockedAt,omitempty"`

	Notes string `db:"notes" json:"notes,omitempty"`
}

// NewTransaction creates an unlocked header.
func NewTransaction(warehouseID id.ID, date time.Time) Transaction {
	return Transaction{
		BaseEntity:      NewBaseEntity(),
		TransactionDate: date,
		WarehouseID:     warehouseID,
	}
}

// Validate implements Validatable interface.
func (t *Transaction) Validate(ctx context.Context) error {
	if id.IsNil(t.WarehouseID) {
		return apperror.NewValidation("warehouse is required").
			WithDetail("field", "warehouseId")
	}
	if t.TransactionDate.IsZero() {
		return apperror.NewValidation("transaction date is required").
			WithDetail("field", "transactionDate")
	}
	return nil
}

// CanModify fails with a locked-transaction error once the document is locked.
func (t *Transaction) CanModify(entityName string) error {
	if t.Locked {
		return apperror.NewLockedTransaction(entityName, t.ID.String())
	}
	return nil
}

// MarkLocked sets the locked flag.
func (t *Transaction) MarkLocked() {
	now := time.Now().UTC()
	t.Locked = true
	t.LockedAt = &now
	t.Touch()
}

// IsLocked reports the document's own locked flag.
func (t *Transaction) IsLocked() bool {
	return t.Locked
}
