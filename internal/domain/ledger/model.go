// Package ledger provides the batch ledger: entries (batches) per
// (warehouse, material), consumption mappings, unit normalization and
// FIFO/LIFO allocation planning.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/enum"
	"stockledger/internal/core/id"
)

// SourceKind identifies the document kind that created or consumed a batch.
type SourceKind uint8

const (
	SourceStockIn    SourceKind = 1
	SourceStockOut   SourceKind = 2
	SourceAdjustment SourceKind = 3
)

var sourceKinds = enum.NewTable("source kind",
	enum.Member[SourceKind]{Value: SourceStockIn, Name: "STOCK_IN"},
	enum.Member[SourceKind]{Value: SourceStockOut, Name: "STOCK_OUT"},
	enum.Member[SourceKind]{Value: SourceAdjustment, Name: "ADJUSTMENT"},
)

// ParseSourceKind converts an integer code.
func ParseSourceKind(code int) (SourceKind, error) { return sourceKinds.FromCode(code) }

func (k SourceKind) String() string { return sourceKinds.Name(k) }

// Valid reports whether k is a known kind.
func (k SourceKind) Valid() bool { return sourceKinds.Valid(k) }

func (k SourceKind) MarshalJSON() ([]byte, error) { return sourceKinds.Marshal(k) }

func (k *SourceKind) UnmarshalJSON(data []byte) error { return sourceKinds.Unmarshal(data, k) }

// Pair addresses the ledger of one material in one warehouse.
type Pair struct {
	WarehouseID id.ID
	MaterialID  id.ID
}

// LockKey is the name of the exclusive lock guarding allocation on the pair.
func (p Pair) LockKey() string {
	return fmt.Sprintf("ledger:%s:%s", p.WarehouseID, p.MaterialID)
}

// Entry is one batch: a receipt's worth of material at a fixed unit price.
// Quantities are in the material's base unit.
type Entry struct {
	ID          id.ID  `db:"id" json:"id"`
	BatchNumber string `db:"batch_number" json:"batchNumber"`

	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`
	MaterialID  id.ID `db:"material_id" json:"materialId"`

	SourceKind          SourceKind `db:"source_kind" json:"sourceKind"`
	SourceTransactionID id.ID      `db:"source_transaction_id" json:"sourceTransactionId"`
	SourceLineID        id.ID      `db:"source_line_id" json:"sourceLineId"`

	// TransactionDate, CreatedAt and ID form the allocation ordering key.
	TransactionDate time.Time `db:"transaction_date" json:"transactionDate"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`

	Policy Policy `db:"policy" json:"policy"`

	Quantity          decimal.Decimal `db:"quantity" json:"quantity"`
	RemainingQuantity decimal.Decimal `db:"remaining_quantity" json:"remainingQuantity"`
	UnitPrice         decimal.Decimal `db:"unit_price" json:"unitPrice"`

	// Receipt as entered, kept for display and traceback.
	OriginalUnitID   id.ID           `db:"original_unit_id" json:"originalUnitId"`
	OriginalQuantity decimal.Decimal `db:"original_quantity" json:"originalQuantity"`
	ConversionFactor decimal.Decimal `db:"conversion_factor" json:"conversionFactor"`
}

// Pair returns the ledger address of the entry.
func (e *Entry) Pair() Pair {
	return Pair{WarehouseID: e.WarehouseID, MaterialID: e.MaterialID}
}

// Consumed returns quantity - remainingQuantity.
func (e *Entry) Consumed() decimal.Decimal {
	return e.Quantity.Sub(e.RemainingQuantity)
}

// IsOpen reports whether the batch still has material.
func (e *Entry) IsOpen() bool {
	return e.RemainingQuantity.IsPositive()
}

// Validate checks the entry before it is appended.
func (e *Entry) Validate() error {
	if id.IsNil(e.WarehouseID) || id.IsNil(e.MaterialID) {
		return apperror.NewInvalidArgument("batch requires warehouse and material")
	}
	if !e.SourceKind.Valid() {
		return apperror.NewInvalidArgument("batch requires a source kind").
			WithDetail("sourceKind", uint8(e.SourceKind))
	}
	if !e.Policy.Valid() {
		return apperror.NewInvalidArgument("batch requires an allocation policy").
			WithDetail("policy", uint8(e.Policy))
	}
	if !e.Quantity.IsPositive() {
		return apperror.NewInvalidArgument("batch quantity must be positive").
			WithDetail("quantity", e.Quantity.String())
	}
	if e.RemainingQuantity.IsNegative() || e.RemainingQuantity.GreaterThan(e.Quantity) {
		return apperror.NewInvalidArgument("remaining quantity must be within [0, quantity]").
			WithDetail("remainingQuantity", e.RemainingQuantity.String())
	}
	if e.UnitPrice.IsNegative() {
		return apperror.NewInvalidArgument("unit price must not be negative").
			WithDetail("unitPrice", e.UnitPrice.String())
	}
	return nil
}

// Mapping records how much of one batch a stock-out or adjustment line
// consumed, at the batch's price at the time of use. Mappings are immutable.
type Mapping struct {
	ID            id.ID           `db:"id" json:"id"`
	Kind          SourceKind      `db:"kind" json:"kind"`
	TransactionID id.ID           `db:"transaction_id" json:"transactionId"`
	LineID        id.ID           `db:"line_id" json:"lineId"`
	LedgerEntryID id.ID           `db:"ledger_entry_id" json:"ledgerEntryId"`
	QuantityUsed  decimal.Decimal `db:"quantity_used" json:"quantityUsed"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unitPrice"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// Amount returns quantityUsed * unitPrice.
func (m Mapping) Amount() decimal.Decimal {
	return m.QuantityUsed.Mul(m.UnitPrice)
}

// SumMappings returns the total quantity and cost of a set of mappings.
func SumMappings(mappings []Mapping) (quantity, amount decimal.Decimal) {
	for _, m := range mappings {
		quantity = quantity.Add(m.QuantityUsed)
		amount = amount.Add(m.Amount())
	}
	return quantity, amount
}
