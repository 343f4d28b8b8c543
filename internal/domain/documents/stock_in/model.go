// Package stock_in provides the stock-in (receipt) document. Posting a
// stock-in appends one ledger batch per line.
package stock_in

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/enum"
	"stockledger/internal/core/id"
)

// Type is the origin of the received material.
type Type uint8

const (
	TypeExternal         Type = 1
	TypeInternalTransfer Type = 2
)

var typeTable = enum.NewTable("stock-in type",
	enum.Member[Type]{Value: TypeExternal, Name: "EXTERNAL"},
	enum.Member[Type]{Value: TypeInternalTransfer, Name: "INTERNAL_TRANSFER"},
)

// ParseType converts an integer code.
func ParseType(code int) (Type, error) { return typeTable.FromCode(code) }

func (t Type) String() string { return typeTable.Name(t) }

func (t Type) Valid() bool { return typeTable.Valid(t) }

func (t Type) MarshalJSON() ([]byte, error) { return typeTable.Marshal(t) }

func (t *Type) UnmarshalJSON(data []byte) error { return typeTable.Unmarshal(data, t) }

// StockIn is a receipt of material into a warehouse.
type StockIn struct {
	entity.Transaction

	Type            Type   `db:"type" json:"type"`
	SupplierID      *id.ID `db:"supplier_id" json:"supplierId,omitempty"`
	ReferenceNumber string `db:"reference_number" json:"referenceNumber,omitempty"`

	// RelatedTransactionID is the source stock-out of an internal transfer.
	RelatedTransactionID *id.ID `db:"related_transaction_id" json:"relatedTransactionId,omitempty"`

	TotalAmount decimal.Decimal `db:"total_amount" json:"totalAmount"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one received material. Quantity and UnitPrice are in the line's
// unit; the batch stores BaseQuantity and the price per base unit.
type Line struct {
	LineID     id.ID           `db:"line_id" json:"lineId"`
	LineNo     int             `db:"line_no" json:"lineNo"`
	MaterialID id.ID           `db:"material_id" json:"materialId"`
	UnitID     id.ID           `db:"unit_id" json:"unitId"`
	Quantity   decimal.Decimal `db:"quantity" json:"quantity"`
	UnitPrice  decimal.Decimal `db:"unit_price" json:"unitPrice"`
	Notes      string          `db:"notes" json:"notes,omitempty"`

	BaseQuantity     decimal.Decimal `db:"base_quantity" json:"baseQuantity"`
	ConversionFactor decimal.Decimal `db:"conversion_factor" json:"conversionFactor"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"totalAmount"`

	// LedgerEntryID is the batch created when the document was posted.
	LedgerEntryID *id.ID `db:"ledger_entry_id" json:"ledgerEntryId,omitempty"`
}

// New creates an unlocked stock-in.
func New(warehouseID id.ID, typ Type, date time.Time) *StockIn {
	return &StockIn{
		Transaction: entity.NewTransaction(warehouseID, date),
		Type:        typ,
		Lines:       make([]Line, 0),
	}
}

// AddLine appends a line and recalculates totals.
func (s *StockIn) AddLine(materialID, unitID id.ID, quantity, unitPrice decimal.Decimal, notes string) {
	s.Lines = append(s.Lines, Line{
		LineID:     id.New(),
		LineNo:     len(s.Lines) + 1,
		MaterialID: materialID,
		UnitID:     unitID,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		Notes:      notes,
	})
	s.Recalculate()
}

// Recalculate renumbers lines and recomputes line and header totals.
func (s *StockIn) Recalculate() {
	s.TotalAmount = decimal.Zero
	for i := range s.Lines {
		l := &s.Lines[i]
		if id.IsNil(l.LineID) {
			l.LineID = id.New()
		}
		l.LineNo = i + 1
		l.TotalAmount = l.Quantity.Mul(l.UnitPrice)
		s.TotalAmount = s.TotalAmount.Add(l.TotalAmount)
	}
}

// BatchIDs returns the batches generated by posting, in line order.
func (s *StockIn) BatchIDs() []id.ID {
	out := make([]id.ID, 0, len(s.Lines))
	for _, l := range s.Lines {
		if l.LedgerEntryID != nil {
			out = append(out, *l.LedgerEntryID)
		}
	}
	return out
}

// BatchNumber is the human-readable number of the batch created by line.
func (s *StockIn) BatchNumber(line Line) string {
	return fmt.Sprintf("%s-%d", s.Number, line.LineNo)
}

// Validate implements entity.Validatable.
func (s *StockIn) Validate(ctx context.Context) error {
	if err := s.Transaction.Validate(ctx); err != nil {
		return err
	}
	if !s.Type.Valid() {
		return apperror.NewValidation("unknown stock-in type").
			WithDetail("field", "type").
			WithDetail("value", uint8(s.Type))
	}
	if s.Type == TypeInternalTransfer && s.RelatedTransactionID == nil {
		return apperror.NewValidation("internal transfer requires the source stock-out").
			WithDetail("field", "relatedTransactionId")
	}
	if len(s.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}

	for _, line := range s.Lines {
		if id.IsNil(line.MaterialID) || id.IsNil(line.UnitID) {
			return apperror.NewValidation("material and unit are required").
				WithDetail("field", "lines").
				WithDetail("lineNo", line.LineNo)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewInvalidArgument("quantity must be positive").
				WithDetail("lineNo", line.LineNo).
				WithDetail("quantity", line.Quantity.String())
		}
		// Transfers carry the source cost, which may legitimately be zero.
		if line.UnitPrice.IsNegative() || (s.Type == TypeExternal && line.UnitPrice.IsZero()) {
			return apperror.NewInvalidArgument("unit price must be positive").
				WithDetail("lineNo", line.LineNo).
				WithDetail("unitPrice", line.UnitPrice.String())
		}
	}
	return nil
}
