// Package adjustment provides the stock adjustment document. Increase lines
// append a new batch; decrease lines take quantity from one named batch or,
// when none is named, from the batches selected by the allocation policy.
package adjustment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/enum"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

// Type is the kind of adjustment document.
type Type uint8

const (
	TypeIncrease       Type = 1
	TypeDecrease       Type = 2
	TypeInventoryCount Type = 3
)

var typeTable = enum.NewTable("adjustment type",
	enum.Member[Type]{Value: TypeIncrease, Name: "INCREASE"},
	enum.Member[Type]{Value: TypeDecrease, Name: "DECREASE"},
	enum.Member[Type]{Value: TypeInventoryCount, Name: "INVENTORY_COUNT"},
)

// ParseType converts an integer code.
func ParseType(code int) (Type, error) { return typeTable.FromCode(code) }

func (t Type) String() string { return typeTable.Name(t) }

func (t Type) Valid() bool { return typeTable.Valid(t) }

func (t Type) MarshalJSON() ([]byte, error) { return typeTable.Marshal(t) }

func (t *Type) UnmarshalJSON(data []byte) error { return typeTable.Unmarshal(data, t) }

// Direction is the effect of one line.
type Direction uint8

const (
	DirectionIncrease Direction = 1
	DirectionDecrease Direction = 2
)

var directionTable = enum.NewTable("adjustment direction",
	enum.Member[Direction]{Value: DirectionIncrease, Name: "INCREASE"},
	enum.Member[Direction]{Value: DirectionDecrease, Name: "DECREASE"},
)

// ParseDirection converts an integer code.
func ParseDirection(code int) (Direction, error) { return directionTable.FromCode(code) }

func (d Direction) String() string { return directionTable.Name(d) }

func (d Direction) Valid() bool { return directionTable.Valid(d) }

func (d Direction) MarshalJSON() ([]byte, error) { return directionTable.Marshal(d) }

func (d *Direction) UnmarshalJSON(data []byte) error { return directionTable.Unmarshal(data, d) }

// Adjustment corrects warehouse stock outside receipts and issues.
type Adjustment struct {
	entity.Transaction

	Type        Type   `db:"type" json:"adjustmentType"`
	Reason      string `db:"reason" json:"reason,omitempty"`
	PerformedBy *id.ID `db:"performed_by" json:"performedBy,omitempty"`

	// InventoryCountID is the count an INVENTORY_COUNT adjustment reconciles.
	InventoryCountID *id.ID `db:"inventory_count_id" json:"inventoryCountId,omitempty"`

	// TotalAmount is the cost added by increases minus the cost removed by decreases.
	TotalAmount decimal.Decimal `db:"total_amount" json:"totalAmount"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one adjusted material.
type Line struct {
	LineID     id.ID           `db:"line_id" json:"lineId"`
	LineNo     int             `db:"line_no" json:"lineNo"`
	Direction  Direction       `db:"direction" json:"direction"`
	MaterialID id.ID           `db:"material_id" json:"materialId"`
	UnitID     id.ID           `db:"unit_id" json:"unitId"`
	Quantity   decimal.Decimal `db:"quantity" json:"quantity"`
	Notes      string          `db:"notes" json:"notes,omitempty"`

	// UnitPrice is the price per line unit of an increase. When it is zero
	// and LedgerEntryID is set, the new batch takes that batch's price.
	UnitPrice decimal.Decimal `db:"unit_price" json:"unitPrice"`

	// LedgerEntryID is the batch a decrease takes from. On an increase it only
	// names the batch the price is taken from; increases always create a batch.
	LedgerEntryID *id.ID `db:"ledger_entry_id" json:"inventoryLedgerId,omitempty"`

	BaseQuantity     decimal.Decimal `db:"base_quantity" json:"baseQuantity"`
	ConversionFactor decimal.Decimal `db:"conversion_factor" json:"conversionFactor"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"totalAmount"`

	// CreatedEntryID is the batch an increase created.
	CreatedEntryID *id.ID `db:"created_entry_id" json:"createdLedgerEntryId,omitempty"`

	BatchMappings []ledger.Mapping `db:"-" json:"batchMappings,omitempty"`
}

// New creates an unlocked adjustment.
func New(warehouseID id.ID, typ Type, date time.Time) *Adjustment {
	return &Adjustment{
		Transaction: entity.NewTransaction(warehouseID, date),
		Type:        typ,
		Lines:       make([]Line, 0),
	}
}

// AddLine appends a line. Direction zero takes the document's type.
func (a *Adjustment) AddLine(line Line) {
	line.LineID = id.New()
	a.Lines = append(a.Lines, line)
	a.Renumber()
}

// Renumber assigns line numbers and missing line ids, and fills the line
// direction from the document type of INCREASE and DECREASE adjustments.
func (a *Adjustment) Renumber() {
	for i := range a.Lines {
		l := &a.Lines[i]
		if id.IsNil(l.LineID) {
			l.LineID = id.New()
		}
		l.LineNo = i + 1
		if l.Direction == 0 {
			switch a.Type {
			case TypeIncrease:
				l.Direction = DirectionIncrease
			case TypeDecrease:
				l.Direction = DirectionDecrease
			}
		}
	}
}

// BatchNumber is the number of the batch an increase line creates.
func (a *Adjustment) BatchNumber(line Line) string {
	return fmt.Sprintf("%s-%d", a.Number, line.LineNo)
}

// Pairs returns the ledger pairs decrease lines allocate from.
func (a *Adjustment) Pairs() []ledger.Pair {
	out := make([]ledger.Pair, 0, len(a.Lines))
	for _, l := range a.Lines {
		if l.Direction == DirectionDecrease {
			out = append(out, ledger.Pair{WarehouseID: a.WarehouseID, MaterialID: l.MaterialID})
		}
	}
	return out
}

// Recalculate sums the line amounts into the header.
func (a *Adjustment) Recalculate() {
	a.TotalAmount = decimal.Zero
	for _, l := range a.Lines {
		if l.Direction == DirectionDecrease {
			a.TotalAmount = a.TotalAmount.Sub(l.TotalAmount)
			continue
		}
		a.TotalAmount = a.TotalAmount.Add(l.TotalAmount)
	}
}

// Validate implements entity.Validatable.
func (a *Adjustment) Validate(ctx context.Context) error {
	if err := a.Transaction.Validate(ctx); err != nil {
		return err
	}
	if !a.Type.Valid() {
		return apperror.NewValidation("unknown adjustment type").
			WithDetail("field", "adjustmentType").
			WithDetail("value", uint8(a.Type))
	}
	if a.Type == TypeInventoryCount && a.InventoryCountID == nil {
		return apperror.NewValidation("inventory count adjustment requires the count").
			WithDetail("field", "inventoryCountId")
	}
	if len(a.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}

	for _, line := range a.Lines {
		if id.IsNil(line.MaterialID) || id.IsNil(line.UnitID) {
			return apperror.NewValidation("material and unit are required").
				WithDetail("field", "lines").
				WithDetail("lineNo", line.LineNo)
		}
		if !line.Direction.Valid() {
			return apperror.NewValidation("unknown line direction").
				WithDetail("lineNo", line.LineNo).
				WithDetail("value", uint8(line.Direction))
		}
		if (a.Type == TypeIncrease && line.Direction != DirectionIncrease) ||
			(a.Type == TypeDecrease && line.Direction != DirectionDecrease) {
			return apperror.NewValidation("line direction does not match the adjustment type").
				WithDetail("lineNo", line.LineNo)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewInvalidArgument("quantity must be positive").
				WithDetail("lineNo", line.LineNo).
				WithDetail("quantity", line.Quantity.String())
		}
		if line.UnitPrice.IsNegative() {
			return apperror.NewInvalidArgument("unit price must not be negative").
				WithDetail("lineNo", line.LineNo).
				WithDetail("unitPrice", line.UnitPrice.String())
		}
	}
	return nil
}
