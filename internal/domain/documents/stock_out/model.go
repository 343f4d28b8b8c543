// Package stock_out provides the stock-out (issue) document. Posting a
// stock-out allocates every line from the warehouse batches by policy and
// records the consumed batches; a transfer also receives the material at the
// destination warehouse.
package stock_out

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/enum"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

// Type is the purpose of the issue.
type Type uint8

const (
	TypeTransfer Type = 1
	TypeSale     Type = 2
	TypeDisposal Type = 3
)

var typeTable = enum.NewTable("stock-out type",
	enum.Member[Type]{Value: TypeTransfer, Name: "TRANSFER"},
	enum.Member[Type]{Value: TypeSale, Name: "SALE"},
	enum.Member[Type]{Value: TypeDisposal, Name: "DISPOSAL"},
)

// ParseType converts an integer code.
func ParseType(code int) (Type, error) { return typeTable.FromCode(code) }

func (t Type) String() string { return typeTable.Name(t) }

func (t Type) Valid() bool { return typeTable.Valid(t) }

func (t Type) MarshalJSON() ([]byte, error) { return typeTable.Marshal(t) }

func (t *Type) UnmarshalJSON(data []byte) error { return typeTable.Unmarshal(data, t) }

// StockOut is an issue of material from a warehouse.
type StockOut struct {
	entity.Transaction

	Type                   Type   `db:"type" json:"type"`
	DestinationWarehouseID *id.ID `db:"destination_warehouse_id" json:"destinationWarehouseId,omitempty"`
	CustomerID             *id.ID `db:"customer_id" json:"customerId,omitempty"`
	DisposalReason         string `db:"disposal_reason" json:"disposalReason,omitempty"`

	// RelatedTransactionID is the stock-in a posted transfer created.
	RelatedTransactionID *id.ID `db:"related_transaction_id" json:"relatedTransactionId,omitempty"`

	// TotalAmount is the cost of the consumed batches.
	TotalAmount decimal.Decimal `db:"total_amount" json:"totalAmount"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one issued material.
type Line struct {
	LineID     id.ID           `db:"line_id" json:"lineId"`
	LineNo     int             `db:"line_no" json:"lineNo"`
	MaterialID id.ID           `db:"material_id" json:"materialId"`
	UnitID     id.ID           `db:"unit_id" json:"unitId"`
	Quantity   decimal.Decimal `db:"quantity" json:"quantity"`
	Notes      string          `db:"notes" json:"notes,omitempty"`

	BaseQuantity     decimal.Decimal `db:"base_quantity" json:"baseQuantity"`
	ConversionFactor decimal.Decimal `db:"conversion_factor" json:"conversionFactor"`

	// TotalAmount is sum(quantityUsed * unitPrice) over the mappings and
	// AverageUnitCost the cost per base unit.
	TotalAmount     decimal.Decimal `db:"total_amount" json:"totalAmount"`
	AverageUnitCost decimal.Decimal `db:"average_unit_cost" json:"averageUnitCost"`

	BatchMappings []ledger.Mapping `db:"-" json:"batchMappings"`
}

// New creates an unlocked stock-out.
func New(warehouseID id.ID, typ Type, date time.Time) *StockOut {
	return &StockOut{
		Transaction: entity.NewTransaction(warehouseID, date),
		Type:        typ,
		Lines:       make([]Line, 0),
	}
}

// AddLine appends a line.
func (s *StockOut) AddLine(materialID, unitID id.ID, quantity decimal.Decimal, notes string) {
	s.Lines = append(s.Lines, Line{
		LineID:     id.New(),
		LineNo:     len(s.Lines) + 1,
		MaterialID: materialID,
		UnitID:     unitID,
		Quantity:   quantity,
		Notes:      notes,
	})
}

// Renumber assigns line numbers and missing line ids.
func (s *StockOut) Renumber() {
	for i := range s.Lines {
		if id.IsNil(s.Lines[i].LineID) {
			s.Lines[i].LineID = id.New()
		}
		s.Lines[i].LineNo = i + 1
	}
}

// Pairs returns the ledger pairs the document allocates from.
func (s *StockOut) Pairs() []ledger.Pair {
	out := make([]ledger.Pair, 0, len(s.Lines))
	for _, l := range s.Lines {
		out = append(out, ledger.Pair{WarehouseID: s.WarehouseID, MaterialID: l.MaterialID})
	}
	return out
}

// PreviewItems converts the lines into preview input.
func (s *StockOut) PreviewItems() []ledger.PreviewItem {
	items := make([]ledger.PreviewItem, 0, len(s.Lines))
	for _, l := range s.Lines {
		items = append(items, ledger.PreviewItem{
			LineNo:     l.LineNo,
			MaterialID: l.MaterialID,
			UnitID:     l.UnitID,
			Quantity:   l.Quantity,
		})
	}
	return items
}

// MappingsSnapshot flattens the batch mappings of all lines for the audit log.
func (s *StockOut) MappingsSnapshot() []map[string]any {
	out := make([]map[string]any, 0, len(s.Lines))
	for _, line := range s.Lines {
		for _, m := range line.BatchMappings {
			out = append(out, map[string]any{
				"lineNo":        line.LineNo,
				"ledgerEntryId": m.LedgerEntryID.String(),
				"quantityUsed":  m.QuantityUsed.String(),
				"unitPrice":     m.UnitPrice.String(),
			})
		}
	}
	return out
}

// Validate implements entity.Validatable.
func (s *StockOut) Validate(ctx context.Context) error {
	if err := s.Transaction.Validate(ctx); err != nil {
		return err
	}

	switch s.Type {
	case TypeTransfer:
		if s.DestinationWarehouseID == nil || id.IsNil(*s.DestinationWarehouseID) {
			return apperror.NewValidation("transfer requires a destination warehouse").
				WithDetail("field", "destinationWarehouseId")
		}
		if *s.DestinationWarehouseID == s.WarehouseID {
			return apperror.NewValidation("destination must differ from the source warehouse").
				WithDetail("field", "destinationWarehouseId")
		}
	case TypeSale:
	case TypeDisposal:
		if strings.TrimSpace(s.DisposalReason) == "" {
			return apperror.NewValidation("disposal requires a reason").
				WithDetail("field", "disposalReason")
		}
	default:
		return apperror.NewValidation("unknown stock-out type").
			WithDetail("field", "type").
			WithDetail("value", uint8(s.Type))
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
	}
	return nil
}
