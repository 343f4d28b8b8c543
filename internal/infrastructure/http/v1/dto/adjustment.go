package dto

import (
	"github.com/shopspring/decimal"

	"stockledger/internal/domain/documents/adjustment"
)

// --- Request DTOs ---

// CreateAdjustmentRequest is the body of POST /adjustments.
type CreateAdjustmentRequest struct {
	DocumentHeader
	PostFlag
	Type        adjustment.Type         `json:"adjustmentType" binding:"required"`
	Reason      string                  `json:"reason,omitempty" binding:"max=500"`
	PerformedBy *string                 `json:"performedBy,omitempty" binding:"omitempty,uuid"`
	Lines       []AdjustmentLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// AdjustmentLineRequest is one adjusted material. Direction may be omitted
// on INCREASE and DECREASE documents.
type AdjustmentLineRequest struct {
	Direction     adjustment.Direction `json:"direction,omitempty"`
	MaterialID    string               `json:"materialId" binding:"required,uuid"`
	UnitID        string               `json:"unitId" binding:"required,uuid"`
	Quantity      decimal.Decimal      `json:"quantity" binding:"decimal_gt0"`
	UnitPrice     decimal.Decimal      `json:"unitPrice" binding:"decimal_gte0"`
	LedgerEntryID *string              `json:"inventoryLedgerId,omitempty" binding:"omitempty,uuid"`
	Notes         string               `json:"notes,omitempty"`
}

// ToEntity converts request to domain entity.
func (r *CreateAdjustmentRequest) ToEntity() *adjustment.Adjustment {
	doc := adjustment.New(mustID(r.WarehouseID), r.Type, r.TransactionDate)
	doc.Number = r.Number
	doc.Notes = r.Notes
	doc.Reason = r.Reason
	doc.PerformedBy = optionalID(r.PerformedBy)

	for _, line := range r.Lines {
		doc.AddLine(adjustment.Line{
			Direction:     line.Direction,
			MaterialID:    mustID(line.MaterialID),
			UnitID:        mustID(line.UnitID),
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			LedgerEntryID: optionalID(line.LedgerEntryID),
			Notes:         line.Notes,
		})
	}
	return doc
}
