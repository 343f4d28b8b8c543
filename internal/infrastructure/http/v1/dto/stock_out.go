package dto

import (
	"github.com/shopspring/decimal"

	"stockledger/internal/domain/documents/stock_out"
)

// --- Request DTOs ---

// StockOutRequest is the body of create and update requests.
type StockOutRequest struct {
	DocumentHeader
	Type                   stock_out.Type        `json:"type" binding:"required"`
	DestinationWarehouseID *string               `json:"destinationWarehouseId,omitempty" binding:"omitempty,uuid"`
	CustomerID             *string               `json:"customerId,omitempty" binding:"omitempty,uuid"`
	DisposalReason         string                `json:"disposalReason,omitempty" binding:"max=500"`
	Lines                  []StockOutLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// StockOutLineRequest is one issued material.
type StockOutLineRequest struct {
	MaterialID string          `json:"materialId" binding:"required,uuid"`
	UnitID     string          `json:"unitId" binding:"required,uuid"`
	Quantity   decimal.Decimal `json:"quantity" binding:"decimal_gt0"`
	Notes      string          `json:"notes,omitempty"`
}

// CreateStockOutRequest adds the post flag.
type CreateStockOutRequest struct {
	StockOutRequest
	PostFlag
}

// ToEntity converts request to domain entity.
func (r *StockOutRequest) ToEntity() *stock_out.StockOut {
	doc := stock_out.New(mustID(r.WarehouseID), r.Type, r.TransactionDate)
	r.ApplyTo(doc)
	return doc
}

// ApplyTo replaces the editable fields and lines of doc.
func (r *StockOutRequest) ApplyTo(doc *stock_out.StockOut) {
	doc.Number = r.Number
	doc.TransactionDate = r.TransactionDate
	doc.WarehouseID = mustID(r.WarehouseID)
	doc.Notes = r.Notes
	doc.Type = r.Type
	doc.DestinationWarehouseID = optionalID(r.DestinationWarehouseID)
	doc.CustomerID = optionalID(r.CustomerID)
	doc.DisposalReason = r.DisposalReason

	doc.Lines = make([]stock_out.Line, 0, len(r.Lines))
	for _, line := range r.Lines {
		doc.AddLine(mustID(line.MaterialID), mustID(line.UnitID), line.Quantity, line.Notes)
	}
}
