package dto

import (
	"github.com/shopspring/decimal"

	"stockledger/internal/domain/documents/stock_in"
)

// --- Request DTOs ---

// StockInRequest is the body of create and update requests. Transfers are
// received by posting a stock-out, so only EXTERNAL receipts come in here.
type StockInRequest struct {
	DocumentHeader
	SupplierID      *string              `json:"supplierId,omitempty" binding:"omitempty,uuid"`
	ReferenceNumber string               `json:"referenceNumber,omitempty" binding:"max=128"`
	Lines           []StockInLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// StockInLineRequest is one received material.
type StockInLineRequest struct {
	MaterialID string          `json:"materialId" binding:"required,uuid"`
	UnitID     string          `json:"unitId" binding:"required,uuid"`
	Quantity   decimal.Decimal `json:"quantity" binding:"decimal_gt0"`
	UnitPrice  decimal.Decimal `json:"unitPrice" binding:"decimal_gt0"`
	Notes      string          `json:"notes,omitempty"`
}

// CreateStockInRequest adds the post flag.
type CreateStockInRequest struct {
	StockInRequest
	PostFlag
}

// ToEntity converts request to domain entity.
func (r *StockInRequest) ToEntity() *stock_in.StockIn {
	doc := stock_in.New(mustID(r.WarehouseID), stock_in.TypeExternal, r.TransactionDate)
	r.ApplyTo(doc)
	return doc
}

// ApplyTo replaces the editable fields and lines of doc.
func (r *StockInRequest) ApplyTo(doc *stock_in.StockIn) {
	doc.Number = r.Number
	doc.TransactionDate = r.TransactionDate
	doc.WarehouseID = mustID(r.WarehouseID)
	doc.Notes = r.Notes
	doc.SupplierID = optionalID(r.SupplierID)
	doc.ReferenceNumber = r.ReferenceNumber

	doc.Lines = make([]stock_in.Line, 0, len(r.Lines))
	for _, line := range r.Lines {
		doc.AddLine(mustID(line.MaterialID), mustID(line.UnitID), line.Quantity, line.UnitPrice, line.Notes)
	}
}
