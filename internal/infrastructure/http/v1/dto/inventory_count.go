package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/domain/documents/inventory_count"
	"stockledger/internal/domain/ledger"
)

// --- Request DTOs ---

// InventoryCountRequest is the body of POST /inventory-counts and
// PUT /inventory-counts/:id.
type InventoryCountRequest struct {
	Number      string                      `json:"number,omitempty" binding:"max=64"`
	CountDate   time.Time                   `json:"countDate" binding:"required"`
	WarehouseID string                      `json:"warehouseId" binding:"required,uuid"`
	Notes       string                      `json:"notes,omitempty" binding:"max=2000"`
	Lines       []InventoryCountLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// InventoryCountLineRequest is the counted quantity of one batch.
type InventoryCountLineRequest struct {
	LedgerEntryID  string          `json:"inventoryLedgerId" binding:"required,uuid"`
	MaterialID     string          `json:"materialId" binding:"required,uuid"`
	UnitID         string          `json:"unitId" binding:"required,uuid"`
	ActualQuantity decimal.Decimal `json:"actualQuantity" binding:"decimal_gte0"`
	Notes          string          `json:"notes,omitempty"`
}

// ToEntity converts request to domain entity.
func (r *InventoryCountRequest) ToEntity() *inventory_count.InventoryCount {
	doc := inventory_count.New(mustID(r.WarehouseID), r.CountDate)
	r.ApplyTo(doc)
	return doc
}

// ApplyTo replaces the editable fields and lines of doc.
func (r *InventoryCountRequest) ApplyTo(doc *inventory_count.InventoryCount) {
	doc.Number = r.Number
	doc.TransactionDate = r.CountDate
	doc.WarehouseID = mustID(r.WarehouseID)
	doc.Notes = r.Notes

	doc.Lines = make([]inventory_count.Line, 0, len(r.Lines))
	for _, line := range r.Lines {
		doc.AddLine(mustID(line.LedgerEntryID), mustID(line.MaterialID), mustID(line.UnitID), line.ActualQuantity, line.Notes)
	}
}

// BatchesQuery selects the warehouse whose open batches are listed.
type BatchesQuery struct {
	WarehouseID string `form:"warehouseId" binding:"required,uuid"`
}

// --- Response DTOs ---

// CountSheetLine is one open batch on a count sheet.
type CountSheetLine struct {
	LedgerEntryID     string          `json:"inventoryLedgerId"`
	BatchNumber       string          `json:"batchNumber"`
	MaterialID        string          `json:"materialId"`
	TransactionDate   time.Time       `json:"transactionDate"`
	RemainingQuantity decimal.Decimal `json:"remainingQuantity"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
}

// FromEntries converts open batches into count sheet lines.
func FromEntries(entries []ledger.Entry) []CountSheetLine {
	out := make([]CountSheetLine, len(entries))
	for i, e := range entries {
		out[i] = CountSheetLine{
			LedgerEntryID:     e.ID.String(),
			BatchNumber:       e.BatchNumber,
			MaterialID:        e.MaterialID.String(),
			TransactionDate:   e.TransactionDate,
			RemainingQuantity: e.RemainingQuantity,
			UnitPrice:         e.UnitPrice,
		}
	}
	return out
}
