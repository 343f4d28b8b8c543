package dto

import (
	"github.com/shopspring/decimal"

	"stockledger/internal/domain/ledger"
)

// --- Request DTOs ---

// PreviewRequest is the body of POST /ledger/preview.
type PreviewRequest struct {
	WarehouseID string               `json:"warehouseId" binding:"required,uuid"`
	Items       []PreviewItemRequest `json:"items" binding:"required,min=1,dive"`
}

// PreviewItemRequest is one line to preview.
type PreviewItemRequest struct {
	MaterialID    string          `json:"materialId" binding:"required,uuid"`
	UnitID        string          `json:"unitId" binding:"required,uuid"`
	Quantity      decimal.Decimal `json:"quantity" binding:"decimal_gt0"`
	LedgerEntryID *string         `json:"inventoryLedgerId,omitempty" binding:"omitempty,uuid"`
}

// PreviewItems converts the request into previewer input.
func (r *PreviewRequest) PreviewItems() []ledger.PreviewItem {
	items := make([]ledger.PreviewItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = ledger.PreviewItem{
			LineNo:        i + 1,
			MaterialID:    mustID(item.MaterialID),
			UnitID:        mustID(item.UnitID),
			Quantity:      item.Quantity,
			LedgerEntryID: optionalID(item.LedgerEntryID),
		}
	}
	return items
}

// --- Response DTOs ---

// BatchResponse is one batch with every consumption recorded against it.
type BatchResponse struct {
	ledger.Entry
	ConsumedQuantity decimal.Decimal  `json:"consumedQuantity"`
	Mappings         []ledger.Mapping `json:"mappings"`
}

// FromEntry builds the traceback view of a batch.
func FromEntry(e *ledger.Entry, mappings []ledger.Mapping) *BatchResponse {
	if mappings == nil {
		mappings = make([]ledger.Mapping, 0)
	}
	return &BatchResponse{
		Entry:            *e,
		ConsumedQuantity: e.Consumed(),
		Mappings:         mappings,
	}
}
