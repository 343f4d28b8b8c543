package document_repo

import (
	"stockledger/internal/core/entity"
	"stockledger/internal/domain/documents/adjustment"
	"stockledger/internal/domain/documents/inventory_count"
	"stockledger/internal/domain/documents/stock_in"
	"stockledger/internal/domain/documents/stock_out"
	"stockledger/internal/infrastructure/storage/postgres"
)

var (
	_ stock_in.Repository        = (*BaseDocumentRepo[stock_in.StockIn, stock_in.Line])(nil)
	_ stock_out.Repository       = (*BaseDocumentRepo[stock_out.StockOut, stock_out.Line])(nil)
	_ adjustment.Repository      = (*BaseDocumentRepo[adjustment.Adjustment, adjustment.Line])(nil)
	_ inventory_count.Repository = (*BaseDocumentRepo[inventory_count.InventoryCount, inventory_count.Line])(nil)
)

// NewStockInRepo creates the stock-in repository.
func NewStockInRepo(txm *postgres.TxManager) *BaseDocumentRepo[stock_in.StockIn, stock_in.Line] {
	return NewBaseDocumentRepo[stock_in.StockIn, stock_in.Line](txm,
		"stock-in", "doc_stock_in", "doc_stock_in_lines",
		func(d *stock_in.StockIn) *entity.Transaction { return &d.Transaction })
}

// NewStockOutRepo creates the stock-out repository.
func NewStockOutRepo(txm *postgres.TxManager) *BaseDocumentRepo[stock_out.StockOut, stock_out.Line] {
	return NewBaseDocumentRepo[stock_out.StockOut, stock_out.Line](txm,
		"stock-out", "doc_stock_out", "doc_stock_out_lines",
		func(d *stock_out.StockOut) *entity.Transaction { return &d.Transaction })
}

// NewAdjustmentRepo creates the adjustment repository.
func NewAdjustmentRepo(txm *postgres.TxManager) *BaseDocumentRepo[adjustment.Adjustment, adjustment.Line] {
	return NewBaseDocumentRepo[adjustment.Adjustment, adjustment.Line](txm,
		"adjustment", "doc_adjustment", "doc_adjustment_lines",
		func(d *adjustment.Adjustment) *entity.Transaction { return &d.Transaction })
}

// NewInventoryCountRepo creates the inventory count repository.
func NewInventoryCountRepo(txm *postgres.TxManager) *BaseDocumentRepo[inventory_count.InventoryCount, inventory_count.Line] {
	return NewBaseDocumentRepo[inventory_count.InventoryCount, inventory_count.Line](txm,
		"inventory-count", "doc_inventory_count", "doc_inventory_count_lines",
		func(d *inventory_count.InventoryCount) *entity.Transaction { return &d.Transaction })
}
