// Package app wires the document services from a storage driver and its
// collaborators. cmd/server and the tests share it.
package app

import (
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/documents/adjustment"
	"stockledger/internal/domain/documents/inventory_count"
	"stockledger/internal/domain/documents/stock_in"
	"stockledger/internal/domain/documents/stock_out"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/posting"
	"stockledger/internal/domain/workflow"
)

// Storage is what a storage driver provides.
type Storage struct {
	TxManager tx.ReadOnlyManager
	Ledger    ledger.Store

	StockIns        stock_in.Repository
	StockOuts       stock_out.Repository
	Adjustments     adjustment.Repository
	InventoryCounts inventory_count.Repository
}

// Options configure the ledger services.
type Options struct {
	Catalog   ledger.UnitCatalog
	Locker    posting.Locker
	Numerator numerator.Generator
	Policies  ledger.PolicyResolver
	Workflow  workflow.Collaborator
	Audit     audit.Recorder

	DisplayScale    int32
	PriceScale      int32
	PreviewParallel int
}

// Services are the business operations exposed over HTTP.
type Services struct {
	Normalizer *ledger.Normalizer
	Previewer  *ledger.Previewer
	Policies   ledger.PolicyResolver
	Ledger     ledger.Store
	TxManager  tx.ReadOnlyManager

	StockIn        *stock_in.Service
	StockOut       *stock_out.Service
	Adjustment     *adjustment.Service
	InventoryCount *inventory_count.Service
}

// NewServices builds every service on one storage driver.
func NewServices(st Storage, opts Options) *Services {
	policies := opts.Policies
	if policies == nil {
		policies = ledger.NewStaticPolicies(ledger.PolicyFIFO, nil)
	}
	normalizer := ledger.NewNormalizer(opts.Catalog, opts.DisplayScale)
	previewer := ledger.NewPreviewer(st.Ledger, normalizer, policies, st.TxManager, opts.PreviewParallel)

	deps := domain.Deps{
		Engine:     posting.NewEngine(st.Ledger, opts.Locker, st.TxManager),
		Normalizer: normalizer,
		Policies:   policies,
		Previewer:  previewer,
		Numerator:  opts.Numerator,
		TxManager:  st.TxManager,
		Workflow:   opts.Workflow,
		Audit:      opts.Audit,
		PriceScale: opts.PriceScale,
	}.WithDefaults()

	stockIn := stock_in.NewService(st.StockIns, deps)
	adj := adjustment.NewService(st.Adjustments, deps)
	return &Services{
		Normalizer:     normalizer,
		Previewer:      previewer,
		Policies:       policies,
		Ledger:         st.Ledger,
		TxManager:      st.TxManager,
		StockIn:        stockIn,
		StockOut:       stock_out.NewService(st.StockOuts, stockIn, deps),
		Adjustment:     adj,
		InventoryCount: inventory_count.NewService(st.InventoryCounts, adj, deps),
	}
}
