package app

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/config"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/idempotency"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/document_repo"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/workflow"
	"stockledger/pkg/numerator"
)

// Driver is a storage backend with its matching collaborators.
type Driver struct {
	Storage     Storage
	Catalog     ledger.UnitCatalog
	Events      workflow.EventWriter
	Options     Options
	Idempotency idempotency.Store

	// Ready reports whether the backend can serve requests.
	Ready func(ctx context.Context) error
}

// NewMemoryDriver keeps everything in process. Events stay in the memory
// outbox; nothing relays them.
func NewMemoryDriver(idempotencyTTL time.Duration) (*Driver, *memory.Store, *memory.UnitCatalog) {
	store := memory.NewStore()
	catalog := memory.NewUnitCatalog()
	return &Driver{
		Storage: Storage{
			TxManager:       store,
			Ledger:          memory.NewLedgerStore(store),
			StockIns:        memory.NewStockInRepo(store),
			StockOuts:       memory.NewStockOutRepo(store),
			Adjustments:     memory.NewAdjustmentRepo(store),
			InventoryCounts: memory.NewInventoryCountRepo(store),
		},
		Catalog: catalog,
		Events:  memory.NewOutbox(store),
		Options: Options{
			Numerator: numerator.NewMemory(),
			Audit:     memory.NewAuditLog(store),
		},
		Idempotency: idempotency.NewMemory(idempotencyTTL),
		Ready:       func(context.Context) error { return nil },
	}, store, catalog
}

// NewPostgresDriver builds every repository on pool.
func NewPostgresDriver(pool *postgres.Pool, statementTimeout, idempotencyTTL time.Duration) (*Driver, *postgres.TxManager, error) {
	txm := postgres.NewTxManager(pool, statementTimeout)
	auditService, err := postgres.NewAuditService(txm, postgres.DefaultCompressThreshold)
	if err != nil {
		return nil, nil, err
	}
	return &Driver{
		Storage: Storage{
			TxManager:       txm,
			Ledger:          ledger_repo.NewLedgerRepo(txm),
			StockIns:        document_repo.NewStockInRepo(txm),
			StockOuts:       document_repo.NewStockOutRepo(txm),
			Adjustments:     document_repo.NewAdjustmentRepo(txm),
			InventoryCounts: document_repo.NewInventoryCountRepo(txm),
		},
		Catalog: catalog_repo.NewUnitRepo(txm),
		Events:  postgres.NewOutboxPublisher(txm),
		Options: Options{
			Numerator: numerator.New(txm),
			Audit:     auditService,
		},
		Idempotency: postgres.NewIdempotencyStore(txm, idempotencyTTL),
		Ready:       func(ctx context.Context) error { return pool.Ping(ctx) },
	}, txm, nil
}

// PoliciesFromConfig builds the allocation policy resolver.
func PoliciesFromConfig(cfg *config.Config) (*ledger.StaticPolicies, error) {
	def, err := ledger.ParsePolicyName(cfg.DefaultPolicy)
	if err != nil {
		return nil, fmt.Errorf("LEDGER_DEFAULT_POLICY: %w", err)
	}
	items, err := cfg.ParsePolicyOverrides()
	if err != nil {
		return nil, err
	}
	overrides := make(map[ledger.Pair]ledger.Policy, len(items))
	for _, item := range items {
		warehouseID, err := id.Parse(item.WarehouseID)
		if err != nil {
			return nil, fmt.Errorf("policy override warehouse %q: %w", item.WarehouseID, err)
		}
		materialID, err := id.Parse(item.MaterialID)
		if err != nil {
			return nil, fmt.Errorf("policy override material %q: %w", item.MaterialID, err)
		}
		p, err := ledger.ParsePolicyName(item.Policy)
		if err != nil {
			return nil, fmt.Errorf("policy override %s:%s: %w", item.WarehouseID, item.MaterialID, err)
		}
		overrides[ledger.Pair{WarehouseID: warehouseID, MaterialID: materialID}] = p
	}
	return ledger.NewStaticPolicies(def, overrides), nil
}
