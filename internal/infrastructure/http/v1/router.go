// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/app"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/infrastructure/idempotency"
	"stockledger/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Services are the ledger operations behind the handlers.
	Services *app.Services

	// Logger for request logging
	Logger *logger.Logger

	// Idempotency stores Idempotency-Key outcomes; used when IdempotencyEnabled.
	Idempotency        idempotency.Store
	IdempotencyEnabled bool

	// Checks run on every readiness probe, keyed by dependency name.
	Checks map[string]handlers.Checker
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	dto.RegisterValidators()

	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Checks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Actor())
	if cfg.IdempotencyEnabled && cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	registerDocumentRoutes(api, cfg)
	registerInventoryCountRoutes(api, cfg)
	registerLedgerRoutes(api, cfg)

	return router
}

// registerDocumentRoutes registers stock-in, stock-out and adjustment endpoints.
func registerDocumentRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	baseHandler := handlers.NewBaseHandler()
	svc := cfg.Services

	RegisterDocumentRoutes(rg.Group("/stock-in"), handlers.NewStockInHandler(baseHandler, svc.StockIn))
	RegisterDocumentRoutes(rg.Group("/stock-out"), handlers.NewStockOutHandler(baseHandler, svc.StockOut))
	RegisterDocumentRoutes(rg.Group("/adjustments"), handlers.NewAdjustmentHandler(baseHandler, svc.Adjustment))
}

// registerInventoryCountRoutes registers stocktake endpoints.
func registerInventoryCountRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	handler := handlers.NewInventoryCountHandler(handlers.NewBaseHandler(), cfg.Services.InventoryCount)

	counts := rg.Group("/inventory-counts")
	counts.GET("/batches", handler.LoadBatches)
	counts.POST("", handler.Create)
	counts.GET("/:id", handler.Get)
	counts.PUT("/:id", handler.Update)
	counts.DELETE("/:id", handler.Delete)
	counts.POST("/:id/start", handler.Start)
	counts.POST("/:id/complete", handler.Complete)
	counts.POST("/:id/cancel", handler.Cancel)
}

// registerLedgerRoutes registers batch query and preview endpoints.
func registerLedgerRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	svc := cfg.Services
	handler := handlers.NewLedgerHandler(handlers.NewBaseHandler(), svc.Ledger, svc.Policies, svc.Previewer, svc.TxManager)

	l := rg.Group("/ledger")
	l.POST("/preview", handler.Preview)
	l.GET("/batches", handler.ListBatches)
	l.GET("/batches/:id", handler.GetBatch)
	l.GET("/balance", handler.Balance)
}
