// Package main is the entry point for the stockledger API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/app"
	"stockledger/internal/config"
	"stockledger/internal/domain/posting"
	"stockledger/internal/infrastructure/cache"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/lock"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/workflow"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()
	log.Infow("starting stockledger server", "storage", cfg.StorageDriver, "locks", cfg.LockDriver)

	checks := make(map[string]handlers.Checker)

	// --- Storage ---
	var driver *app.Driver
	var catalog *cache.UnitCache
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
		poolCfg.MaxConns = cfg.DBMaxConns
		poolCfg.MinConns = cfg.DBMinConns
		poolCfg.MaxConnLifetime = cfg.DBMaxConnLifetime

		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()
		log.Info("database connection established")

		if cfg.DBAutoMigrate {
			if err := postgres.EnsureSchema(ctx, pool); err != nil {
				log.Fatalw("failed to apply schema", "error", err)
			}
		}

		driver, _, err = app.NewPostgresDriver(pool, cfg.DBStatementTimeout, cfg.IdempotencyTTL)
		if err != nil {
			log.Fatalw("failed to build postgres driver", "error", err)
		}
		catalog = cache.NewUnitCache(driver.Catalog, cfg.UnitFactorCacheTTL)

		listener := cache.NewListener(pool.Unwrap(), catalog)
		listener.Start(ctx)
		defer listener.Stop()

	case config.StorageMemory:
		var units *memory.UnitCatalog
		driver, _, units = app.NewMemoryDriver(cfg.IdempotencyTTL)
		if cfg.MemoryUnitsFile != "" {
			if err := units.LoadFile(cfg.MemoryUnitsFile); err != nil {
				log.Fatalw("failed to load units file", "path", cfg.MemoryUnitsFile, "error", err)
			}
		}
		catalog = cache.NewUnitCache(driver.Catalog, cfg.UnitFactorCacheTTL)
		log.Warn("memory storage: state is lost on restart")
	}
	checks["storage"] = driver.Ready

	// --- Redis ---
	var rdb *redis.Client
	if cfg.LockDriver == config.LockRedis || cfg.WorkflowLockSet != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalw("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		}
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	var locker posting.Locker
	if cfg.LockDriver == config.LockRedis {
		locker = lock.NewRedis(rdb, cfg.LockTTL, cfg.LockWait)
	} else {
		locker = lock.NewKeyedMutex(cfg.LockWait)
	}

	var registry workflow.LockRegistry = workflow.NewMemoryRegistry()
	if cfg.WorkflowLockSet != "" {
		registry = workflow.NewRedisRegistry(rdb, cfg.WorkflowLockSet)
	}

	// --- Services ---
	policies, err := app.PoliciesFromConfig(cfg)
	if err != nil {
		log.Fatalw("invalid allocation policy", "error", err)
	}

	opts := driver.Options
	opts.Catalog = catalog
	opts.Locker = locker
	opts.Policies = policies
	opts.Workflow = workflow.NewGateway(driver.Events, registry)
	opts.DisplayScale = cfg.DisplayScale
	opts.PriceScale = cfg.PriceScale
	services := app.NewServices(driver.Storage, opts)

	router := v1.NewRouter(v1.RouterConfig{
		Services:           services,
		Logger:             log,
		Idempotency:        driver.Idempotency,
		IdempotencyEnabled: cfg.IdempotencyEnabled,
		Checks:             checks,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		IdleTimeout:  cfg.AppIdleTimeout,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.AppAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
