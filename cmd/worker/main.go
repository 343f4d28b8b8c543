// Package main is the entry point for the stockledger background worker.
// It relays posted-ledger events from the outbox to Redis and prunes
// expired idempotency keys and published messages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/config"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/workflow"
	"stockledger/pkg/logger"
)

const cleanupInterval = 5 * time.Minute

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

	if cfg.StorageDriver != config.StoragePostgres {
		log.Fatalw("worker requires postgres storage", "storage", cfg.StorageDriver)
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting stockledger worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = 1
	poolCfg.ApplicationName = "stockledger-worker"
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalw("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
	}

	txm := postgres.NewTxManager(pool, cfg.DBStatementTimeout)
	worker := &Worker{
		relay:       postgres.NewOutboxRelay(txm, cfg.OutboxBatchSize, workflow.NewRedisPublisher(rdb, cfg.EventsChannel)),
		idempotency: postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL),
		pool:        pool,
		cfg:         cfg,
		log:         log.WithComponent("worker"),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		worker.runRelay(ctx)
	}()
	go func() {
		defer wg.Done()
		worker.runCleanup(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	wg.Wait()
	log.Info("worker stopped")
}

// Worker runs the periodic outbox and maintenance jobs.
type Worker struct {
	relay       *postgres.OutboxRelay
	idempotency *postgres.IdempotencyStore
	pool        *postgres.Pool
	cfg         *config.Config
	log         *logger.Logger
}

func (w *Worker) runRelay(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.OutboxPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainOutbox(ctx)
		}
	}
}

// drainOutbox keeps processing while batches come back full.
func (w *Worker) drainOutbox(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n > 0 {
			w.log.Debugw("processed outbox batch", "count", n)
		}
		if n < w.cfg.OutboxBatchSize {
			return
		}
	}
}

func (w *Worker) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if n, err := w.relay.MoveToDLQ(ctx); err != nil {
		w.log.Errorw("failed to move outbox messages to DLQ", "error", err)
	} else if n > 0 {
		w.log.Warnw("moved outbox messages to DLQ", "count", n)
	}

	if n, err := w.relay.PurgePublished(ctx, w.cfg.OutboxRetention); err != nil {
		w.log.Errorw("failed to purge published outbox messages", "error", err)
	} else if n > 0 {
		w.log.Infow("purged published outbox messages", "count", n)
	}

	if n, err := w.idempotency.CleanupExpired(ctx); err != nil {
		w.log.Errorw("failed to clean up idempotency keys", "error", err)
	} else if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}

	postgres.LogPoolStats(ctx, w.pool)
}
