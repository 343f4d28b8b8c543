package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

// ChannelUnitsChanged is notified by the catalog_unit_conversions trigger
// with the material id as payload.
const ChannelUnitsChanged = "unit_conversions_changed"

// Listener invalidates a UnitCache on PostgreSQL NOTIFY, so catalog edits
// show up before the TTL expires.
type Listener struct {
	pool  *pgxpool.Pool
	cache *UnitCache

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewListener creates a listener for cache.
func NewListener(pool *pgxpool.Pool, cache *UnitCache) *Listener {
	return &Listener{pool: pool, cache: cache}
}

// Start begins listening in the background.
func (l *Listener) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.listenLoop()
	logger.Info(l.ctx, "unit cache listener started")
}

// Stop ends the listener and waits for it.
func (l *Listener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.cancel = nil
	l.lifecycleMu.Unlock()

	cancel()
	l.wg.Wait()
	logger.Info(context.Background(), "unit cache listener stopped")
}

func (l *Listener) listenLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		conn, err := l.pool.Acquire(l.ctx)
		if err != nil {
			logger.Error(l.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if _, err := conn.Exec(l.ctx, "LISTEN "+ChannelUnitsChanged); err != nil {
			logger.Error(l.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}

		// Anything may have changed while we were not listening.
		l.cache.InvalidateAll()
		l.wait(conn)
		conn.Release()
	}
}

func (l *Listener) wait(conn *pgxpool.Conn) {
	for {
		ctx, cancel := context.WithTimeout(l.ctx, 30*time.Second)
		n, err := conn.Conn().WaitForNotification(ctx)
		cancel()
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			if ctx.Err() != nil {
				// Timeout is expected, continue listening
				continue
			}
			logger.Warn(l.ctx, "LISTEN connection lost", "error", err)
			return
		}

		materialID, err := id.Parse(strings.TrimSpace(n.Payload))
		if err != nil {
			l.cache.InvalidateAll()
			continue
		}
		logger.Debug(l.ctx, "unit conversions changed", "material_id", materialID)
		l.cache.InvalidateMaterial(materialID)
	}
}
