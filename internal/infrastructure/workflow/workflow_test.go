package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/workflow"
	"stockledger/internal/infrastructure/storage/postgres"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRegistries(t *testing.T) {
	_, rdb := newRedis(t)
	registries := map[string]interface {
		LockRegistry
		Lock(ctx context.Context, transactionID id.ID) error
		Unlock(ctx context.Context, transactionID id.ID) error
	}{
		"redis":  NewRedisRegistry(rdb, ""),
		"memory": NewMemoryRegistry(),
	}

	for name, r := range registries {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			txID := id.New()

			locked, err := r.IsLocked(ctx, txID)
			require.NoError(t, err)
			assert.False(t, locked)

			require.NoError(t, r.Lock(ctx, txID))
			locked, err = r.IsLocked(ctx, txID)
			require.NoError(t, err)
			assert.True(t, locked)
			assert.False(t, mustLocked(t, r, id.New()))

			require.NoError(t, r.Unlock(ctx, txID))
			assert.False(t, mustLocked(t, r, txID))
		})
	}
}

func mustLocked(t *testing.T, r LockRegistry, txID id.ID) bool {
	t.Helper()
	locked, err := r.IsLocked(context.Background(), txID)
	require.NoError(t, err)
	return locked
}

func TestRedisRegistryUsesSet(t *testing.T) {
	mr, rdb := newRedis(t)
	txID := id.New()
	_, err := mr.SetAdd(DefaultLockSet, txID.String())
	require.NoError(t, err)

	assert.True(t, mustLocked(t, NewRedisRegistry(rdb, ""), txID))
}

func TestRedisRegistryUnavailable(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	_, err := NewRedisRegistry(rdb, "").IsLocked(context.Background(), id.New())
	assert.Error(t, err)
}

type recordingWriter struct {
	events []workflow.Event
	err    error
}

func (w *recordingWriter) Publish(_ context.Context, event workflow.Event) error {
	if w.err != nil {
		return w.err
	}
	w.events = append(w.events, event)
	return nil
}

func TestGateway(t *testing.T) {
	ctx := context.Background()

	t.Run("nil registry never locks", func(t *testing.T) {
		g := NewGateway(&recordingWriter{}, nil)
		locked, err := g.IsLocked(ctx, id.New())
		require.NoError(t, err)
		assert.False(t, locked)
	})

	t.Run("registry lock is reported", func(t *testing.T) {
		reg := NewMemoryRegistry()
		txID := id.New()
		require.NoError(t, reg.Lock(ctx, txID))
		locked, err := NewGateway(&recordingWriter{}, reg).IsLocked(ctx, txID)
		require.NoError(t, err)
		assert.True(t, locked)
	})

	t.Run("posted events are written", func(t *testing.T) {
		w := &recordingWriter{}
		event := workflow.Event{Type: workflow.EventStockInPosted, TransactionID: id.New(), Number: "SI-2024-00001"}
		require.NoError(t, NewGateway(w, nil).OnPosted(ctx, event))
		require.Len(t, w.events, 1)
		assert.Equal(t, event, w.events[0])
	})

	t.Run("write failure is returned", func(t *testing.T) {
		w := &recordingWriter{err: errors.New("outbox down")}
		err := NewGateway(w, nil).OnPosted(ctx, workflow.Event{Type: workflow.EventStockOutPosted})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "publish stock_out.posted")
	})
}

func TestRedisPublisherDeliversPayload(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, DefaultEventsChannel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	event := workflow.Event{
		Type:          workflow.EventAdjustmentPosted,
		TransactionID: id.New(),
		Number:        "ADJ-2024-00003",
		OccurredAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	p := NewRedisPublisher(rdb, "")
	require.NoError(t, p.Handle(ctx, &postgres.OutboxMessage{EventType: event.Type, Payload: payload}))

	select {
	case msg := <-sub.Channel():
		var got workflow.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, event.TransactionID, got.TransactionID)
		assert.Equal(t, event.Type, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}
