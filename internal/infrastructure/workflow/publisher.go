package workflow

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/infrastructure/storage/postgres"
)

// DefaultEventsChannel is the pub/sub channel posting events go to.
const DefaultEventsChannel = "stockledger.events"

// RedisPublisher delivers outbox messages to a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     redis.UniversalClient
	channel string
}

var _ postgres.OutboxHandler = (*RedisPublisher)(nil)

// NewRedisPublisher creates a publisher on channel (DefaultEventsChannel when empty).
func NewRedisPublisher(rdb redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultEventsChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Handle publishes the JSON payload of msg as is.
func (p *RedisPublisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	if err := p.rdb.Publish(ctx, p.channel, msg.Payload).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", msg.EventType, p.channel, err)
	}
	return nil
}
