package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nhle/slawatch/internal/model"
)

// Publisher fans newly committed notification events out to other
// consumers. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, events []model.NotificationEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, []model.NotificationEvent) error { return nil }

// RedisPublisher publishes each event as JSON on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects a publisher to the configured Redis server.
func NewRedisPublisher(cfg model.RedisConfig) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	channel := cfg.Channel
	if channel == "" {
		channel = "slawatch:notifications"
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends events in order, stopping at the first failure.
func (p *RedisPublisher) Publish(ctx context.Context, events []model.NotificationEvent) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encoding event %s: %w", ev.ID, err)
		}
		if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
			return fmt.Errorf("publishing event %s: %w", ev.ID, err)
		}
	}
	return nil
}

// Close releases the Redis connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
