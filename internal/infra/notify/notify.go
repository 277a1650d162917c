// Package notify delivers best-effort sale notifications. The seller-facing
// notifier service (out of scope here) consumes them from a Redis channel.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration for the notification sink.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

// SaleNotification is the payload published per completed purchase.
type SaleNotification struct {
	SellerAddress string    `json:"seller_address"`
	PurchaseID    string    `json:"purchase_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// RedisNotifier publishes sale notifications to a Redis channel.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

// NewRedisNotifier creates a notifier and verifies the connection.
func NewRedisNotifier(cfg Config) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "sales"
	}
	return &RedisNotifier{rdb: rdb, channel: channel}, nil
}

// Notify publishes a sale notification. Callers treat failures as
// best-effort: they are logged, never retried.
func (n *RedisNotifier) Notify(ctx context.Context, sellerAddress, purchaseID string) error {
	payload, err := json.Marshal(SaleNotification{
		SellerAddress: sellerAddress,
		PurchaseID:    purchaseID,
		OccurredAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}
