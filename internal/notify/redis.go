// Package notify publishes review-page commit events for downstream
// consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/serkaneren68/ASBA-NLP/internal/config"
)

// PageEvent describes one committed review listing page.
type PageEvent struct {
	ProductID  int64  `json:"product_id"`
	ProductURL string `json:"product_url"`
	Partition  string `json:"partition"`
	PageNo     int    `json:"page_no"`
	Extracted  int    `json:"extracted"`
	Inserted   int    `json:"inserted"`
}

// Publisher sends page events.
type Publisher interface {
	PublishPage(ctx context.Context, ev PageEvent) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishPage(context.Context, PageEvent) error { return nil }
func (Nop) Close() error                                 { return nil }

// RedisPublisher appends events to a Redis stream.
type RedisPublisher struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

// NewRedisPublisher creates a publisher writing to stream.
func NewRedisPublisher(client *redis.Client, stream string, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		stream: stream,
		logger: logger.With("component", "redis_publisher"),
	}
}

// New returns a RedisPublisher when notifications are enabled and Nop
// otherwise. The connection is checked with a PING.
func New(ctx context.Context, cfg config.NotifyConfig, logger *slog.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	return NewRedisPublisher(client, cfg.Stream, logger), nil
}

// PublishPage adds ev to the stream. The full event is kept as JSON under
// "event" next to flat fields for consumers that filter without decoding.
func (p *RedisPublisher) PublishPage(ctx context.Context, ev PageEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode page event: %w", err)
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"product_id": strconv.FormatInt(ev.ProductID, 10),
			"page_no":    strconv.Itoa(ev.PageNo),
			"inserted":   strconv.Itoa(ev.Inserted),
			"event":      string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	p.logger.Debug("page event published", "product_id", ev.ProductID, "page", ev.PageNo)
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
