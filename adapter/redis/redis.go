// Package redis publishes read_completed events on a Redis channel and keeps
// a per-server hash describing the last stored batch.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/opcda/adapter"
)

const (
	DefaultChannel      = "opcda:read_completed"
	DefaultLatestPrefix = "opcda:latest:"
	DefaultTimeout      = 5 * time.Second
)

// Config configures the adapter. URL uses the redis:// scheme understood by
// goredis.ParseURL.
type Config struct {
	URL          string
	Channel      string
	LatestPrefix string
	Timeout      time.Duration // per attempt
	Retries      int
	Backoff      time.Duration
}

// Adapter implements adapter.Adapter on a go-redis client.
type Adapter struct {
	config Config
	client *goredis.Client
}

func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter: url is required")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("redis adapter: negative retries %d", cfg.Retries)
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.LatestPrefix == "" {
		cfg.LatestPrefix = DefaultLatestPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// LatestKey names the hash holding the last batch stored for server.
func (a *Adapter) LatestKey(server string) string {
	return a.config.LatestPrefix + server
}

// Publish sends event on the channel, then records it under LatestKey.
// Both steps share the retry budget.
func (a *Adapter) Publish(ctx context.Context, event *adapter.ReadCompletedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", event.EventType, err)
	}
	latest := map[string]any{
		"session_id":   event.SessionID,
		"status":       event.Status,
		"item_count":   event.ItemCount,
		"failed_count": event.FailedCount,
		"storage_path": event.StoragePath,
		"timestamp":    event.Timestamp,
	}

	published := false
	attempts, err := adapter.Retry(ctx, a.config.Retries, a.config.Backoff, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		if !published {
			if err := a.client.Publish(ctx, a.config.Channel, payload).Err(); err != nil {
				return err
			}
			published = true
		}
		return a.client.HSet(ctx, a.LatestKey(event.Server), latest).Err()
	})
	if err != nil {
		return fmt.Errorf("redis: publish to %s failed after %d attempts: %w", a.config.Channel, attempts, err)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
