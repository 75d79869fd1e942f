// Package adapter defines the notification boundary for completed reads.
//
// Adapters publish one event per stored read batch to a downstream
// system. The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pithecene-io/opcda/read"
	"github.com/pithecene-io/opcda/types"
)

// EventTypeReadCompleted is the event_type of every ReadCompletedEvent.
const EventTypeReadCompleted = "read_completed"

// DefaultBackoff is the wait before the first retry. Each later retry
// doubles it.
const DefaultBackoff = 500 * time.Millisecond

// ReadCompletedEvent is the payload published after a batch is stored.
type ReadCompletedEvent struct {
	EventType   string `json:"event_type"`
	SessionID   string `json:"session_id"`
	Host        string `json:"host"`
	Server      string `json:"server"`
	Day         string `json:"day"`
	Status      string `json:"status"`
	ItemCount   int    `json:"item_count"`
	FailedCount int    `json:"failed_count"`
	StoragePath string `json:"storage_path"`
	Timestamp   string `json:"timestamp"` // RFC 3339
	DurationMs  int64  `json:"duration_ms"`
}

// NewReadCompletedEvent describes a stored batch.
func NewReadCompletedEvent(meta types.SessionMeta, res *read.Result, day, storagePath string, at time.Time) *ReadCompletedEvent {
	ev := &ReadCompletedEvent{
		EventType:   EventTypeReadCompleted,
		SessionID:   meta.SessionID,
		Host:        meta.Host,
		Server:      meta.Server,
		Day:         day,
		StoragePath: storagePath,
		Timestamp:   at.UTC().Format(time.RFC3339),
	}
	if res != nil {
		ev.Status = res.Status.String()
		ev.ItemCount = len(res.Items)
		ev.FailedCount = res.Failed()
		ev.DurationMs = res.Duration.Milliseconds()
	}
	return ev
}

// Adapter publishes read completion events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation and
	// deadlines.
	Publish(ctx context.Context, event *ReadCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Retry runs op once, then up to retries more times with exponential
// backoff starting at initial. Errors wrapped with backoff.Permanent stop
// retrying. It returns the number of attempts made.
func Retry(ctx context.Context, retries int, initial time.Duration, op func(ctx context.Context) error) (int, error) {
	if retries < 0 {
		return 0, fmt.Errorf("retries must be >= 0, got %d", retries)
	}
	if initial <= 0 {
		initial = DefaultBackoff
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initial
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = 64 * initial
	policy.MaxElapsedTime = 0

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return op(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx))
	return attempts, err
}
