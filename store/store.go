// Package store persists read snapshots to Lode.
//
// One stored batch is one Lode snapshot: a JSONL segment with one record
// per tag, Hive-partitioned by server, day and session.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/opcda/metrics"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "opcda"

// Partition keys, outermost first.
var partitionKeys = []string{"server", "day", "session_id"}

// DeriveDay computes the partition day for a batch: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Config holds the partition of one session's writes.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Server is the server name (ProgID or CLSID).
	Server string
	// Day is the partition day, see DeriveDay.
	Day string
	// SessionID identifies the session that read the values.
	SessionID string
}

// Validate checks that every partition key is set.
func (c Config) Validate() error {
	var missing []string
	if c.Dataset == "" {
		missing = append(missing, "dataset")
	}
	if c.Server == "" {
		missing = append(missing, "server")
	}
	if c.Day == "" {
		missing = append(missing, "day")
	}
	if c.SessionID == "" {
		missing = append(missing, "session_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("store config missing %v", missing)
	}
	return nil
}

// Path is the Hive partition path the config's records land under.
func (c Config) Path() string {
	return fmt.Sprintf("datasets/%s/partitions/server=%s/day=%s/session_id=%s",
		c.Dataset, c.Server, c.Day, c.SessionID)
}

// Client abstracts snapshot storage.
type Client interface {
	// WriteTags writes one batch as one snapshot. Ordering within the
	// batch is preserved.
	WriteTags(ctx context.Context, records []TagRecord) error
	// Path returns where the client's records land.
	Path() string
	// Close releases client resources.
	Close() error
}

// InstrumentedClient wraps a Client and counts write outcomes.
type InstrumentedClient struct {
	inner     Client
	collector *metrics.Collector
}

// NewInstrumentedClient wraps a client with metrics instrumentation.
func NewInstrumentedClient(inner Client, collector *metrics.Collector) *InstrumentedClient {
	return &InstrumentedClient{inner: inner, collector: collector}
}

// WriteTags delegates to the inner client and records success or failure.
func (c *InstrumentedClient) WriteTags(ctx context.Context, records []TagRecord) error {
	err := c.inner.WriteTags(ctx, records)
	if err != nil {
		c.collector.IncStoreWriteFailure()
	} else {
		c.collector.IncStoreWriteSuccess()
	}
	return err
}

// Path delegates to the inner client.
func (c *InstrumentedClient) Path() string { return c.inner.Path() }

// Close delegates to the inner client.
func (c *InstrumentedClient) Close() error { return c.inner.Close() }

var _ Client = (*InstrumentedClient)(nil)

// ErrStubClosed is returned by StubClient writes after Close.
var ErrStubClosed = errors.New("stub client closed")

// StubClient records writes without persisting. Set Err to fail writes.
type StubClient struct {
	mu      sync.Mutex
	Config  Config
	Batches [][]TagRecord
	Err     error
	Closed  bool
}

// NewStubClient creates a stub client for cfg.
func NewStubClient(cfg Config) *StubClient {
	return &StubClient{Config: cfg}
}

// WriteTags implements Client.
func (c *StubClient) WriteTags(_ context.Context, records []TagRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Closed {
		return ErrStubClosed
	}
	if c.Err != nil {
		return c.Err
	}
	c.Batches = append(c.Batches, records)
	return nil
}

// Path implements Client.
func (c *StubClient) Path() string { return c.Config.Path() }

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

var _ Client = (*StubClient)(nil)
