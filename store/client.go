package store

import (
	"context"
	"fmt"

	"github.com/justapithecus/lode/lode"
)

// LodeClient is a Lode-backed implementation of Client.
type LodeClient struct {
	dataset lode.Dataset
	config  Config
}

// NewLodeClient creates a Lode client with filesystem storage under root.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a Lode client over a custom store
// factory. Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := NewDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LodeClient{dataset: ds, config: cfg}, nil
}

// NewDataset creates a Lode Dataset with the tag record layout. Reads and
// writes share it so their layouts always agree.
func NewDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteTags writes one batch as one snapshot.
func (c *LodeClient) WriteTags(ctx context.Context, records []TagRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]any, 0, len(records))
	for _, r := range records {
		r.Server, r.Day, r.SessionID = c.config.Server, c.config.Day, c.config.SessionID
		rows = append(rows, toTagRecordMap(r))
	}
	if _, err := c.dataset.Write(ctx, rows, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.Path())
	}
	return nil
}

// Path implements Client.
func (c *LodeClient) Path() string { return c.config.Path() }

// Dataset returns the underlying dataset for reading back.
func (c *LodeClient) Dataset() lode.Dataset { return c.dataset }

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

var _ Client = (*LodeClient)(nil)

// Backend names.
const (
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Options selects and configures a storage backend.
type Options struct {
	// Backend is fs, s3 or memory.
	Backend string
	// Path is the fs root, or bucket/prefix for s3.
	Path string
	// Region, Endpoint and UsePathStyle apply to s3.
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// Factory returns the store factory for the configured backend.
func (o Options) Factory(ctx context.Context) (lode.StoreFactory, error) {
	switch o.Backend {
	case BackendFS, "":
		if o.Path == "" {
			return nil, fmt.Errorf("storage path is required for the %s backend", BackendFS)
		}
		return lode.NewFSFactory(o.Path), nil
	case BackendMemory:
		return lode.NewMemoryFactory(), nil
	case BackendS3:
		bucket, prefix := ParseS3Path(o.Path)
		return newS3Factory(ctx, S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       o.Region,
			Endpoint:     o.Endpoint,
			UsePathStyle: o.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want fs, s3 or memory)", o.Backend)
	}
}

// OpenDataset opens dataset read-only on the configured backend, for
// QueryLatest.
func OpenDataset(ctx context.Context, dataset string, opts Options) (lode.Dataset, error) {
	factory, err := opts.Factory(ctx)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	ds, err := NewDataset(dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return ds, nil
}

// Open creates a client for cfg on the configured backend.
func Open(ctx context.Context, cfg Config, opts Options) (*LodeClient, error) {
	factory, err := opts.Factory(ctx)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return NewLodeClientWithFactory(cfg, factory)
}
