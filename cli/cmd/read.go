package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/opcda/adapter"
	redisadapter "github.com/pithecene-io/opcda/adapter/redis"
	"github.com/pithecene-io/opcda/adapter/webhook"
	"github.com/pithecene-io/opcda/cli/config"
	"github.com/pithecene-io/opcda/cli/render"
	"github.com/pithecene-io/opcda/cli/tui"
	"github.com/pithecene-io/opcda/iox"
	"github.com/pithecene-io/opcda/read"
	"github.com/pithecene-io/opcda/store"
)

// ValueRow is the table view of one read tag.
type ValueRow struct {
	BrowsePath string `json:"browse_path"`
	Value      string `json:"value"`
	Quality    string `json:"quality"`
	Type       string `json:"vartype"`
	Timestamp  string `json:"timestamp"`
	Error      string `json:"error"`
}

// ReadCommand returns the read command.
func ReadCommand() *cli.Command {
	flags := ReadOnlyFlags()
	flags = append(flags, StoreFlags()...)
	flags = append(flags, AdapterFlags()...)
	return &cli.Command{
		Name:      "read",
		Usage:     "Read tags in one batch",
		ArgsUsage: "<path>...",
		Flags:     flags,
		Action:    readAction,
	}
}

func readAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("at least one tag path required", exitFailure)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	return withSession(c, func(ctx context.Context, e *env) error {
		res, err := e.session.ReadTags(ctx, c.Args().Slice())
		if err != nil {
			return cli.Exit(fmt.Sprintf("read failed: %v", err), exitFailure)
		}

		meta := e.session.Meta()
		now := time.Now()
		scfg := store.Config{
			Dataset:   datasetName(c, e.cfg.Storage),
			Server:    meta.Server,
			Day:       store.DeriveDay(now),
			SessionID: meta.SessionID,
		}
		records := store.NewTagRecords(res, scfg)

		if c.Bool("store") {
			if err := e.persist(ctx, c, scfg, res, records); err != nil {
				return err
			}
		}

		if c.Bool("tui") {
			if err := r.RenderTUI(tui.ViewReadValues, records); err != nil {
				return err
			}
		} else if err := renderValues(r, records); err != nil {
			return err
		}
		return exitForStatus(res.Status)
	})
}

// renderValues writes full records for json/yaml and a narrow row per tag
// for tables.
func renderValues(r *render.Renderer, records []store.TagRecord) error {
	if r.Format() != render.FormatTable {
		return r.Render(records)
	}
	rows := make([]ValueRow, len(records))
	for i, rec := range records {
		rows[i] = ValueRow{
			BrowsePath: rec.BrowsePath,
			Value:      rec.Value,
			Quality:    rec.QualityString,
			Type:       rec.VarType,
			Timestamp:  rec.Timestamp,
			Error:      rec.Error,
		}
	}
	return r.Render(rows)
}

// persist writes the batch as one snapshot, then publishes a
// read_completed event when an adapter is configured. A publish failure
// is reported but does not fail the command; the snapshot is already
// durable.
func (e *env) persist(ctx context.Context, c *cli.Context, scfg store.Config, res *read.Result, records []store.TagRecord) error {
	lc, err := store.Open(ctx, scfg, storageOptions(c, e.cfg.Storage))
	if err != nil {
		return cli.Exit(fmt.Sprintf("open storage: %v", err), exitFailure)
	}
	client := store.NewInstrumentedClient(lc, e.metrics)

	pub, err := newAdapter(c, e.cfg.Adapter)
	if err != nil {
		_ = client.Close()
		return cli.Exit(err.Error(), exitFailure)
	}
	defer func() { _ = iox.CloseAll(client, pub) }()

	if err := client.WriteTags(ctx, records); err != nil {
		return cli.Exit(fmt.Sprintf("store batch: %v", err), exitFailure)
	}
	e.logger.Info("batch stored", map[string]any{"path": client.Path(), "records": len(records)})

	if pub == nil {
		return nil
	}
	ev := adapter.NewReadCompletedEvent(e.session.Meta(), res, scfg.Day, client.Path(), time.Now())
	if err := pub.Publish(ctx, ev); err != nil {
		e.logger.Warn("publish read_completed failed", map[string]any{"error": err.Error()})
		fmt.Fprintf(e.stderr, "Warning: publish read_completed failed: %v\n", err)
	}
	return nil
}

func storageOptions(c *cli.Context, cfg config.StorageConfig) store.Options {
	return store.Options{
		Backend:      pick(c, "storage-backend", cfg.Backend),
		Path:         pick(c, "storage-path", cfg.Path),
		Region:       pick(c, "storage-region", cfg.Region),
		Endpoint:     pick(c, "storage-endpoint", cfg.Endpoint),
		UsePathStyle: c.Bool("storage-s3-path-style") || cfg.S3PathStyle,
	}
}

func datasetName(c *cli.Context, cfg config.StorageConfig) string {
	if ds := pick(c, "storage-dataset", cfg.Dataset); ds != "" {
		return ds
	}
	return store.DefaultDataset
}

// newAdapter builds the configured notification adapter, or nil when
// none is configured.
func newAdapter(c *cli.Context, cfg config.AdapterConfig) (adapter.Adapter, error) {
	kind := pick(c, "adapter", cfg.Type)
	url := pick(c, "adapter-url", cfg.URL)
	timeout := cfg.Timeout.Duration
	if c.IsSet("adapter-timeout") {
		timeout = c.Duration("adapter-timeout")
	}
	retries := 0
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}
	if c.IsSet("adapter-retries") {
		retries = c.Int("adapter-retries")
	}

	switch kind {
	case "":
		return nil, nil
	case "redis":
		return redisadapter.New(redisadapter.Config{
			URL:     url,
			Channel: pick(c, "adapter-channel", cfg.Channel),
			Timeout: timeout,
			Retries: retries,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     url,
			Headers: cfg.Headers,
			Timeout: timeout,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter %q (must be redis or webhook)", kind)
	}
}
