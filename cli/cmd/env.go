package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/opcda/bridge"
	"github.com/pithecene-io/opcda/cli/config"
	"github.com/pithecene-io/opcda/log"
	"github.com/pithecene-io/opcda/metrics"
	"github.com/pithecene-io/opcda/opc"
	"github.com/pithecene-io/opcda/session"
	"github.com/pithecene-io/opcda/sim"
	"github.com/pithecene-io/opcda/types"
)

// loadConfig reads --config when given. No flag means an empty config.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// pick returns the flag value when the flag was set, else fallback.
func pick(c *cli.Context, name, fallback string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	return fallback
}

// env is the per-invocation wiring: config, logger, metrics and one
// session.
type env struct {
	cfg     *config.Config
	target  opc.Target
	logger  *log.Logger
	metrics *metrics.Collector
	session *session.Session
	stderr  io.Writer
}

// newEnv builds the wiring for c without connecting.
func newEnv(c *cli.Context) (*env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitFailure)
	}

	target := opc.Target{
		Host:   pick(c, "host", cfg.Server.Host),
		ProgID: pick(c, "progid", cfg.Server.ProgID),
		CLSID:  pick(c, "clsid", cfg.Server.CLSID),
	}
	if target.Host == "" {
		target.Host = session.DefaultHost
	}

	sessionID := uuid.New().String()
	meta := &types.SessionMeta{SessionID: sessionID, Host: target.Host, Server: target.ServerName()}

	mode, err := log.ParseMode(pick(c, "log-mode", cfg.Log.Mode))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitFailure)
	}
	logger, err := log.New(meta, mode, pick(c, "log-file", cfg.Log.File))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitFailure)
	}

	collector := metrics.NewCollector(target.Host, target.ServerName(), sessionID, cfg.Storage.Backend)
	e := &env{cfg: cfg, target: target, logger: logger, metrics: collector, stderr: c.App.ErrWriter}
	if e.stderr == nil {
		e.stderr = os.Stderr
	}

	dialer, err := e.dialer(c)
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	depth := 0
	switch {
	case c.IsSet("max-depth"):
		depth = c.Int("max-depth")
	case cfg.Browse.MaxDepth != nil:
		depth = *cfg.Browse.MaxDepth
	}
	if depth < 0 {
		_ = e.Close()
		return nil, cli.Exit(fmt.Sprintf("invalid --max-depth %d: must be >= 0", depth), exitFailure)
	}

	sess, err := session.New(session.Config{
		Dialer:    dialer,
		MaxDepth:  depth,
		SessionID: sessionID,
		Logger:    logger,
		Metrics:   collector,
	})
	if err != nil {
		_ = e.Close()
		return nil, cli.Exit(err.Error(), exitFailure)
	}
	e.session = sess
	return e, nil
}

// dialer selects the transport: a bridge when an address is configured,
// else an in-process simulator when a namespace file is given.
func (e *env) dialer(c *cli.Context) (opc.Dialer, error) {
	if addr := pick(c, "bridge", e.cfg.Bridge.Address); addr != "" {
		cfg := bridge.DialConfig{
			Address:     addr,
			DialTimeout: e.cfg.Bridge.DialTimeout.Duration,
			CallTimeout: e.cfg.Bridge.CallTimeout.Duration,
			Logger:      e.logger,
			Metrics:     e.metrics,
		}
		if e.cfg.Bridge.Retries != nil {
			cfg.Retries = uint64(*e.cfg.Bridge.Retries)
		}
		d, err := bridge.NewDialer(cfg)
		if err != nil {
			return nil, cli.Exit(err.Error(), exitFailure)
		}
		return d, nil
	}
	if path := pick(c, "sim", e.cfg.Sim.Namespace); path != "" {
		ns, err := sim.Load(path)
		if err != nil {
			return nil, cli.Exit(err.Error(), exitFailure)
		}
		progID, clsid := ns.Identity()
		return sim.Dialer(sim.New(ns), progID, clsid), nil
	}
	return nil, cli.Exit("no transport: set --bridge or --sim (or bridge.address / sim.namespace in the config)", exitFailure)
}

// connect opens the session on the configured target.
func (e *env) connect(ctx context.Context) error {
	if err := e.session.Connect(ctx, e.target); err != nil {
		return cli.Exit(fmt.Sprintf("connect %s on %s: %v", e.target.ServerName(), e.target.Host, err), exitFailure)
	}
	return nil
}

// Close releases the session and the logger. Buffered log lines are
// flushed to stderr first.
func (e *env) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Close()
	}
	for _, line := range e.logger.Drain() {
		fmt.Fprintln(e.stderr, line)
	}
	if cerr := e.logger.Close(); err == nil {
		err = cerr
	}
	return err
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// withSession runs fn on a connected session and tears it down after.
func withSession(c *cli.Context, fn func(ctx context.Context, e *env) error) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	ctx, cancel := signalContext(c)
	defer cancel()

	if err := e.connect(ctx); err != nil {
		return err
	}
	return fn(ctx, e)
}
