package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/opcda/bridge"
	"github.com/pithecene-io/opcda/log"
	"github.com/pithecene-io/opcda/metrics"
	"github.com/pithecene-io/opcda/sim"
	"github.com/pithecene-io/opcda/types"
)

// DefaultListen is the serve-sim listen address.
const DefaultListen = "127.0.0.1:7777"

// ServeSimCommand returns the serve-sim command.
func ServeSimCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve-sim",
		Usage: "Serve a simulated namespace over the bridge protocol",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "namespace",
				Usage: "Namespace YAML file (default: sim.namespace from the config)",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Listen address (default: " + DefaultListen + ")",
			},
		},
		Action: serveSimAction,
	}
}

func serveSimAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	path := pick(c, "namespace", cfg.Sim.Namespace)
	if path == "" {
		return cli.Exit("--namespace required (or sim.namespace in the config)", exitFailure)
	}
	ns, err := sim.Load(path)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	addr := pick(c, "listen", cfg.Sim.Listen)
	if addr == "" {
		addr = DefaultListen
	}
	progID, clsid := ns.Identity()
	name := progID
	if name == "" {
		name = clsid
	}

	meta := &types.SessionMeta{Host: addr, Server: name}
	mode, err := log.ParseMode(pick(c, "log-mode", cfg.Log.Mode))
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	if mode == log.ModeNone {
		mode = log.ModeConsole
	}
	logger, err := log.New(meta, mode, pick(c, "log-file", cfg.Log.File))
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	defer func() { _ = logger.Close() }()

	srv, err := bridge.NewServer(bridge.ServerConfig{
		Dialer:  sim.Dialer(sim.New(ns), progID, clsid),
		Logger:  logger,
		Metrics: metrics.NewCollector(addr, name, "", ""),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return cli.Exit(fmt.Sprintf("listen %s: %v", addr, err), exitFailure)
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	logger.Sugar().Infof("serving %s as %s on %s", path, name, ln.Addr())
	if err := srv.Serve(ctx, ln); err != nil && !errors.Is(err, context.Canceled) {
		return cli.Exit(fmt.Sprintf("serve: %v", err), exitFailure)
	}
	return nil
}
