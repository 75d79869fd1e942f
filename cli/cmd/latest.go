package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/opcda/cli/render"
	"github.com/pithecene-io/opcda/cli/tui"
	"github.com/pithecene-io/opcda/store"
)

// LatestCommand returns the latest command. It reads the newest stored
// batch back from Lode and needs no server connection.
func LatestCommand() *cli.Command {
	flags := ReadOnlyFlags()
	flags = append(flags, StorageFlags()...)
	flags = append(flags, &cli.StringFlag{
		Name:  "server",
		Usage: "Server partition to query (default: the --progid/--clsid target; \"*\" for any)",
	})
	return &cli.Command{
		Name:   "latest",
		Usage:  "Show the most recently stored read batch",
		Flags:  flags,
		Action: latestAction,
	}
}

func latestAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	server := latestServer(c, cfg.Server.ProgID, cfg.Server.CLSID)
	ctx, cancel := signalContext(c)
	defer cancel()

	dataset := datasetName(c, cfg.Storage)
	ds, err := store.OpenDataset(ctx, dataset, storageOptions(c, cfg.Storage))
	if err != nil {
		return cli.Exit(fmt.Sprintf("open storage: %v", err), exitFailure)
	}
	records, err := store.QueryLatest(ctx, ds, server)
	switch {
	case errors.Is(err, store.ErrNoSnapshot):
		if server == "" {
			return cli.Exit(fmt.Sprintf("no stored batch in dataset %s", dataset), exitFailure)
		}
		return cli.Exit(fmt.Sprintf("no stored batch for %s in dataset %s", server, dataset), exitFailure)
	case err != nil:
		return cli.Exit(fmt.Sprintf("query latest: %v", err), exitFailure)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewReadValues, records)
	}
	return renderValues(r, records)
}

// latestServer picks the partition filter: --server, else the target
// name a read would have stored under. "*" clears the filter.
func latestServer(c *cli.Context, progID, clsid string) string {
	server := c.String("server")
	if server == "" {
		server = pick(c, "progid", progID)
		if server == "" {
			server = pick(c, "clsid", clsid)
		}
	}
	if server == "*" {
		return ""
	}
	return server
}
