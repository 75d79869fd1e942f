package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/opcda/types"
)

// NewApp assembles the opcda command tree. The caller installs the exit
// handler.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:    "opcda",
		Usage:   "OPC DA client: browse, resolve and read tags",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:   GlobalFlags(),
		Commands: []*cli.Command{
			BrowseCommand(),
			ReadableCommand(),
			ReadCommand(),
			LatestCommand(),
			ResolveCommand(),
			ClassifyCommand(),
			StatusCommand(),
			PropertiesCommand(),
			ServeSimCommand(),
			VersionCommand(commit),
		},
	}
}
