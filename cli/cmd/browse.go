package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/opcda/cli/render"
)

// BrowseCommand returns the browse command.
func BrowseCommand() *cli.Command {
	return &cli.Command{
		Name:      "browse",
		Usage:     "List every tag below a start path",
		ArgsUsage: "[start]",
		Flags:     ReadOnlyFlags(),
		Action:    browseAction,
	}
}

func browseAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for browse command", exitFailure)
	}

	return withSession(c, func(ctx context.Context, e *env) error {
		tags, err := e.session.BrowseAllTags(ctx, c.Args().First())
		if err != nil && len(tags) == 0 {
			return cli.Exit(fmt.Sprintf("browse failed: %v", err), exitFailure)
		}
		if tags == nil {
			tags = []string{}
		}
		if rerr := r.Render(tags); rerr != nil {
			return rerr
		}
		if err != nil {
			return cli.Exit(fmt.Sprintf("browse incomplete: %v", err), exitPartial)
		}
		return nil
	})
}

// ReadableResponse is the response for the readable command.
type ReadableResponse struct {
	Total    int           `json:"total"`
	Readable int           `json:"readable"`
	Tags     []ReadableRow `json:"tags"`
}

// ReadableRow is one tag whose identifier validated.
type ReadableRow struct {
	BrowsePath string `json:"browse_path"`
	ItemID     string `json:"item_id"`
	Match      string `json:"match"`
	Via        string `json:"via"`
}

// ReadableCommand returns the readable command.
func ReadableCommand() *cli.Command {
	return &cli.Command{
		Name:      "readable",
		Usage:     "Browse, then list the tags whose identifiers validate",
		ArgsUsage: "[start]",
		Flags:     ReadOnlyFlags(),
		Action:    readableAction,
	}
}

func readableAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for readable command", exitFailure)
	}

	return withSession(c, func(ctx context.Context, e *env) error {
		tags, total, err := e.session.ReadableTags(ctx, c.Args().First())
		if err != nil && total == 0 {
			return cli.Exit(fmt.Sprintf("browse failed: %v", err), exitFailure)
		}

		resp := ReadableResponse{Total: total, Readable: len(tags), Tags: make([]ReadableRow, 0, len(tags))}
		for _, t := range tags {
			resp.Tags = append(resp.Tags, ReadableRow{
				BrowsePath: t.BrowsePath,
				ItemID:     t.ItemID,
				Match:      t.Match.String(),
				Via:        t.Via.String(),
			})
		}

		// The table view lists rows; the count goes to a terminal only.
		if r.Format() == render.FormatTable {
			if isStderrTTY() {
				fmt.Fprintf(e.stderr, "%d of %d tags readable\n", resp.Readable, resp.Total)
			}
			return r.Render(resp.Tags)
		}
		return r.Render(resp)
	})
}
