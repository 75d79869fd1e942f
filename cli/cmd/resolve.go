package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/opcda/cli/render"
	"github.com/pithecene-io/opcda/types"
	"github.com/pithecene-io/opcda/unified"
)

// ResolveRow is the outcome for one browse path.
type ResolveRow struct {
	BrowsePath string `json:"browse_path"`
	ItemID     string `json:"item_id"`
	Match      string `json:"match"`
	Via        string `json:"via"`
}

// ResolveCommand returns the resolve command.
func ResolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve browse paths to item identifiers",
		ArgsUsage: "<path>...",
		Flags:     ReadOnlyFlags(),
		Action:    resolveAction,
	}
}

func resolveAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("at least one browse path required", exitFailure)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for resolve command", exitFailure)
	}

	return withSession(c, func(ctx context.Context, e *env) error {
		rows := make([]ResolveRow, 0, c.NArg())
		failed := 0
		for _, path := range c.Args().Slice() {
			res, err := e.session.ResolveItemID(ctx, path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("resolve failed: %v", err), exitFailure)
			}
			if !res.OK() {
				failed++
			}
			rows = append(rows, ResolveRow{
				BrowsePath: path,
				ItemID:     res.ItemID,
				Match:      res.Match.String(),
				Via:        res.Via.String(),
			})
		}
		if err := r.Render(rows); err != nil {
			return err
		}
		return exitFor(failed, len(rows))
	})
}

// exitFor maps a failure count to the partial/failure exit codes.
func exitFor(failed, total int) error {
	switch {
	case failed == 0:
		return nil
	case failed == total:
		return cli.Exit("", exitFailure)
	default:
		return cli.Exit("", exitPartial)
	}
}

// ClassifyRow is the decomposition of one quality code.
type ClassifyRow struct {
	Quality       string `json:"quality"`
	QualityString string `json:"quality_string"`
	Severity      string `json:"severity"`
	Category      string `json:"category"`
	Code          uint32 `json:"code"`
	FormattedCode string `json:"formatted_code"`
	Message       string `json:"message"`
}

// ClassifyCommand returns the classify command. It needs no server.
func ClassifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Decompose quality codes (decimal or 0x hex)",
		ArgsUsage: "<code>...",
		Flags:     ReadOnlyFlags(),
		Action:    classifyAction,
	}
}

func classifyAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("at least one quality code required", exitFailure)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for classify command", exitFailure)
	}

	rows := make([]ClassifyRow, 0, c.NArg())
	for _, arg := range c.Args().Slice() {
		code, err := parseQuality(arg)
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		u := unified.FromQuality(code, "cli")
		rows = append(rows, ClassifyRow{
			Quality:       fmt.Sprintf("0x%04X", code),
			QualityString: types.QualityString(code),
			Severity:      u.Severity().String(),
			Category:      u.Category().String(),
			Code:          u.Code(),
			FormattedCode: u.FormattedCode(),
			Message:       u.Message(),
		})
	}
	return r.Render(rows)
}

// parseQuality accepts decimal, 0x hex and 0o/0b literals up to 0xFFFF.
func parseQuality(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid quality code %q: must be an integer in [0, 0xFFFF]", s)
	}
	return uint16(v), nil
}
