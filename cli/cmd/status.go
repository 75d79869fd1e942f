package cmd

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/opcda/cli/render"
	"github.com/pithecene-io/opcda/types"
)

// StatusResponse is the response for the status command.
type StatusResponse struct {
	Server         string `json:"server"`
	Host           string `json:"host"`
	Vendor         string `json:"vendor"`
	Version        string `json:"version"`
	State          string `json:"state"`
	StartTime      string `json:"start_time"`
	CurrentTime    string `json:"current_time"`
	LastUpdateTime string `json:"last_update_time"`
	GroupCount     int    `json:"group_count"`
	BrowseMethod   string `json:"browse_method"`
}

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the server status block",
		Flags:  ReadOnlyFlags(),
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for status command", exitFailure)
	}

	return withSession(c, func(ctx context.Context, e *env) error {
		st, err := e.session.ServerStatus(ctx)
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		return r.Render(StatusResponse{
			Server:         e.target.ServerName(),
			Host:           e.target.Host,
			Vendor:         st.Vendor,
			Version:        st.Version(),
			State:          st.State.String(),
			StartTime:      formatTime(st.StartTime),
			CurrentTime:    formatTime(st.CurrentTime),
			LastUpdateTime: formatTime(st.LastUpdateTime),
			GroupCount:     st.GroupCount,
			BrowseMethod:   e.session.Method().String(),
		})
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// PropertiesResponse is the response for the properties command.
type PropertiesResponse struct {
	ItemID       string `json:"item_id"`
	DataType     string `json:"data_type"`
	AccessRights string `json:"access_rights"`
	Quality      string `json:"quality"`
	Status       string `json:"status"`
}

// PropertiesCommand returns the properties command.
func PropertiesCommand() *cli.Command {
	return &cli.Command{
		Name:      "properties",
		Usage:     "Show an item's data type and access rights",
		ArgsUsage: "<item_id>",
		Flags:     ReadOnlyFlags(),
		Action:    propertiesAction,
	}
}

func propertiesAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one item id required", exitFailure)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for properties command", exitFailure)
	}

	return withSession(c, func(ctx context.Context, e *env) error {
		rec, status, err := e.session.ItemProperties(ctx, c.Args().First())
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		if err := r.Render(PropertiesResponse{
			ItemID:       rec.ItemID,
			DataType:     rec.DataType.String(),
			AccessRights: rec.AccessRights.String(),
			Quality:      types.QualityString(rec.Quality),
			Status:       status.String(),
		}); err != nil {
			return err
		}
		return exitForStatus(status)
	})
}

// exitForStatus maps an aggregate status to an exit code.
func exitForStatus(s types.Status) error {
	switch s {
	case types.StatusOK:
		return nil
	case types.StatusPartial:
		return cli.Exit("", exitPartial)
	default:
		return cli.Exit("", exitFailure)
	}
}
