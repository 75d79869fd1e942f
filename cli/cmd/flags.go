// Package cmd provides CLI commands for the opcda binary.
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"
)

// Exit codes. A partial batch exits 2 so scripts can tell it apart from
// a total failure.
const (
	exitSuccess = 0
	exitFailure = 1
	exitPartial = 2
)

// GlobalFlags returns the connection and logging flags shared by every
// command. Each overrides the matching opcda.yaml value.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to opcda.yaml",
			EnvVars: []string{"OPCDA_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "bridge",
			Usage:   "Bridge address (host:port)",
			EnvVars: []string{"OPCDA_BRIDGE"},
		},
		&cli.StringFlag{
			Name:  "sim",
			Usage: "Serve a simulated namespace file in-process instead of dialing a bridge",
		},
		&cli.StringFlag{
			Name:  "host",
			Usage: "Server host (default: localhost)",
		},
		&cli.StringFlag{
			Name:  "progid",
			Usage: "Server ProgID",
		},
		&cli.StringFlag{
			Name:  "clsid",
			Usage: "Server CLSID (tried before the ProgID)",
		},
		&cli.IntFlag{
			Name:  "max-depth",
			Usage: "Maximum browse depth, 0 for the default of 32",
		},
		&cli.StringFlag{
			Name:  "log-mode",
			Usage: "Log mode: none, console, file, buffer",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Log file path for --log-mode file",
		},
	}
}

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only the read command supports it.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (read only)",
	}
)

// ReadOnlyFlags returns the shared output flags.
// Includes --tui so that unsupported commands can provide explicit error
// messages instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// StoreFlags returns the persistence flags of the read command.
func StoreFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.BoolFlag{
			Name:  "store",
			Usage: "Write the batch as one Lode snapshot",
		},
	}, StorageFlags()...)
}

// StorageFlags select the Lode dataset shared by read --store and latest.
func StorageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Storage backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Lode dataset ID (default: opcda)",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for the s3 backend",
		},
		&cli.StringFlag{
			Name:  "storage-endpoint",
			Usage: "Custom S3 endpoint (MinIO, R2)",
		},
		&cli.BoolFlag{
			Name:  "storage-s3-path-style",
			Usage: "Use path-style S3 addressing",
		},
	}
}

// AdapterFlags returns the notification flags of the read command.
func AdapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Notify after a stored read: redis or webhook",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Redis URL or webhook endpoint",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis channel (default: opcda:read_completed)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-publish timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Publish retry attempts",
		},
	}
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
