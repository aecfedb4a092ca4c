// Package command defines the meshsync-cli commands.
package command

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/unknownsaying/meshsync/internal/cli/connection"
	"github.com/unknownsaying/meshsync/internal/cli/output"
	"github.com/unknownsaying/meshsync/internal/telemetry/logger"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "meshsync-cli",
		Usage:   "meshsync command-line tool",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			PingCommand(),
			ChatCommand(),
			RPCCommand(),
			WatchCommand(),
			StatusCommand(),
			TokenCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "server address, host:port for UDP or a ws:// URL",
			EnvVars: []string{"MESHSYNC_SERVER"},
			Value:   "localhost:5850",
		},
		&cli.StringFlag{
			Name:    "name",
			Aliases: []string{"n"},
			Usage:   "display name for the session",
			EnvVars: []string{"MESHSYNC_NAME"},
			Value:   "cli",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json",
			Value:   "table",
		},
		&cli.StringFlag{
			Name:    "ca",
			Usage:   "PEM file with extra CA roots for wss:// servers",
			EnvVars: []string{"MESHSYNC_CA"},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "log protocol activity to stderr",
		},
	}
}

func dialOpts(c *cli.Context) []connection.DialOption {
	var opts []connection.DialOption
	if ca := c.String("ca"); ca != "" {
		opts = append(opts, connection.WithCACert(ca))
	}
	return opts
}

func formatter(c *cli.Context) output.Formatter {
	return output.NewFormatter(output.Format(c.String("output")))
}

func cliLogger(c *cli.Context) (logger.Logger, error) {
	var out io.Writer = io.Discard
	level := "error"
	if c.Bool("verbose") {
		out = os.Stderr
		level = "debug"
	}
	return logger.New(logger.Config{Level: level, Format: "text", Output: out})
}
