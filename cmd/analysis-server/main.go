// Package main implements the analysis server: a websocket endpoint that
// streams engine analysis for the positions clients play, and a REST API
// over the recorded game ledgers.
package main

import (
	"fmt"
	"os"
	"time"

	"chessanalysis/cmd/analysis-server/cli"
	"chessanalysis/internal/server/config"

	"github.com/spf13/cobra"
)

const gracefulShutdownTimeout = 5 * time.Second

// serveFlags are command-line overrides applied on top of the config file
type serveFlags struct {
	configPath string
	pidPath    string
	pidLock    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var flags serveFlags
	cfg := config.Default()

	// load merges file, environment and explicitly set flags
	load := func(cmd *cobra.Command) (config.Config, error) {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return loaded, err
		}
		applyFlags(cmd, &loaded, cfg)
		return loaded, nil
	}

	root := &cobra.Command{
		Use:           "analysis-server",
		Short:         "Chess position analysis server",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := load(cmd)
			if err != nil {
				return err
			}
			return runServe(loaded, flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to YAML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the session socket and REST API (default)",
		Args:  cobra.NoArgs,
		RunE:  root.RunE,
	}

	for _, c := range []*cobra.Command{root, serve} {
		fs := c.Flags()
		fs.StringVar(&cfg.API.Host, "api-host", cfg.API.Host, "API server host")
		fs.IntVar(&cfg.API.Port, "api-port", cfg.API.Port, "API server port")
		fs.BoolVar(&cfg.API.Dev, "dev", cfg.API.Dev, "Development mode (relaxed rate limits, fixed token secret)")
		fs.StringVar(&cfg.Socket.Host, "socket-host", cfg.Socket.Host, "Session socket host")
		fs.IntVar(&cfg.Socket.Port, "socket-port", cfg.Socket.Port, "Session socket port")
		fs.StringVar(&cfg.Engine.Binary, "engine", cfg.Engine.Binary, "Path to the analysis engine binary")
		fs.IntVar(&cfg.Engine.Depth, "depth", cfg.Engine.Depth, "Search depth requested per analysis")
		fs.DurationVar(&cfg.Engine.Timeout, "timeout", cfg.Engine.Timeout, "Hard limit per engine process")
		fs.IntVar(&cfg.Engine.MaxConcurrent, "max-concurrent", cfg.Engine.MaxConcurrent, "Maximum concurrent engine processes (0 = unbounded)")
		fs.StringVar(&cfg.Storage.Path, "storage-path", cfg.Storage.Path, "Path to SQLite database file (disables persistence if empty)")
		fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level")
		fs.BoolVar(&cfg.Log.Pretty, "pretty", cfg.Log.Pretty, "Human-readable log output")
		fs.StringVar(&flags.pidPath, "pid", "", "Optional path to write PID file")
		fs.BoolVar(&flags.pidLock, "pid-lock", false, "Lock PID file to allow only one instance (requires --pid)")
	}

	root.AddCommand(
		serve,
		cli.NewDBCommand(),
		cli.NewTokenCommand(func() (string, error) {
			loaded, err := config.Load(flags.configPath)
			if err != nil {
				return "", err
			}
			return loaded.Auth.JWTSecret, nil
		}),
	)

	return root
}

// applyFlags copies every flag the user set explicitly from flagged into cfg
func applyFlags(cmd *cobra.Command, cfg *config.Config, flagged config.Config) {
	fs := cmd.Flags()
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}

	set("api-host", func() { cfg.API.Host = flagged.API.Host })
	set("api-port", func() { cfg.API.Port = flagged.API.Port })
	set("dev", func() { cfg.API.Dev = flagged.API.Dev })
	set("socket-host", func() { cfg.Socket.Host = flagged.Socket.Host })
	set("socket-port", func() { cfg.Socket.Port = flagged.Socket.Port })
	set("engine", func() { cfg.Engine.Binary = flagged.Engine.Binary })
	set("depth", func() { cfg.Engine.Depth = flagged.Engine.Depth })
	set("timeout", func() { cfg.Engine.Timeout = flagged.Engine.Timeout })
	set("max-concurrent", func() { cfg.Engine.MaxConcurrent = flagged.Engine.MaxConcurrent })
	set("storage-path", func() { cfg.Storage.Path = flagged.Storage.Path })
	set("log-level", func() { cfg.Log.Level = flagged.Log.Level })
	set("pretty", func() { cfg.Log.Pretty = flagged.Log.Pretty })
}

func validateFlags(flags serveFlags) error {
	if flags.pidLock && flags.pidPath == "" {
		return fmt.Errorf("--pid-lock requires --pid")
	}
	return nil
}
