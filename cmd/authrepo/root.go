package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/panyam/authrepo/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authrepo CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authrepo",
		Short: "User authentication repository",
		Long: `authrepo manages user accounts and OAuth provider links in a pluggable
identity store (filesystem, gorm, PostgreSQL, Redis or Cloud Datastore).`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path")
	flags.String("backend", "", "store backend (fs, gorm, postgres, redis, gae)")
	flags.String("fs-path", "", "directory of the fs backend")
	flags.String("dsn", "", "gorm backend DSN")
	flags.String("pg-url", "", "postgres backend URL")
	flags.StringSlice("redis", nil, "redis backend addresses")
	flags.String("project", "", "datastore project id")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewServeCmd())

	return cmd
}

// loadConfig reads the configuration for cmd and installs its logger as the
// slog default.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger := cfg.Log.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return cfg, logger, nil
}
