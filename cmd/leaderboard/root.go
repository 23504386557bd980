package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"leaderboard-kinetics/internal/app"
	"leaderboard-kinetics/internal/config"
	"leaderboard-kinetics/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "leaderboard",
		Short:        "Momentum leaderboards from periodic symbol snapshots",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $"+config.EnvPath+")")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override logging.format (json|console)")

	root.AddCommand(
		newIngestCmd(opts),
		newShowCmd(opts),
		newPruneCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// loadConfig resolves the config path from the flag, then the environment.
// Without either, defaults are used.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv(config.EnvPath)
	}

	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(path); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	return cfg, nil
}

func (o *rootOptions) logger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
}

// container loads config and builds the dependency container.
func (o *rootOptions) container(cmd *cobra.Command) (*app.Container, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	log := o.logger(cfg)
	if cfg.Storage.Leaderboard == config.BackendMemory && cmd.Name() != "serve" {
		log.Warn().Msg("memory leaderboard storage does not outlive this command")
	}
	return app.Build(cmd.Context(), cfg, log)
}
