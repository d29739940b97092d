package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vincentbai/browsetrace-sessions/internal/config"
	"github.com/vincentbai/browsetrace-sessions/internal/logger"
	"github.com/vincentbai/browsetrace-sessions/internal/sessionize"
)

var version = "dev"

func NewRootCommand() *cobra.Command {
	command := &cobra.Command{
		Use:           "browsetrace-sessions",
		Short:         "Group browser navigation events into visitor sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	command.AddCommand(NewRunCommand())
	command.AddCommand(NewServeCommand())
	command.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return command
}

// setup loads and validates configuration and builds the logger.
func setup() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log.With(logger.String("service", "browsetrace-sessions")), nil
}

func sessionizeOptions(cfg *config.Config) sessionize.Options {
	return sessionize.Options{Gap: cfg.GapMillis(), Workers: cfg.Workers}
}
