package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vincentbai/browsetrace-sessions/internal/database"
	"github.com/vincentbai/browsetrace-sessions/internal/server"
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local agent that stores events and serves sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			databasePath, err := cfg.ResolveDatabasePath()
			if err != nil {
				return err
			}
			db, err := database.NewDatabase(databasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.NewServer(db, cfg.ServerAddress, sessionizeOptions(cfg), log).Start(ctx)
		},
	}
}
