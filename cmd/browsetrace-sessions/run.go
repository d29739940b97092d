package main

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/vincentbai/browsetrace-sessions/internal/database"
	"github.com/vincentbai/browsetrace-sessions/internal/runner"
	"github.com/vincentbai/browsetrace-sessions/internal/sink"
	"github.com/vincentbai/browsetrace-sessions/internal/source"
)

func NewRunCommand() *cobra.Command {
	var (
		input  string
		output string
		fromDB bool
	)

	command := &cobra.Command{
		Use:   "run",
		Short: "Fetch events, compute sessions and submit them once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input != "" && fromDB {
				return errors.New("--input and --from-db are mutually exclusive")
			}
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			client := &http.Client{Timeout: cfg.HTTPTimeout}

			var src runner.Source
			switch {
			case input != "":
				src = source.NewFile(input)
			case fromDB:
				databasePath, err := cfg.ResolveDatabasePath()
				if err != nil {
					return err
				}
				db, err := database.NewDatabase(databasePath)
				if err != nil {
					return err
				}
				defer db.Close()
				src = db
			case cfg.GetAPIURI != "":
				src = source.NewHTTP(cfg.GetAPIURI, client)
			default:
				return errors.New("no event source: set GET_API_URI, --input or --from-db")
			}

			var dst runner.Sink
			switch {
			case output == "-":
				dst = sink.NewWriter(cmd.OutOrStdout())
			case output != "":
				dst = sink.NewFile(output)
			case cfg.PostAPIURI != "":
				dst = sink.NewHTTP(cfg.PostAPIURI, client)
			default:
				return errors.New("no result sink: set POST_API_URI or --output")
			}

			_, err = runner.New(src, dst, sessionizeOptions(cfg), log).Run(cmd.Context())
			return err
		},
	}

	command.Flags().StringVar(&input, "input", "", "read events from a JSON file instead of GET_API_URI")
	command.Flags().StringVar(&output, "output", "", "write sessions to a file ('-' for stdout) instead of POST_API_URI")
	command.Flags().BoolVar(&fromDB, "from-db", false, "read events from the local agent database")
	return command
}
