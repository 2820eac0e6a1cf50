package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/analysis-runner/internal/executor/docker"
	"github.com/sakif/analysis-runner/internal/server"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API. Analyses are under /api/analysis, the dataset catalog
under /api/folders and /api/files, metrics on /metrics.

The server starts without Docker; analyses then answer 503 until it is
restarted with a reachable daemon.

Examples:
  analyst serve
  analyst serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}

	provider, err := docker.New(cfg.Docker(), logger)
	if err != nil {
		logger.Warn("docker unavailable, analyses are disabled", slog.String("error", err.Error()))
		provider = nil
	} else {
		defer provider.Close()
	}

	srv, err := server.New(cfg, logger, provider)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Start(cmd.Context())
}
