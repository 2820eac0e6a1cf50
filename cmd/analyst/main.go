// Command analyst runs Python analyses against CSV datasets in disposable
// Docker containers, either behind an HTTP API or one shot from the shell.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/analysis-runner/internal/config"
)

var (
	configFlag string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "analyst",
	Short: "analyst - sandboxed Python data analysis",
	Long: `analyst executes Python analysis code next to uploaded CSV datasets.

Every analysis gets a fresh Docker container that is destroyed as soon as the
run finishes, whatever the outcome.

Configuration is read from analyst.yaml (., then $HOME/.analyst), .env files
and ANALYST_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(".env.local", ".env"); err != nil {
			return fmt.Errorf("loading .env: %w", err)
		}

		var err error
		cfg, err = config.Load(configFlag)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// Logs go to stderr so run and check can print JSON on stdout.
		logger = cfg.NewLogger(os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a config file (default: analyst.yaml)")
}

func main() {
	// Cancelling on Ctrl+C lets an in-flight run reclaim its container.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
