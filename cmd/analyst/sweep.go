package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/analysis-runner/internal/executor/docker"
)

var allFlag bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove leftover analysis containers",
	Long: `Remove containers created by analyst whose budget has expired.

With --all every analyst container is removed, including ones a running
server is still using.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := docker.New(cfg.Docker(), logger)
		if err != nil {
			return fmt.Errorf("connecting to docker: %w", err)
		}
		defer provider.Close()

		n, err := provider.Sweep(cmd.Context(), allFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d container(s)\n", n)
		return nil
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&allFlag, "all", false, "Remove every analyst container, not just expired ones")
	rootCmd.AddCommand(sweepCmd)
}
