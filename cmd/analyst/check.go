package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/sakif/analysis-runner/internal/analysis"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a small pandas analysis to verify the sandbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := newAnalysisService()
		if err != nil {
			return err
		}
		defer closeFn()

		out, err := svc.Check(cmd.Context())
		if err != nil {
			return err
		}
		if err := printJSON(cmd, out); err != nil {
			return err
		}
		if out.Status != analysis.StatusCompleted {
			return errors.New("sandbox check did not complete")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
