package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/analysis-runner/internal/analysis"
	"github.com/sakif/analysis-runner/internal/executor/docker"
	"github.com/sakif/analysis-runner/internal/service"
)

var (
	codeFlag  string
	filesFlag []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one analysis and print the JSON response",
	Long: `Run one analysis in a fresh container and print the response.

Each --file is staged into the working directory under its base name.
The exit status is non-zero only for infrastructure failures; a guest
exception is reported in the JSON with status "error".

Examples:
  analyst run --code report.py --file sales.csv
  analyst run --code - < report.py`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&codeFlag, "code", "", `Python file to run, "-" for stdin`)
	runCmd.Flags().StringSliceVar(&filesFlag, "file", nil, "Input file to stage (repeatable)")
	runCmd.MarkFlagRequired("code")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	code, err := readSource(cmd, codeFlag)
	if err != nil {
		return err
	}

	in := service.AnalysisInput{Code: code}
	for i, path := range filesFlag {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		in.Files = append(in.Files, analysis.FilePayload{
			ID:      fmt.Sprintf("file-%d", i+1),
			Name:    filepath.Base(path),
			Content: string(raw),
		})
	}

	svc, closeFn, err := newAnalysisService()
	if err != nil {
		return err
	}
	defer closeFn()

	out, err := svc.Run(cmd.Context(), in)
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func readSource(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading code from stdin: %w", err)
		}
		return string(raw), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading code: %w", err)
	}
	return string(raw), nil
}

// newAnalysisService builds the pipeline without a dataset catalog.
func newAnalysisService() (*service.AnalysisService, func(), error) {
	provider, err := docker.New(cfg.Docker(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to docker: %w", err)
	}
	runner := analysis.NewRunner(provider, cfg.Analysis(), logger)
	return service.NewAnalysisService(runner, nil, logger), func() { provider.Close() }, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
