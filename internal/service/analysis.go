// Package service contains the business logic between the HTTP handlers and
// the pipeline or storage layers.
//
// Services accept plain Go values, validate them and return apperror values.
// They know nothing about HTTP, which lets the CLI reuse them directly.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/analysis-runner/internal/analysis"
	"github.com/sakif/analysis-runner/internal/apperror"
	"github.com/sakif/analysis-runner/internal/model"
)

// Runner executes one analysis. *analysis.Runner implements it.
type Runner interface {
	ExecuteAnalysis(ctx context.Context, req analysis.Request) (*analysis.Response, error)
}

// FileSource loads catalog files with their content.
type FileSource interface {
	GetFileContent(ctx context.Context, id string) (*model.File, error)
}

// AnalysisInput is what callers submit. Files are staged first, followed by
// the catalog files named in FileIDs.
type AnalysisInput struct {
	Code    string                 `json:"code"`
	Files   []analysis.FilePayload `json:"files"`
	FileIDs []string               `json:"fileIds,omitempty"`
}

// DatasetSummary describes a catalog file that took part in a run.
type DatasetSummary struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Samples [][]string `json:"samples"`
}

// AnalysisOutput is the pipeline response plus the summaries of the catalog
// files used.
type AnalysisOutput struct {
	analysis.Response
	Files []DatasetSummary `json:"files,omitempty"`
}

type AnalysisService struct {
	runner Runner
	files  FileSource
	logger *slog.Logger
}

// NewAnalysisService creates an AnalysisService. files may be nil, in which
// case requests naming FileIDs are rejected as unavailable.
func NewAnalysisService(runner Runner, files FileSource, logger *slog.Logger) *AnalysisService {
	return &AnalysisService{
		runner: runner,
		files:  files,
		logger: logger,
	}
}

// Run validates in, resolves FileIDs and executes the analysis.
//
// Two payloads with the same name are both staged, in order; the later one
// replaces the earlier one inside the environment.
func (s *AnalysisService) Run(ctx context.Context, in AnalysisInput) (*AnalysisOutput, error) {
	if s.runner == nil {
		return nil, apperror.Unavailable("analysis sandbox is not available")
	}

	if strings.TrimSpace(in.Code) == "" {
		return nil, apperror.ValidationFailed("code", "code is required")
	}
	if len(in.Code) > MaxCodeLength {
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	if n := len(in.Files) + len(in.FileIDs); n > MaxFilesPerRun {
		return nil, apperror.ValidationFailed("files",
			fmt.Sprintf("at most %d files can be attached, got %d", MaxFilesPerRun, n))
	}
	for i, f := range in.Files {
		if err := ValidateFileName(fmt.Sprintf("files[%d].name", i), f.Name); err != nil {
			return nil, err
		}
	}

	req := analysis.Request{
		Code:  in.Code,
		Files: append([]analysis.FilePayload(nil), in.Files...),
	}

	var summaries []DatasetSummary
	if len(in.FileIDs) > 0 {
		if s.files == nil {
			return nil, apperror.Unavailable("dataset catalog is not available")
		}
		for _, id := range in.FileIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				return nil, apperror.ValidationFailed("fileIds", "file ID is required")
			}
			f, err := s.files.GetFileContent(ctx, id)
			if err != nil {
				return nil, err
			}
			req.Files = append(req.Files, analysis.FilePayload{ID: f.ID, Name: f.Name, Content: f.Content})

			preview := SummarizeCSV(f.Content)
			summaries = append(summaries, DatasetSummary{
				ID:      f.ID,
				Name:    f.Name,
				Columns: preview.Columns,
				Samples: preview.Samples,
			})
		}
	}

	resp, err := s.runner.ExecuteAnalysis(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("executing analysis: %w", err)
	}

	return &AnalysisOutput{Response: *resp, Files: summaries}, nil
}

// checkCode exercises file staging, pandas and the completion sentinel.
const checkCode = `import pandas as pd

df = pd.read_csv("check.csv")
print("rows:", len(df))
print("total:", int(df["value"].sum()))
print("` + analysis.Sentinel + `")
`

const checkData = "name,value\na,1\nb,2\nc,3\n"

// Check runs a tiny analysis end to end. The returned output has status
// completed when the sandbox works.
func (s *AnalysisService) Check(ctx context.Context) (*AnalysisOutput, error) {
	s.logger.Info("running sandbox check")
	return s.Run(ctx, AnalysisInput{
		Code:  checkCode,
		Files: []analysis.FilePayload{{ID: "check", Name: "check.csv", Content: checkData}},
	})
}
