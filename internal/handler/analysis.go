// Package handler contains the HTTP request handlers of the analysis runner.
//
// Handlers are the glue between HTTP and the services: they parse the
// request, call one service method and write the response. They hold no
// business logic.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/analysis-runner/internal/auth"
	"github.com/sakif/analysis-runner/internal/service"
)

// Analyzer runs analyses. *service.AnalysisService implements it.
type Analyzer interface {
	Run(ctx context.Context, in service.AnalysisInput) (*service.AnalysisOutput, error)
	Check(ctx context.Context) (*service.AnalysisOutput, error)
}

// AnalysisHandler serves the analysis endpoints.
type AnalysisHandler struct {
	analyzer Analyzer
	logger   *slog.Logger
}

func NewAnalysisHandler(analyzer Analyzer, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer, logger: logger}
}

// HandleRun executes one analysis.
//
// HTTP: POST /api/analysis
// REQUEST BODY: {"code": "...", "files": [{"id","name","content"}], "fileIds": ["..."]}
//
// Guest failures and ambiguous runs are answered with 200; the status field
// of the body tells them apart. Only infrastructure failures are non-2xx.
func (h *AnalysisHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var in service.AnalysisInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.analyzer.Run(r.Context(), in)
	if err != nil {
		subject, _ := auth.SubjectFromContext(r.Context())
		h.logger.Warn("analysis failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// HandleCheck runs the sandbox self-test.
//
// HTTP: GET /api/sandbox/check
func (h *AnalysisHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	out, err := h.analyzer.Check(r.Context())
	if err != nil {
		h.logger.Error("sandbox check failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
