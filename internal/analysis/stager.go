package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/analysis-runner/internal/apperror"
	"github.com/sakif/analysis-runner/internal/executor"
)

// Stager writes input files into an environment's working directory.
type Stager struct {
	provider executor.Provider
	logger   *slog.Logger
}

func NewStager(provider executor.Provider, logger *slog.Logger) *Stager {
	return &Stager{provider: provider, logger: logger}
}

// Stage writes one file. Writing a name twice replaces the earlier content.
func (s *Stager) Stage(ctx context.Context, env executor.Handle, name, content string) error {
	defer observe(stepStage, time.Now())

	if err := s.provider.WriteFile(ctx, env, name, content); err != nil {
		return apperror.Staging(name, err)
	}
	s.logger.Debug("input staged",
		slog.String("environment", env.Name),
		slog.String("file", name),
		slog.Int("bytes", len(content)),
	)
	return nil
}

// StageAll stages files in order and stops at the first failure. Files that
// were already written stay in place until the environment is reclaimed.
func (s *Stager) StageAll(ctx context.Context, env executor.Handle, files []FilePayload) error {
	for _, f := range files {
		if err := s.Stage(ctx, env, f.Name, f.Content); err != nil {
			return err
		}
	}
	return nil
}
