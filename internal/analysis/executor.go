package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/analysis-runner/internal/apperror"
	"github.com/sakif/analysis-runner/internal/executor"
)

// Executor runs guest code. A failing guest program is reported in the
// returned Outcome; only transport problems come back as an error.
type Executor struct {
	provider executor.Provider
	logger   *slog.Logger
}

func NewExecutor(provider executor.Provider, logger *slog.Logger) *Executor {
	return &Executor{provider: provider, logger: logger}
}

func (e *Executor) Execute(ctx context.Context, env executor.Handle, code string) (executor.Outcome, error) {
	start := time.Now()
	defer observe(stepExecute, start)

	out, err := e.provider.Run(ctx, env, code)
	if err != nil {
		return executor.Outcome{}, apperror.Execution(err)
	}

	attrs := []any{
		slog.String("environment", env.Name),
		slog.Duration("duration", time.Since(start)),
		slog.Int("stdout_bytes", len(out.Stdout)),
		slog.Int("stderr_bytes", len(out.Stderr)),
	}
	if out.Fault != nil {
		attrs = append(attrs, slog.String("fault", out.Fault.Kind))
	}
	e.logger.Debug("code executed", attrs...)
	return out, nil
}
