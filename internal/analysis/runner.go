package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/analysis-runner/internal/apperror"
	"github.com/sakif/analysis-runner/internal/executor"
)

// Runner composes the pipeline steps into ExecuteAnalysis. It holds no
// per-request state, so one Runner serves any number of concurrent calls.
type Runner struct {
	provisioner  *Provisioner
	stager       *Stager
	deps         *Dependencies
	executor     *Executor
	reclaimer    *Reclaimer
	dependencies []Dependency
	logger       *slog.Logger
}

// NewRunner wires every step to the same provider.
func NewRunner(provider executor.Provider, cfg Config, logger *slog.Logger) *Runner {
	logger = logger.With(slog.String("component", "analysis"))
	return &Runner{
		provisioner:  NewProvisioner(provider, cfg.Budget, logger),
		stager:       NewStager(provider, logger),
		deps:         NewDependencies(provider, logger),
		executor:     NewExecutor(provider, logger),
		reclaimer:    NewReclaimer(provider, cfg.ReclaimTimeout, logger),
		dependencies: cfg.Dependencies,
		logger:       logger,
	}
}

// ExecuteAnalysis provisions a dedicated environment, stages req.Files in
// order, ensures dependencies, runs req.Code and classifies the outcome.
//
// The environment is reclaimed exactly once before ExecuteAnalysis returns,
// on success, on error and when ctx is cancelled. If provisioning fails there
// is nothing to reclaim and the error is returned directly.
//
// A non-nil error always wraps one of apperror.ErrProvision, ErrStaging,
// ErrDependency or ErrExecution. Guest failures are reported in the Response.
func (r *Runner) ExecuteAnalysis(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()

	env, err := r.provisioner.Provision(ctx)
	if err != nil {
		analysesTotal.WithLabelValues(statusFailed).Inc()
		r.logger.Error("analysis failed",
			slog.String("step", stepProvision),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	defer func() {
		r.reclaimer.Reclaim(ctx, env)
		r.finish(env, start, resp, err)
	}()

	if err := r.stager.StageAll(ctx, env, req.Files); err != nil {
		return nil, err
	}

	if err := r.deps.Ensure(ctx, env, r.dependencies); err != nil {
		return nil, err
	}

	out, err := r.executor.Execute(ctx, env, req.Code)
	if err != nil {
		return nil, err
	}

	result, status := Classify(out)
	return &Response{
		Result:    result,
		RawStdout: out.Stdout,
		Status:    status,
	}, nil
}

func (r *Runner) finish(env executor.Handle, start time.Time, resp *Response, err error) {
	if err != nil {
		analysesTotal.WithLabelValues(statusFailed).Inc()
		r.logger.Error("analysis failed",
			slog.String("environment", env.Name),
			slog.String("kind", apperror.Name(err)),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return
	}
	if resp == nil {
		// Unwinding from a panic; the environment is already reclaimed.
		return
	}
	analysesTotal.WithLabelValues(string(resp.Status)).Inc()
	r.logger.Info("analysis finished",
		slog.String("environment", env.Name),
		slog.String("status", string(resp.Status)),
		slog.Duration("duration", time.Since(start)),
	)
}
