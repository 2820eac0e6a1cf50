package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/analysis-runner/internal/apperror"
	"github.com/sakif/analysis-runner/internal/executor"
)

// Provisioner acquires one environment per call. It never retries; a failure
// is returned to the caller as an apperror.ErrProvision.
type Provisioner struct {
	provider executor.Provider
	budget   time.Duration
	logger   *slog.Logger
}

func NewProvisioner(provider executor.Provider, budget time.Duration, logger *slog.Logger) *Provisioner {
	if budget <= 0 {
		budget = executor.DefaultBudget
	}
	return &Provisioner{provider: provider, budget: budget, logger: logger}
}

func (p *Provisioner) Provision(ctx context.Context) (executor.Handle, error) {
	defer observe(stepProvision, time.Now())

	env, err := p.provider.Create(ctx, p.budget)
	if err != nil {
		environmentsProvisioned.WithLabelValues("error").Inc()
		return executor.Handle{}, apperror.Provision(err)
	}
	environmentsProvisioned.WithLabelValues("ok").Inc()
	activeEnvironments.Inc()

	p.logger.Debug("environment provisioned",
		slog.String("environment", env.Name),
		slog.Duration("budget", p.budget),
	)
	return env, nil
}

// Reclaimer destroys environments. Reclaim never fails from the caller's
// point of view: problems are logged and counted, and the primary result of
// the request is left untouched.
type Reclaimer struct {
	provider executor.Provider
	timeout  time.Duration
	logger   *slog.Logger
}

func NewReclaimer(provider executor.Provider, timeout time.Duration, logger *slog.Logger) *Reclaimer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Reclaimer{provider: provider, timeout: timeout, logger: logger}
}

// Reclaim destroys env. It still runs when ctx is already cancelled, because
// the destroy call gets its own context that only inherits ctx's values.
func (r *Reclaimer) Reclaim(ctx context.Context, env executor.Handle) {
	defer observe(stepReclaim, time.Now())
	defer activeEnvironments.Dec()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.provider.Destroy(ctx, env); err != nil {
		reclaimFailures.Inc()
		r.logger.Error("failed to reclaim environment",
			slog.String("environment", env.Name),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.Debug("environment reclaimed", slog.String("environment", env.Name))
}

func observe(step string, start time.Time) {
	stepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}
