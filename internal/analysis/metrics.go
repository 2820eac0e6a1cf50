package analysis

import "github.com/prometheus/client_golang/prometheus"

// Pipeline step names used as the "step" label.
const (
	stepProvision = "provision"
	stepStage     = "stage"
	stepDeps      = "dependencies"
	stepExecute   = "execute"
	stepReclaim   = "reclaim"
)

var (
	environmentsProvisioned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_environments_provisioned_total",
			Help: "Total number of environment provisioning attempts by result.",
		},
		[]string{"result"},
	)

	activeEnvironments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "analyst_active_environments",
			Help: "Number of environments currently owned by an in-flight analysis.",
		},
	)

	reclaimFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analyst_reclaim_failures_total",
			Help: "Total number of environments whose destruction failed.",
		},
	)

	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyst_analyses_total",
			Help: "Total number of analyses by outcome status, or \"failed\" on infrastructure errors.",
		},
		[]string{"status"},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analyst_step_duration_seconds",
			Help:    "Duration of each pipeline step, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)
)

// statusFailed labels analyses aborted by an infrastructure error.
const statusFailed = "failed"

func init() {
	prometheus.MustRegister(environmentsProvisioned)
	prometheus.MustRegister(activeEnvironments)
	prometheus.MustRegister(reclaimFailures)
	prometheus.MustRegister(analysesTotal)
	prometheus.MustRegister(stepDuration)

	for _, s := range []string{string(StatusCompleted), string(StatusError), string(StatusUnknown), statusFailed} {
		analysesTotal.WithLabelValues(s)
	}
	environmentsProvisioned.WithLabelValues("ok")
	environmentsProvisioned.WithLabelValues("error")
}
