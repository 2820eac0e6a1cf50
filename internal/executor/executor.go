// Package executor defines the contract between the analysis pipeline and an
// execution environment provider.
//
// An environment is an isolated, time-bounded remote context with a private
// file namespace. Implementations live in sub-packages (see executor/docker).
package executor

import (
	"context"
	"time"
)

// DefaultBudget is the wall-clock lifetime of an environment when none is
// configured. After it elapses the provider may reclaim the environment on
// its own.
const DefaultBudget = 300_000 * time.Millisecond

// Handle identifies one provisioned environment. It is opaque to callers and
// owned by exactly one in-flight analysis.
type Handle struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Deadline time.Time `json:"deadline"`
}

// Fault is a runtime error raised by guest code, e.g. an unhandled exception.
type Fault struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Outcome is the captured result of one execution. It is produced once and
// treated as immutable afterwards.
type Outcome struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Fault  *Fault `json:"fault,omitempty"`
}

// Provider allocates, feeds, runs and destroys execution environments.
//
// Run reports guest failures through Outcome.Fault and reserves the error
// return for transport or infrastructure failures.
type Provider interface {
	Create(ctx context.Context, budget time.Duration) (Handle, error)
	WriteFile(ctx context.Context, env Handle, name, content string) error
	Run(ctx context.Context, env Handle, code string) (Outcome, error)
	Destroy(ctx context.Context, env Handle) error
}

// Pinger is implemented by providers that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
