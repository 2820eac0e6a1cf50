package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/analysis-runner/internal/executor"
)

// fakeProvider is an in-memory executor.Provider. Each environment is a map
// of file names to contents; Run answers installer scripts with runDeps and
// everything else with runCode.
type fakeProvider struct {
	mu sync.Mutex

	createErr  error
	writeErr   map[string]error
	destroyErr error
	runErr     error
	depsFault  *executor.Fault

	runCode func(files map[string]string, code string) executor.Outcome

	envs      map[string]map[string]string
	created   int
	destroyed map[string]int
	writes    []string
	runs      []string
	installs  int
	// blockRun makes Run wait for ctx cancellation.
	blockRun bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		writeErr:  map[string]error{},
		envs:      map[string]map[string]string{},
		destroyed: map[string]int{},
	}
}

func (f *fakeProvider) Create(_ context.Context, budget time.Duration) (executor.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return executor.Handle{}, f.createErr
	}
	f.created++
	id := fmt.Sprintf("env-%d", f.created)
	f.envs[id] = map[string]string{}
	return executor.Handle{ID: id, Name: id, Deadline: time.Now().Add(budget)}, nil
}

func (f *fakeProvider) WriteFile(ctx context.Context, env executor.Handle, name, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.writeErr[name]; err != nil {
		return err
	}
	f.writes = append(f.writes, name)
	f.envs[env.ID][name] = content
	return nil
}

func (f *fakeProvider) Run(ctx context.Context, env executor.Handle, code string) (executor.Outcome, error) {
	f.mu.Lock()
	block := f.blockRun
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return executor.Outcome{}, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(code, "find_spec") {
		f.installs++
		if f.depsFault != nil {
			return executor.Outcome{Stderr: "ERROR: No matching distribution", Fault: f.depsFault}, nil
		}
		return executor.Outcome{}, nil
	}
	if f.runErr != nil {
		return executor.Outcome{}, f.runErr
	}
	f.runs = append(f.runs, code)
	if f.runCode == nil {
		return executor.Outcome{}, nil
	}
	return f.runCode(f.envs[env.ID], code), nil
}

func (f *fakeProvider) Destroy(_ context.Context, env executor.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed[env.ID]++
	return f.destroyErr
}

func (f *fakeProvider) destroyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.destroyed {
		n += c
	}
	return n
}

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
