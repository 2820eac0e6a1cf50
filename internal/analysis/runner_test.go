package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/analysis-runner/internal/apperror"
	"github.com/sakif/analysis-runner/internal/executor"
)

func newTestRunner(p *fakeProvider) *Runner {
	cfg := DefaultConfig()
	cfg.ReclaimTimeout = time.Second
	return NewRunner(p, cfg, discardLogger())
}

func TestExecuteAnalysisCompleted(t *testing.T) {
	p := newFakeProvider()
	p.runCode = func(files map[string]string, code string) executor.Outcome {
		return executor.Outcome{Stdout: "Revenue: 42\nANALYSIS_COMPLETED\n"}
	}

	resp, err := newTestRunner(p).ExecuteAnalysis(context.Background(), Request{
		Code:  "print('Revenue: 42')",
		Files: []FilePayload{{ID: "1", Name: "sales.csv", Content: "rev\n42\n"}},
	})

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, resp.Status)
	require.NotNil(t, resp.Result.Text)
	assert.Equal(t, "Revenue: 42", *resp.Result.Text)
	assert.Equal(t, "Revenue: 42\nANALYSIS_COMPLETED\n", resp.RawStdout)
	assert.Equal(t, 1, p.destroyCount())
	assert.Equal(t, 1, p.installs)
	assert.Equal(t, []string{"print('Revenue: 42')"}, p.runs)
}

func TestExecuteAnalysisGuestFault(t *testing.T) {
	p := newFakeProvider()
	p.runCode = func(map[string]string, string) executor.Outcome {
		return executor.Outcome{
			Stderr: "Traceback...\nValueError: ...",
			Fault:  &executor.Fault{Kind: "ValueError", Detail: "column 'rev' not found"},
		}
	}

	resp, err := newTestRunner(p).ExecuteAnalysis(context.Background(), Request{Code: "x"})

	require.NoError(t, err, "guest faults are data, not errors")
	assert.Equal(t, StatusError, resp.Status)
	assert.Nil(t, resp.Result.Text)
	assert.Equal(t, &Error{
		Name:      "ValueError",
		Message:   "column 'rev' not found",
		Traceback: "Traceback...\nValueError: ...",
	}, resp.Result.Error)
	assert.Equal(t, 1, p.destroyCount())
}

func TestExecuteAnalysisStagesInOrderLastWriteWins(t *testing.T) {
	p := newFakeProvider()
	p.runCode = func(files map[string]string, code string) executor.Outcome {
		return executor.Outcome{Stdout: files["a.csv"]}
	}

	resp, err := newTestRunner(p).ExecuteAnalysis(context.Background(), Request{
		Code: "print(open('a.csv').read())",
		Files: []FilePayload{
			{ID: "1", Name: "a.csv", Content: "first"},
			{ID: "2", Name: "b.csv", Content: "other"},
			{ID: "3", Name: "a.csv", Content: "second"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.csv", "a.csv"}, p.writes)
	require.NotNil(t, resp.Result.Text)
	assert.Equal(t, "second", *resp.Result.Text)
	assert.Equal(t, StatusUnknown, resp.Status)
}

func TestExecuteAnalysisProvisionFailure(t *testing.T) {
	p := newFakeProvider()
	p.createErr = errBoom

	resp, err := newTestRunner(p).ExecuteAnalysis(context.Background(), Request{Code: "x"})

	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, apperror.ErrProvision))
	assert.True(t, errors.Is(err, errBoom))
	assert.Equal(t, 0, p.destroyCount(), "nothing was provisioned, nothing to reclaim")
}

func TestExecuteAnalysisReclaimsOnEveryFailure(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(p *fakeProvider)
		wantErr error
	}{
		{
			name:    "staging",
			setup:   func(p *fakeProvider) { p.writeErr["b.csv"] = errBoom },
			wantErr: apperror.ErrStaging,
		},
		{
			name:    "dependencies",
			setup:   func(p *fakeProvider) { p.depsFault = &executor.Fault{Kind: "CalledProcessError", Detail: "exit 1"} },
			wantErr: apperror.ErrDependency,
		},
		{
			name:    "execution transport",
			setup:   func(p *fakeProvider) { p.runErr = errBoom },
			wantErr: apperror.ErrExecution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider()
			tt.setup(p)

			resp, err := newTestRunner(p).ExecuteAnalysis(context.Background(), Request{
				Code: "x",
				Files: []FilePayload{
					{Name: "a.csv", Content: "1"},
					{Name: "b.csv", Content: "2"},
					{Name: "c.csv", Content: "3"},
				},
			})

			assert.Nil(t, resp)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.True(t, apperror.IsInfrastructure(err))
			assert.Equal(t, 1, p.destroyCount())
		})
	}
}

func TestExecuteAnalysisStagingStopsAtFirstFailure(t *testing.T) {
	p := newFakeProvider()
	p.writeErr["b.csv"] = errBoom

	_, err := newTestRunner(p).ExecuteAnalysis(context.Background(), Request{
		Code: "x",
		Files: []FilePayload{
			{Name: "a.csv"}, {Name: "b.csv"}, {Name: "c.csv"},
		},
	})

	require.Error(t, err)
	assert.Equal(t, []string{"a.csv"}, p.writes)
	assert.Empty(t, p.runs, "code must not run after a staging failure")
	assert.Equal(t, 0, p.installs)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "b.csv", appErr.Field)
}

func TestExecuteAnalysisDependencyDetail(t *testing.T) {
	p := newFakeProvider()
	p.depsFault = &executor.Fault{Kind: "CalledProcessError", Detail: "exit 1"}

	_, err := newTestRunner(p).ExecuteAnalysis(context.Background(), Request{Code: "x"})

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "ERROR: No matching distribution", appErr.Detail)
	assert.Empty(t, p.runs)
}

func TestExecuteAnalysisReclaimFailureDoesNotMaskResult(t *testing.T) {
	p := newFakeProvider()
	p.destroyErr = errBoom
	p.runCode = func(map[string]string, string) executor.Outcome {
		return executor.Outcome{Stdout: "ok ANALYSIS_COMPLETED"}
	}

	resp, err := newTestRunner(p).ExecuteAnalysis(context.Background(), Request{Code: "x"})

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Equal(t, 1, p.destroyCount())
}

func TestExecuteAnalysisReclaimFailureDoesNotMaskError(t *testing.T) {
	p := newFakeProvider()
	p.destroyErr = errors.New("destroy failed")
	p.runErr = errBoom

	_, err := newTestRunner(p).ExecuteAnalysis(context.Background(), Request{Code: "x"})

	assert.True(t, errors.Is(err, apperror.ErrExecution))
	assert.True(t, errors.Is(err, errBoom))
	assert.NotContains(t, err.Error(), "destroy failed")
}

func TestExecuteAnalysisCancellationStillReclaims(t *testing.T) {
	p := newFakeProvider()
	p.blockRun = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestRunner(p).ExecuteAnalysis(ctx, Request{Code: "x"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, p.destroyCount())
}

func TestExecuteAnalysisCancelledBeforeStaging(t *testing.T) {
	p := newFakeProvider()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRunner(p).ExecuteAnalysis(ctx, Request{
		Code:  "x",
		Files: []FilePayload{{Name: "a.csv"}},
	})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, apperror.ErrStaging))
	assert.Equal(t, 1, p.destroyCount())
}

func TestExecuteAnalysisEnvironmentsAreNotShared(t *testing.T) {
	p := newFakeProvider()
	r := newTestRunner(p)

	for i := 0; i < 3; i++ {
		_, err := r.ExecuteAnalysis(context.Background(), Request{Code: "x"})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, p.created)
	assert.Len(t, p.destroyed, 3)
	for id, n := range p.destroyed {
		assert.Equal(t, 1, n, id)
	}
}

func TestExecuteAnalysisSkipsInstallWithoutDependencies(t *testing.T) {
	p := newFakeProvider()
	cfg := DefaultConfig()
	cfg.Dependencies = nil

	_, err := NewRunner(p, cfg, discardLogger()).ExecuteAnalysis(context.Background(), Request{Code: "x"})

	require.NoError(t, err)
	assert.Equal(t, 0, p.installs)
}
