package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/analysis-runner/internal/executor"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		outcome    executor.Outcome
		wantStatus Status
		wantText   *string
		wantError  *Error
	}{
		{
			name:       "sentinel after output",
			outcome:    executor.Outcome{Stdout: "Revenue: 42\nANALYSIS_COMPLETED\n"},
			wantStatus: StatusCompleted,
			wantText:   ptr("Revenue: 42"),
		},
		{
			name: "guest fault",
			outcome: executor.Outcome{
				Stdout: "loaded 10 rows\n",
				Stderr: "Traceback...\nValueError: ...",
				Fault:  &executor.Fault{Kind: "ValueError", Detail: "column 'rev' not found"},
			},
			wantStatus: StatusError,
			wantError: &Error{
				Name:      "ValueError",
				Message:   "column 'rev' not found",
				Traceback: "Traceback...\nValueError: ...",
			},
		},
		{
			name:       "no sentinel",
			outcome:    executor.Outcome{Stdout: "partial output, crashed mid-run"},
			wantStatus: StatusUnknown,
			wantText:   ptr("partial output, crashed mid-run"),
		},
		{
			name:       "sentinel in any case",
			outcome:    executor.Outcome{Stdout: "done analysis_Completed"},
			wantStatus: StatusCompleted,
			wantText:   ptr("done"),
		},
		{
			name:       "every sentinel is stripped",
			outcome:    executor.Outcome{Stdout: "ANALYSIS_COMPLETED\nA\nANALYSIS_COMPLETED\nB\nanalysis_completed"},
			wantStatus: StatusCompleted,
			wantText:   ptr("A\n\nB"),
		},
		{
			name:       "only the sentinel",
			outcome:    executor.Outcome{Stdout: "  ANALYSIS_COMPLETED \n"},
			wantStatus: StatusCompleted,
		},
		{
			name:       "empty output",
			outcome:    executor.Outcome{Stdout: " \n\t"},
			wantStatus: StatusUnknown,
		},
		{
			name: "fault wins over sentinel",
			outcome: executor.Outcome{
				Stdout: "ANALYSIS_COMPLETED",
				Fault:  &executor.Fault{Kind: "KeyError", Detail: "'x'"},
			},
			wantStatus: StatusError,
			wantError:  &Error{Name: "KeyError", Message: "'x'"},
		},
		{
			// A sentinel printed before the program actually finished still
			// counts as completion.
			name:       "sentinel printed mid-run",
			outcome:    executor.Outcome{Stdout: "ANALYSIS_COMPLETED\nstill working..."},
			wantStatus: StatusCompleted,
			wantText:   ptr("still working..."),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, status := Classify(tt.outcome)

			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantText, result.Text)
			assert.Equal(t, tt.wantError, result.Error)
		})
	}
}

func TestClassifyFaultNeverHasText(t *testing.T) {
	outcomes := []executor.Outcome{
		{Fault: &executor.Fault{Kind: "E"}},
		{Stdout: "some text", Fault: &executor.Fault{Kind: "E"}},
		{Stdout: "x ANALYSIS_COMPLETED", Stderr: "tb", Fault: &executor.Fault{Kind: "E", Detail: "d"}},
	}
	for _, out := range outcomes {
		result, status := Classify(out)
		assert.Equal(t, StatusError, status)
		assert.Nil(t, result.Text)
		require.NotNil(t, result.Error)
	}
}

func TestClassifyNeverReturnsSentinel(t *testing.T) {
	inputs := []string{
		"ANALYSIS_COMPLETED",
		"aANALYSIS_COMPLETEDb",
		"ANALYSIS_ANALYSIS_COMPLETEDCOMPLETED",
		"Analysis_Completed Analysis_Completed",
		"x\nANALYSIS_COMPLETED\ny",
	}
	for _, in := range inputs {
		result, status := Classify(executor.Outcome{Stdout: in})
		assert.Equal(t, StatusCompleted, status, in)
		if result.Text != nil {
			assert.NotContains(t, strings.ToUpper(*result.Text), Sentinel, in)
		}
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	outcomes := []executor.Outcome{
		{Stdout: "Revenue: 42\nANALYSIS_COMPLETED\n"},
		{Stdout: "partial"},
		{Stderr: "tb", Fault: &executor.Fault{Kind: "ValueError", Detail: "bad"}},
		{},
	}
	for _, out := range outcomes {
		r1, s1 := Classify(out)
		r2, s2 := Classify(out)
		assert.Equal(t, s1, s2)
		assert.Equal(t, r1, r2)
	}
}

func ptr(s string) *string { return &s }
