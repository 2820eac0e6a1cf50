package analysis

import (
	"regexp"
	"strings"

	"github.com/sakif/analysis-runner/internal/executor"
)

// Sentinel is printed by cooperating guest code once its analysis finished.
const Sentinel = "ANALYSIS_COMPLETED"

var sentinelPattern = regexp.MustCompile("(?i)" + regexp.QuoteMeta(Sentinel))

// Classify turns a captured outcome into a result and its status.
//
//  1. A fault means StatusError. Stderr becomes the traceback and no text is
//     returned.
//  2. Otherwise, if stdout mentions the sentinel in any letter case, the
//     status is StatusCompleted and every occurrence is removed from the text.
//  3. Otherwise the status is StatusUnknown and the text is the trimmed
//     stdout.
//
// Any occurrence counts, including one printed before the program actually
// finished. Classify is pure; the same outcome always yields the same pair.
func Classify(out executor.Outcome) (Result, Status) {
	if out.Fault != nil {
		return Result{
			Error: &Error{
				Name:      out.Fault.Kind,
				Message:   out.Fault.Detail,
				Traceback: out.Stderr,
			},
		}, StatusError
	}

	if sentinelPattern.MatchString(out.Stdout) {
		return Result{Text: nonEmpty(stripSentinel(out.Stdout))}, StatusCompleted
	}

	return Result{Text: nonEmpty(out.Stdout)}, StatusUnknown
}

// stripSentinel removes the sentinel until none is left, so that text such
// as "ANALYSIS_ANALYSIS_COMPLETEDCOMPLETED" cannot reassemble it.
func stripSentinel(s string) string {
	for sentinelPattern.MatchString(s) {
		s = sentinelPattern.ReplaceAllLiteralString(s, "")
	}
	return s
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
