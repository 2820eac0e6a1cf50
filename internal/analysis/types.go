// Package analysis implements the sandboxed analysis pipeline.
//
// One call to Runner.ExecuteAnalysis walks a fixed sequence of steps:
//
//	provision → stage files → ensure dependencies → execute → classify → reclaim
//
// Every step that crosses into the environment goes through an
// executor.Provider. The environment is acquired at the start of the call
// and reclaimed exactly once at its end, whatever happened in between.
//
// FAILURE MODEL:
// Infrastructure failures (provision, staging, dependency install, transport
// errors while executing) are returned as errors wrapping the matching
// apperror sentinel. Failures of the guest program are data: they come back
// inside Result.Error with Status "error" and a nil error return.
package analysis

// Request is one analysis job: guest code plus the files it reads.
type Request struct {
	// Code is run as-is. The pipeline never parses it.
	Code string `json:"code"`
	// Files are staged in order. Two payloads with the same Name are
	// last-write-wins: the later one replaces the earlier one.
	Files []FilePayload `json:"files"`
}

// FilePayload is a named text body staged into the environment's working
// directory before execution.
type FilePayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Status is derived from an outcome and never stored on its own.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusUnknown   Status = "unknown"
)

// Error describes a fault raised by the guest program.
type Error struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Traceback string `json:"traceback"`
}

// Result is the typed view of what the guest program produced. Text and
// Error are never both set; both are nil when the program printed nothing
// and did not fail.
type Result struct {
	Text  *string `json:"text,omitempty"`
	Error *Error  `json:"error,omitempty"`
}

// Response is returned by Runner.ExecuteAnalysis.
type Response struct {
	Result    Result `json:"result"`
	RawStdout string `json:"rawStdout"`
	Status    Status `json:"status"`
}
