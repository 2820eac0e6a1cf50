// Package apperror defines the error taxonomy shared by the service, pipeline
// and HTTP layers.
//
// Two families live here:
//   - request errors (validation, not found, conflict, forbidden, unauthorized)
//     that describe something wrong with what the caller asked for;
//   - infrastructure errors (provision, staging, dependency, execution,
//     unavailable) that abort an analysis run after its environment was
//     reclaimed.
//
// Guest program failures are NOT errors in this sense: they travel as data in
// the analysis result.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	ErrProvision   = errors.New("environment provisioning failed")
	ErrStaging     = errors.New("input staging failed")
	ErrDependency  = errors.New("dependency installation failed")
	ErrExecution   = errors.New("execution transport failed")
	ErrUnavailable = errors.New("service unavailable")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Detail  string // Optional: diagnostic text, e.g. an installer's stderr
	Cause   error  // Optional: lower-level error that triggered this one
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause so errors.Is matches either
// (e.g. ErrProvision and context.DeadlineExceeded).
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized returns an AppError for a missing or invalid credential.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Provision wraps a failure to allocate an execution environment.
func Provision(cause error) *AppError {
	return &AppError{
		Err:     ErrProvision,
		Message: "could not provision execution environment",
		Cause:   cause,
	}
}

// Staging wraps a failure to write the named input into an environment.
func Staging(name string, cause error) *AppError {
	return &AppError{
		Err:     ErrStaging,
		Message: fmt.Sprintf("could not stage input %q", name),
		Field:   name,
		Cause:   cause,
	}
}

// Dependency wraps a failed package check or install. detail carries the
// installer output so it can be surfaced as a traceback.
func Dependency(message, detail string, cause error) *AppError {
	return &AppError{
		Err:     ErrDependency,
		Message: message,
		Detail:  detail,
		Cause:   cause,
	}
}

// Execution wraps a transport failure while running guest code. It is not
// used for errors raised by the guest program itself.
func Execution(cause error) *AppError {
	return &AppError{
		Err:     ErrExecution,
		Message: "could not run analysis code",
		Cause:   cause,
	}
}

// Unavailable signals that a backing service is not configured or reachable.
func Unavailable(message string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: message,
	}
}

// Name returns the public error name reported to API clients.
func Name(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrNotFound):
		return "NotFoundError"
	case errors.Is(err, ErrConflict):
		return "ConflictError"
	case errors.Is(err, ErrForbidden):
		return "ForbiddenError"
	case errors.Is(err, ErrUnauthorized):
		return "UnauthorizedError"
	case errors.Is(err, ErrProvision):
		return "ProvisionError"
	case errors.Is(err, ErrStaging):
		return "StagingError"
	case errors.Is(err, ErrDependency):
		return "DependencyError"
	case errors.Is(err, ErrExecution):
		return "ExecutionError"
	case errors.Is(err, ErrUnavailable):
		return "UnavailableError"
	default:
		return "ServerError"
	}
}

// IsInfrastructure reports whether err belongs to the infrastructure family.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrProvision) ||
		errors.Is(err, ErrStaging) ||
		errors.Is(err, ErrDependency) ||
		errors.Is(err, ErrExecution)
}
