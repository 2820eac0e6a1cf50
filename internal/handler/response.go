package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError so that success and
// failure bodies have one shape across the API.
//
// ERROR FORMAT:
//   {"error": {"name": "NotFoundError", "message": "...", "traceback": ""}}
//
// The name comes from apperror.Name. The traceback carries diagnostic text
// when there is some, e.g. a failed package installer's stderr.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/analysis-runner/internal/apperror"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Traceback string `json:"traceback"`
}

// ErrorResponse wraps ErrorBody under the "error" key.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be set before the body is written; once Encode
// writes, later header changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps a domain error to an HTTP status code. The deadline check
// runs before the infrastructure check because a provisioning step that ran
// out of time wraps both.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case apperror.IsInfrastructure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// The service layer returns apperror values wrapped with fmt.Errorf("...: %w").
// errors.Is and errors.As walk that chain, so the mapping works no matter how
// deep the sentinel sits.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := ErrorBody{Name: apperror.Name(err)}

	var appErr *apperror.AppError
	switch {
	case status == http.StatusInternalServerError:
		// Unknown errors may carry SQL or file paths, never show them.
		body.Message = "An internal error occurred"
	case status == http.StatusGatewayTimeout && !errors.As(err, &appErr):
		body.Name = "TimeoutError"
		body.Message = "the analysis did not finish in time"
	case errors.As(err, &appErr):
		body.Message = appErr.Message
		body.Traceback = appErr.Detail
	default:
		body.Message = err.Error()
	}

	writeJSON(w, status, ErrorResponse{Error: body})
}

// decodeJSON reads a JSON request body into dst. Malformed bodies are reported
// as validation errors.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body: "+err.Error())
	}
	return nil
}
