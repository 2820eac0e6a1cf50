package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const subjectKey contextKey = "subject"

// RequireToken rejects requests without a valid bearer token with 401 and
// stores the token's subject in the request context otherwise.
//
// The token is read from "Authorization: Bearer <jwt>", falling back to a
// "token" cookie for browser clients.
func RequireToken(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := extractSubject(r, tokens)
			if err != nil {
				message := "valid bearer token required"
				if errors.Is(err, ErrExpired) {
					message = "token expired"
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="analyst"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{
						"name":      "UnauthorizedError",
						"message":   message,
						"traceback": "",
					},
				})
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the authenticated client, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey).(string)
	return subject, ok && subject != ""
}

var errNoToken = errors.New("auth: no token")

func extractSubject(r *http.Request, tokens *TokenService) (string, error) {
	raw := ""
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", errNoToken
		}
		raw = strings.TrimSpace(value)
	} else if c, err := r.Cookie("token"); err == nil {
		raw = c.Value
	}
	if raw == "" {
		return "", errNoToken
	}
	return tokens.Validate(raw)
}
