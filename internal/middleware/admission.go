package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	admissionInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "analyst_admission_in_flight",
		Help: "Number of analyses currently admitted.",
	})

	admissionRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analyst_admission_rejected_total",
		Help: "Total number of analyses rejected because the limit was reached.",
	})
)

func init() {
	prometheus.MustRegister(admissionInFlight)
	prometheus.MustRegister(admissionRejected)
}

// Admission bounds how many requests run the wrapped handler at once. Each
// admitted request holds one token of a buffered channel. A request that
// cannot get a token within maxWait, or before its context ends, is answered
// with 503 and a Retry-After header. A limit of zero or less disables the
// check.
func Admission(limit int, maxWait time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	tokens := make(chan struct{}, limit)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timer := time.NewTimer(maxWait)
			defer timer.Stop()

			select {
			case tokens <- struct{}{}:
			case <-timer.C:
				reject(w, maxWait, logger)
				return
			case <-r.Context().Done():
				reject(w, maxWait, logger)
				return
			}

			admissionInFlight.Inc()
			defer func() {
				<-tokens
				admissionInFlight.Dec()
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, retry time.Duration, logger *slog.Logger) {
	admissionRejected.Inc()
	logger.Warn("analysis rejected, concurrency limit reached")

	secs := int(retry.Round(time.Second) / time.Second)
	w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"name":      "UnavailableError",
			"message":   "too many analyses in progress, try again later",
			"traceback": "",
		},
	})
}
