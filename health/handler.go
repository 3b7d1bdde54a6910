// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package health

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// LivenessPath answers whether the service loop is still running.
	LivenessPath = "/health/liveness"

	// ReadinessPath answers whether the broker connection is established.
	ReadinessPath = "/health/readiness"
)

// NewHandler returns an [http.Handler] exposing liveness and readiness checks.
//
// Both checks answer 200 when their monitor reports healthy and 503 otherwise.
// Monitor errors are logged and answered with 503.
func NewHandler(log *slog.Logger, liveness, readiness Monitor) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, LivenessPath, check(log, "liveness", liveness))
	r.Method(http.MethodGet, ReadinessPath, check(log, "readiness", readiness))

	return otelhttp.NewHandler(r, "health")
}

func check(log *slog.Logger, name string, m Monitor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		healthy, err := m.Healthy(req.Context())
		if err != nil {
			log.WarnContext(req.Context(), "health check failed", slog.String("check", name), slog.Any("error", err))
		}
		if err != nil || !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}
