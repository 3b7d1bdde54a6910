// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RecentPath lists the most recently handled jobs.
const RecentPath = "/journal/recent"

const (
	// DefaultLimit is how many entries [RecentPath] returns without a limit.
	DefaultLimit = 20

	// MaxLimit caps the limit query parameter.
	MaxLimit = 500
)

// History is implemented by [Journal].
type History interface {
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// RecentResponse is the body returned by [RecentPath].
type RecentResponse struct {
	Entries []Entry `json:"entries"`
}

// NewHandler returns an [http.Handler] serving the recent journal entries as JSON.
//
// The optional limit query parameter must be a positive integer and is capped at [MaxLimit].
func NewHandler(log *slog.Logger, h History) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, RecentPath, recent(log, h))

	return otelhttp.NewHandler(r, "journal")
}

func recent(log *slog.Logger, h History) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		limit := DefaultLimit
		if s := req.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = min(n, MaxLimit)
		}

		entries, err := h.Recent(req.Context(), limit)
		if err != nil {
			log.ErrorContext(req.Context(), "failed to read journal", slog.Any("error", err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []Entry{}
		}

		w.Header().Set("Content-Type", "application/json")
		err = json.NewEncoder(w).Encode(RecentResponse{Entries: entries})
		if err != nil {
			log.WarnContext(req.Context(), "failed to write journal response", slog.Any("error", err))
		}
	})
}
