// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package journal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type historyFunc func(ctx context.Context, limit int) ([]Entry, error)

func (f historyFunc) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return f(ctx, limit)
}

func serve(t *testing.T, h History, target string) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	NewHandler(slog.New(slog.DiscardHandler), h).ServeHTTP(w, r)
	return w
}

func TestNewHandler(t *testing.T) {
	t.Run("will return the recent entries from the journal", func(t *testing.T) {
		j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
		require.NoError(t, err)
		t.Cleanup(func() {
			j.Close()
		})

		arrived := time.Date(2025, 3, 7, 14, 5, 9, 0, time.UTC)
		for i, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
			err := j.Record(context.Background(), Entry{
				JobID:      uuid.New(),
				FileName:   name,
				Outcome:    OutcomePrinted,
				ArrivedAt:  arrived.Add(time.Duration(i) * time.Minute),
				FinishedAt: arrived.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}

		w := serve(t, j, RecentPath+"?limit=2")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var resp RecentResponse
		err = json.NewDecoder(w.Body).Decode(&resp)
		require.NoError(t, err)
		require.Len(t, resp.Entries, 2)
		require.Equal(t, "c.pdf", resp.Entries[0].FileName)
		require.Equal(t, "b.pdf", resp.Entries[1].FileName)
		require.Equal(t, OutcomePrinted, resp.Entries[0].Outcome)
	})

	t.Run("will use the default limit", func(t *testing.T) {
		var got int
		w := serve(t, historyFunc(func(ctx context.Context, limit int) ([]Entry, error) {
			got = limit
			return nil, nil
		}), RecentPath)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, DefaultLimit, got)
		require.JSONEq(t, `{"entries":[]}`, w.Body.String())
	})

	t.Run("will cap the limit", func(t *testing.T) {
		var got int
		serve(t, historyFunc(func(ctx context.Context, limit int) ([]Entry, error) {
			got = limit
			return nil, nil
		}), RecentPath+"?limit=100000")

		require.Equal(t, MaxLimit, got)
	})

	t.Run("will reject an invalid limit", func(t *testing.T) {
		testCases := []string{"0", "-1", "ten"}
		for _, limit := range testCases {
			t.Run(limit, func(t *testing.T) {
				w := serve(t, historyFunc(func(ctx context.Context, limit int) ([]Entry, error) {
					t.Fatal("journal should not be read")
					return nil, nil
				}), RecentPath+"?limit="+limit)

				require.Equal(t, http.StatusBadRequest, w.Code)
			})
		}
	})

	t.Run("will return 500 if the journal cannot be read", func(t *testing.T) {
		w := serve(t, historyFunc(func(ctx context.Context, limit int) ([]Entry, error) {
			return nil, errors.New("database is locked")
		}), RecentPath)

		require.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("will only answer GET", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, RecentPath, nil)
		NewHandler(slog.New(slog.DiscardHandler), historyFunc(nil)).ServeHTTP(w, r)

		require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}
