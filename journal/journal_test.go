// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParseDSN(t *testing.T) {
	testCases := []struct {
		name       string
		dsn        string
		wantDriver string
		wantSource string
	}{
		{name: "postgres", dsn: "postgres://u:p@db/printq", wantDriver: "pgx", wantSource: "postgres://u:p@db/printq"},
		{name: "postgresql", dsn: "postgresql://db/printq", wantDriver: "pgx", wantSource: "postgresql://db/printq"},
		{name: "sqlite scheme", dsn: "sqlite:///srv/journal.db", wantDriver: "sqlite3", wantSource: "/srv/journal.db"},
		{name: "plain path", dsn: "/srv/journal.db", wantDriver: "sqlite3", wantSource: "/srv/journal.db"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, source := parseDSN(tc.dsn)
			require.Equal(t, tc.wantDriver, d.driver)
			require.Equal(t, tc.wantSource, source)
		})
	}
}

func TestDialect_placeholders(t *testing.T) {
	require.Equal(t, "?, ?, ?", sqlite.placeholders(3))
	require.Equal(t, "$1, $2, $3", postgres.placeholders(3))
}

func TestJournal(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() {
		j.Close()
	})

	arrived := time.Date(2025, 3, 7, 14, 5, 9, 0, time.UTC)
	first := Entry{
		JobID:            uuid.New(),
		MessageID:        "ID:1",
		Source:           "print.jobs",
		FileName:         "invoice.pdf",
		JobName:          "INV-1",
		BackupLocation:   "/srv/PrintService/backup/20250307_140509_invoice.pdf",
		PrinterRequested: "P",
		PrinterUsed:      "P",
		Outcome:          OutcomePrinted,
		ArrivedAt:        arrived,
		FinishedAt:       arrived.Add(time.Second),
	}
	second := Entry{
		JobID:            uuid.New(),
		MessageID:        "ID:2",
		Source:           "print.jobs",
		BackupError:      "backup: file name not found",
		PrinterRequested: "Missing",
		Outcome:          OutcomePrinterNotFound,
		Error:            "printer: print service not found",
		ArrivedAt:        arrived.Add(time.Minute),
		FinishedAt:       arrived.Add(time.Minute),
	}

	require.NoError(t, j.Record(ctx, first))
	require.NoError(t, j.Record(ctx, second))

	t.Run("will reject a duplicate job id", func(t *testing.T) {
		require.Error(t, j.Record(ctx, first))
	})

	t.Run("will list the most recent entries first", func(t *testing.T) {
		entries, err := j.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		require.Equal(t, second.JobID, entries[0].JobID)
		require.Equal(t, OutcomePrinterNotFound, entries[0].Outcome)
		require.Equal(t, "backup: file name not found", entries[0].BackupError)

		require.Equal(t, first.JobID, entries[1].JobID)
		require.Equal(t, first.BackupLocation, entries[1].BackupLocation)
		require.True(t, first.ArrivedAt.Equal(entries[1].ArrivedAt))
	})

	t.Run("will honor the limit", func(t *testing.T) {
		entries, err := j.Recent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("will reopen an existing journal", func(t *testing.T) {
		again, err := Open(ctx, "sqlite://"+path)
		require.NoError(t, err)
		defer again.Close()

		entries, err := again.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
	})
}
