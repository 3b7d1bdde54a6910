// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package journal keeps an append-only audit trail of every handled print job.
//
// The journal is informational only. Nothing reads it back to redeliver or
// reprint a job.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Outcome is how handling a job ended.
type Outcome string

const (
	OutcomePrinted         Outcome = "printed"
	OutcomePrinterNotFound Outcome = "printer_not_found"
	OutcomeSubmitFailed    Outcome = "submit_failed"
)

// Entry is a single journaled job.
type Entry struct {
	JobID            uuid.UUID `json:"job_id"`
	MessageID        string    `json:"message_id,omitempty"`
	Source           string    `json:"source,omitempty"`
	FileName         string    `json:"file_name,omitempty"`
	JobName          string    `json:"job_name,omitempty"`
	BackupLocation   string    `json:"backup_location,omitempty"`
	BackupError      string    `json:"backup_error,omitempty"`
	PrinterRequested string    `json:"printer_requested,omitempty"`
	PrinterUsed      string    `json:"printer_used,omitempty"`
	Outcome          Outcome   `json:"outcome"`
	Error            string    `json:"error,omitempty"`
	ArrivedAt        time.Time `json:"arrived_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

type dialect struct {
	driver    string
	timestamp string
}

func (d dialect) placeholder(i int) string {
	if d.driver == "pgx" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (d dialect) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

var (
	sqlite   = dialect{driver: "sqlite3", timestamp: "DATETIME"}
	postgres = dialect{driver: "pgx", timestamp: "TIMESTAMPTZ"}
)

// Journal writes entries to a SQL database.
type Journal struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the database described by dsn and creates the journal
// table if needed.
//
// postgres:// and postgresql:// DSNs use PostgreSQL. Anything else is a
// SQLite database path, optionally prefixed with sqlite://.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	d, source := parseDSN(dsn)

	db, err := sql.Open(d.driver, source)
	if err != nil {
		return nil, fmt.Errorf("journal: failed to open database: %w", err)
	}
	if d == sqlite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	j := &Journal{db: db, dialect: d}
	err = j.migrate(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func parseDSN(dsn string) (dialect, string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres, dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite, strings.TrimPrefix(dsn, "sqlite://")
	default:
		return sqlite, dsn
	}
}

func (j *Journal) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS print_journal (
			job_id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			source TEXT NOT NULL,
			file_name TEXT NOT NULL,
			job_name TEXT NOT NULL,
			backup_location TEXT NOT NULL,
			backup_error TEXT NOT NULL,
			printer_requested TEXT NOT NULL,
			printer_used TEXT NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT NOT NULL,
			arrived_at %[1]s NOT NULL,
			finished_at %[1]s NOT NULL
		)`, j.dialect.timestamp),
		`CREATE INDEX IF NOT EXISTS idx_print_journal_arrived_at ON print_journal(arrived_at)`,
	}

	for _, stmt := range stmts {
		_, err := j.db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("journal: failed to migrate: %w", err)
		}
	}
	return nil
}

// Record appends e to the journal.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	query := fmt.Sprintf(`INSERT INTO print_journal (
		job_id, message_id, source, file_name, job_name,
		backup_location, backup_error, printer_requested, printer_used,
		outcome, error, arrived_at, finished_at
	) VALUES (%s)`, j.dialect.placeholders(13))

	_, err := j.db.ExecContext(
		ctx,
		query,
		e.JobID.String(),
		e.MessageID,
		e.Source,
		e.FileName,
		e.JobName,
		e.BackupLocation,
		e.BackupError,
		e.PrinterRequested,
		e.PrinterUsed,
		string(e.Outcome),
		e.Error,
		e.ArrivedAt.UTC(),
		e.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("journal: failed to record job %s: %w", e.JobID, err)
	}
	return nil
}

// Recent returns up to limit entries, most recently arrived first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := fmt.Sprintf(`SELECT
		job_id, message_id, source, file_name, job_name,
		backup_location, backup_error, printer_requested, printer_used,
		outcome, error, arrived_at, finished_at
	FROM print_journal
	ORDER BY arrived_at DESC
	LIMIT %s`, j.dialect.placeholder(1))

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: failed to query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			id      string
			outcome string
		)
		err := rows.Scan(
			&id,
			&e.MessageID,
			&e.Source,
			&e.FileName,
			&e.JobName,
			&e.BackupLocation,
			&e.BackupError,
			&e.PrinterRequested,
			&e.PrinterUsed,
			&outcome,
			&e.Error,
			&e.ArrivedAt,
			&e.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("journal: failed to scan entry: %w", err)
		}

		e.JobID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("journal: invalid job id %q: %w", id, err)
		}
		e.Outcome = Outcome(outcome)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
