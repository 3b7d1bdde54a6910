// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package logfile lays out the PrintService folders under a home folder
// and opens the per-run log file.
package logfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// MainFolder is created directly under the home folder.
	MainFolder = "PrintService"

	// TimestampLayout prefixes every log file name.
	TimestampLayout = "20060102_150405"

	fileSuffix = "_PrintService.log"
)

// Layout resolves the folders used by a print station.
type Layout struct {
	Home string
}

// NewLayout normalizes home by dropping any trailing separator.
func NewLayout(home string) Layout {
	trimmed := strings.TrimRight(home, `/\`)
	if trimmed == "" && home != "" {
		trimmed = string(filepath.Separator)
	}
	return Layout{Home: trimmed}
}

// Main returns <home>/PrintService.
func (l Layout) Main() string {
	return filepath.Join(l.Home, MainFolder)
}

// Log returns <home>/PrintService/log.
func (l Layout) Log() string {
	return filepath.Join(l.Main(), "log")
}

// Backup returns <home>/PrintService/backup.
func (l Layout) Backup() string {
	return filepath.Join(l.Main(), "backup")
}

// Journal returns the default journal database path.
func (l Layout) Journal() string {
	return filepath.Join(l.Main(), "journal.db")
}

// Provision creates the main and log folders. The backup folder is left to
// whoever writes backups.
func (l Layout) Provision() error {
	for _, dir := range []string{l.Main(), l.Log()} {
		err := os.MkdirAll(dir, 0o755)
		if err != nil {
			return fmt.Errorf("logfile: failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// File is a log file mirrored to a second writer, usually stdout.
type File struct {
	f      *os.File
	w      io.Writer
	mirror io.Writer
}

// Create opens a new log file named after now inside the log folder.
// Every write is mirrored to mirror when it is non-nil.
func (l Layout) Create(now time.Time, mirror io.Writer) (*File, error) {
	name := filepath.Join(l.Log(), now.Format(TimestampLayout)+fileSuffix)

	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logfile: failed to open %s: %w", name, err)
	}

	lf := &File{f: f, w: f, mirror: mirror}
	if mirror != nil {
		lf.w = io.MultiWriter(f, mirror)
	}
	return lf, nil
}

// Name returns the path of the log file.
func (f *File) Name() string {
	return f.f.Name()
}

// Write implements the [io.Writer] interface.
func (f *File) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

// Close closes the log file. The mirror is left open.
func (f *File) Close() error {
	return f.f.Close()
}
