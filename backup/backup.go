// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package backup persists a copy of every received document before it is printed.
package backup

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// TimestampLayout prefixes every backup name.
const TimestampLayout = "20060102_150405"

// ErrNoFileName is returned when a record carries no file name to back up under.
var ErrNoFileName = errors.New("backup: file name not found")

// Record is a single document to back up.
type Record struct {
	Payload   []byte
	FileName  string
	Timestamp time.Time
}

// Name returns the backup name for r: its timestamp, an underscore, then
// the base of its file name.
func (r Record) Name() (string, error) {
	name := sanitize(r.FileName)
	if name == "" {
		return "", ErrNoFileName
	}
	return r.Timestamp.Format(TimestampLayout) + "_" + name, nil
}

// sanitize keeps only the final path element so a name cannot escape
// the backup location.
func sanitize(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = filepath.Base(filepath.FromSlash(name))
	switch name {
	case ".", "..", string(filepath.Separator):
		return ""
	}
	return name
}

// Writer persists a [Record] and returns where it was written.
type Writer interface {
	Write(context.Context, Record) (string, error)
}

// WriterFunc is a func type of the [Writer] interface.
type WriterFunc func(context.Context, Record) (string, error)

// Write implements the [Writer] interface.
func (f WriterFunc) Write(ctx context.Context, r Record) (string, error) {
	return f(ctx, r)
}

// Multi writes every record to all of the given writers.
//
// All writers are attempted even if some fail. The location reported is
// the first one that succeeded and the errors of all failed writers are
// joined together.
func Multi(ws ...Writer) Writer {
	return WriterFunc(func(ctx context.Context, r Record) (string, error) {
		var (
			location string
			errs     error
		)
		for _, w := range ws {
			loc, err := w.Write(ctx, r)
			if err != nil {
				errs = errors.Join(errs, err)
				continue
			}
			if location == "" {
				location = loc
			}
		}
		return location, errs
	})
}
