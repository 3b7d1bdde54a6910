// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Dir writes backups as files inside a single directory.
//
// The directory is created on first write. An existing file with the same
// name is overwritten.
type Dir struct {
	path string
	perm os.FileMode
}

// NewDir returns a [Dir] writing into path.
func NewDir(path string) *Dir {
	return &Dir{
		path: path,
		perm: 0o644,
	}
}

// Path returns the directory backups are written into.
func (d *Dir) Path() string {
	return d.path
}

// Write implements the [Writer] interface.
func (d *Dir) Write(ctx context.Context, r Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name, err := r.Name()
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(d.path, 0o755)
	if err != nil {
		return "", fmt.Errorf("backup: failed to create directory: %w", err)
	}

	p := filepath.Join(d.path, name)
	err = os.WriteFile(p, r.Payload, d.perm)
	if err != nil {
		return "", fmt.Errorf("backup: failed to write file: %w", err)
	}
	return p, nil
}
