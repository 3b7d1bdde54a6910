// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package printer

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Pages counts the pages of a PDF document.
func Pages(payload []byte) (n int, err error) {
	// The parser panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("printer: malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return 0, fmt.Errorf("printer: malformed pdf: %w", err)
	}
	return r.NumPage(), nil
}
