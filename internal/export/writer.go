package export

import (
	"fmt"
	"os"

	apperrors "github.com/kurihiro0119/github-repo-export/internal/errors"
)

// Writer appends report lines to the output file as repositories are processed
type Writer struct {
	file    *os.File
	columns int
}

// Create truncates or creates the output file and writes the header line
func Create(path string, header Row) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, apperrors.NewOutputError("create output file", err)
	}

	w := &Writer{file: f, columns: len(header)}
	if _, err := f.WriteString(header.Line()); err != nil {
		_ = f.Close()
		return nil, apperrors.NewOutputError("write header", err)
	}
	return w, nil
}

// Append writes one row. Rows must have as many fields as the header.
func (w *Writer) Append(row Row) error {
	if len(row) != w.columns {
		return apperrors.NewOutputError(fmt.Sprintf("row has %d fields, header has %d", len(row), w.columns), nil)
	}
	if _, err := w.file.WriteString(row.Line()); err != nil {
		return apperrors.NewOutputError("append row", err)
	}
	return nil
}

// Close closes the output file
func (w *Writer) Close() error {
	return w.file.Close()
}
