package formatters

import (
	"errors"
	"fmt"
	"io"
)

// Format type constants
const (
	FormatText  = "text"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// ErrUnsupportedFormat is returned when an unknown output format is requested
var ErrUnsupportedFormat = errors.New("unsupported output format")

// SnapshotWriter appends encoded snapshots to an underlying stream
type SnapshotWriter interface {
	// WriteSnapshot encodes one snapshot as a self-contained block
	WriteSnapshot(snap *Snapshot) error
}

// Formatter defines the interface for output format handlers
type Formatter interface {
	// NewWriter creates a writer that appends blocks to w
	NewWriter(w io.Writer) SnapshotWriter

	// Extension returns the file extension for this format (e.g., ".txt", ".jsonl")
	Extension() string

	// Name returns the format name used in configuration
	Name() string
}

// GetFormatter returns the formatter for the given format name
func GetFormatter(format string, renderer *Renderer) (Formatter, error) {
	switch format {
	case FormatText:
		return NewTextFormatter(renderer), nil
	case FormatJSONL:
		return NewJSONLFormatter(renderer), nil
	case FormatCSV:
		return NewCSVFormatter(renderer), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
