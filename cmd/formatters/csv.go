package formatters

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// CSVFormatter writes each snapshot as a header record followed by its rows
type CSVFormatter struct {
	renderer *Renderer
}

// NewCSVFormatter creates a new CSV formatter
func NewCSVFormatter(renderer *Renderer) *CSVFormatter {
	return &CSVFormatter{renderer: renderer}
}

// NewWriter creates a new CSV stream writer
func (f *CSVFormatter) NewWriter(w io.Writer) SnapshotWriter {
	return &csvStreamWriter{writer: w, renderer: f.renderer}
}

// Extension returns the file extension for CSV files
func (f *CSVFormatter) Extension() string {
	return ".csv"
}

// Name returns the format name
func (f *CSVFormatter) Name() string {
	return FormatCSV
}

// csvStreamWriter implements SnapshotWriter for CSV format
type csvStreamWriter struct {
	writer   io.Writer
	renderer *Renderer
}

// WriteSnapshot renders the whole block before writing, so a render error leaves the stream untouched
func (w *csvStreamWriter) WriteSnapshot(snap *Snapshot) error {
	if len(snap.Schema) == 0 {
		return nil
	}

	var buffer bytes.Buffer
	csvWriter := csv.NewWriter(&buffer)

	if err := csvWriter.Write(w.renderer.Header(snap.Schema)); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range snap.Rows {
		record, err := w.renderer.Render(snap.Schema, row)
		if err != nil {
			return err
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}

	_, err := w.writer.Write(buffer.Bytes())
	return err
}
