package formatters

import (
	"bytes"
	"io"
)

// ColumnMargin is the number of spaces added after the widest value of a padded column
const ColumnMargin = 3

// TextFormatter renders snapshots as aligned plain-text tables
type TextFormatter struct {
	renderer *Renderer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(renderer *Renderer) *TextFormatter {
	return &TextFormatter{renderer: renderer}
}

// NewWriter creates a text writer with fresh width state
func (f *TextFormatter) NewWriter(w io.Writer) SnapshotWriter {
	return NewTextWriter(w, f.renderer, NewWidths(0))
}

// Extension returns the file extension for text files
func (f *TextFormatter) Extension() string {
	return ".txt"
}

// Name returns the format name
func (f *TextFormatter) Name() string {
	return FormatText
}

// TextWriter implements SnapshotWriter for aligned text output.
// Column widths accumulate across every snapshot written.
type TextWriter struct {
	writer   io.Writer
	renderer *Renderer
	widths   *Widths
}

// NewTextWriter creates a text writer using the given width state
func NewTextWriter(w io.Writer, renderer *Renderer, widths *Widths) *TextWriter {
	return &TextWriter{writer: w, renderer: renderer, widths: widths}
}

// Widths exposes the writer's width state
func (w *TextWriter) Widths() *Widths {
	return w.widths
}

// WriteSnapshot renders the header and rows, widens the tracked columns, then writes one block
func (w *TextWriter) WriteSnapshot(snap *Snapshot) error {
	block, err := w.Encode(snap)
	if err != nil {
		return err
	}
	_, err = w.writer.Write(block)
	return err
}

// Encode renders snap into a block without writing it
func (w *TextWriter) Encode(snap *Snapshot) ([]byte, error) {
	lines := make([][]string, 0, len(snap.Rows)+1)
	lines = append(lines, w.renderer.Header(snap.Schema))
	for _, row := range snap.Rows {
		rendered, err := w.renderer.Render(snap.Schema, row)
		if err != nil {
			return nil, err
		}
		lines = append(lines, rendered)
	}

	for _, line := range lines {
		w.widths.Observe(line)
	}

	if len(snap.Schema) == 0 {
		return nil, nil
	}

	return EncodeLines(lines, w.widths), nil
}

// EncodeLines pads every column but the last to its tracked width plus ColumnMargin
func EncodeLines(lines [][]string, widths *Widths) []byte {
	var buf bytes.Buffer
	for _, line := range lines {
		if len(line) == 0 {
			buf.WriteByte('\n')
			continue
		}
		last := len(line) - 1
		for i, col := range line[:last] {
			buf.WriteString(col)
			for pad := widths.Get(i) + ColumnMargin - len(col); pad > 0; pad-- {
				buf.WriteByte(' ')
			}
		}
		buf.WriteString(line[last])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
