package formatters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSONLFormatter handles JSONL (JSON Lines) format output, one snapshot per line
type JSONLFormatter struct {
	renderer *Renderer
}

// NewJSONLFormatter creates a new JSONL formatter
func NewJSONLFormatter(renderer *Renderer) *JSONLFormatter {
	return &JSONLFormatter{renderer: renderer}
}

// NewWriter creates a new JSONL stream writer
func (f *JSONLFormatter) NewWriter(w io.Writer) SnapshotWriter {
	return &jsonlStreamWriter{writer: w, renderer: f.renderer}
}

// Extension returns the file extension for JSONL files
func (f *JSONLFormatter) Extension() string {
	return ".jsonl"
}

// Name returns the format name
func (f *JSONLFormatter) Name() string {
	return FormatJSONL
}

// jsonlStreamWriter implements SnapshotWriter for JSONL format
type jsonlStreamWriter struct {
	writer   io.Writer
	renderer *Renderer
}

type jsonlLine struct {
	When    *string       `json:"when"`
	Records []jsonlRecord `json:"records"`
}

// jsonlRecord marshals a row as an object whose keys keep schema order.
// Columns before from are checked but not emitted.
type jsonlRecord struct {
	schema   Schema
	row      []Value
	from     int
	renderer *Renderer
}

func (r jsonlRecord) MarshalJSON() ([]byte, error) {
	if len(r.row) != len(r.schema) {
		return nil, fmt.Errorf("%w: %d values for %d columns", ErrRowShape, len(r.row), len(r.schema))
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.schema {
		if i < r.from {
			if r.row[i].Kind != col.Kind {
				return nil, fmt.Errorf("%w: column %s is %s, value is %s", ErrRowShape, col.Name, col.Kind, r.row[i].Kind)
			}
			continue
		}
		if i > r.from {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := r.marshalValue(col, r.row[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r jsonlRecord) marshalValue(col Column, v Value) ([]byte, error) {
	if v.Kind != col.Kind {
		return nil, fmt.Errorf("%w: column %s is %s, value is %s", ErrRowShape, col.Name, col.Kind, v.Kind)
	}
	if !v.Valid {
		return []byte("null"), nil
	}
	switch v.Kind {
	case KindTimestamp:
		return json.Marshal(FormatTimestamp(v.Time))
	case KindInteger:
		return json.Marshal(v.Int)
	case KindText:
		return json.Marshal(r.renderer.CollapseSpace(v.Text))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, v.Kind)
	}
}

// WriteSnapshot writes the snapshot as one JSON object followed by a newline
func (w *jsonlStreamWriter) WriteSnapshot(snap *Snapshot) error {
	line := jsonlLine{Records: make([]jsonlRecord, len(snap.Rows))}
	if when, ok := snap.When(); ok {
		s := FormatTimestamp(when)
		line.When = &s
	}
	// a leading timestamp column is the line's "when" and is left out of the records
	from := 0
	if len(snap.Schema) > 0 && snap.Schema[0].Kind == KindTimestamp {
		from = 1
	}
	for i, row := range snap.Rows {
		line.Records[i] = jsonlRecord{schema: snap.Schema, row: row, from: from, renderer: w.renderer}
	}

	jsonData, err := json.Marshal(line)
	if err != nil {
		return err
	}

	// Write JSON data followed by newline
	jsonData = append(jsonData, '\n')
	_, err = w.writer.Write(jsonData)
	return err
}
