package formatters

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// maxJSONLLine bounds one snapshot line; long query texts make lines large
const maxJSONLLine = 64 << 20

// SnapshotLine is one decoded line of a JSONL collector file
type SnapshotLine struct {
	When    *string           `json:"when"`
	Records []json.RawMessage `json:"records"`
}

// JSONLReader reads JSONL collector files one snapshot at a time
type JSONLReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewJSONLReader creates a new JSONL reader
func NewJSONLReader(r io.Reader) *JSONLReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLLine)
	return &JSONLReader{scanner: scanner}
}

// Next returns the next snapshot, or io.EOF when the stream is exhausted
func (r *JSONLReader) Next() (*SnapshotLine, error) {
	for r.scanner.Scan() {
		r.line++
		data := r.scanner.Bytes()
		if len(data) == 0 {
			continue // Skip empty lines
		}

		var snap SnapshotLine
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("failed to parse JSON line %d: %w", r.line, err)
		}
		return &snap, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	return nil, io.EOF
}
