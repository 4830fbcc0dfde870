package formatters

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// TimestampLayout renders timestamps in UTC at microsecond precision
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// ErrRowShape is returned when a row does not line up with its schema
var ErrRowShape = errors.New("row does not match schema")

// IsRenderError reports whether err comes from converting a row, as opposed to fetching it.
// These are structural problems and are never worth a reconnect.
func IsRenderError(err error) bool {
	return errors.Is(err, ErrUnsupportedType) || errors.Is(err, ErrRowShape)
}

// Renderer converts typed rows into display strings
type Renderer struct {
	whitespace *regexp.Regexp
}

// NewRenderer creates a renderer with its whitespace pattern compiled once
func NewRenderer() *Renderer {
	// RE2's \s is ASCII only and misses \v
	return &Renderer{whitespace: regexp.MustCompile(`[\s\v\x{85}\p{Z}]+`)}
}

// CollapseSpace replaces every run of whitespace with a single space
func (r *Renderer) CollapseSpace(s string) string {
	return r.whitespace.ReplaceAllString(s, " ")
}

// Header returns the display form of the schema's column names
func (r *Renderer) Header(schema Schema) []string {
	header := make([]string, len(schema))
	for i, c := range schema {
		header[i] = r.CollapseSpace(c.Name)
	}
	return header
}

// Render converts one row. The result always has len(schema) entries.
func (r *Renderer) Render(schema Schema, row []Value) ([]string, error) {
	if len(row) != len(schema) {
		return nil, fmt.Errorf("%w: %d values for %d columns", ErrRowShape, len(row), len(schema))
	}

	out := make([]string, len(schema))
	for i, col := range schema {
		v := row[i]
		if v.Kind != col.Kind {
			return nil, fmt.Errorf("%w: column %s is %s, value is %s", ErrRowShape, col.Name, col.Kind, v.Kind)
		}
		s, err := r.renderValue(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		out[i] = s
	}
	return out, nil
}

func (r *Renderer) renderValue(v Value) (string, error) {
	switch v.Kind {
	case KindTimestamp:
		if !v.Valid {
			return "", nil
		}
		return FormatTimestamp(v.Time), nil
	case KindInteger:
		if !v.Valid {
			return "", nil
		}
		return strconv.FormatInt(v.Int, 10), nil
	case KindText:
		if !v.Valid {
			return "", nil
		}
		return r.CollapseSpace(v.Text), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, v.Kind)
	}
}

// FormatTimestamp renders t with TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
