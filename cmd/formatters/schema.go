package formatters

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedType is returned when a result column has a type the renderer cannot convert
var ErrUnsupportedType = errors.New("unsupported column type")

// Kind is the semantic type of a result column
type Kind int

const (
	KindTimestamp Kind = iota + 1
	KindInteger
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindTimestamp:
		return "timestamp"
	case KindInteger:
		return "integer"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KindOf maps a PostgreSQL type name (as reported by the driver) to a Kind
func KindOf(dbType string) (Kind, error) {
	switch strings.ToLower(dbType) {
	case "timestamptz":
		return KindTimestamp, nil
	case "int2", "int4", "int8", "oid":
		return KindInteger, nil
	case "name", "text", "varchar":
		return KindText, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, dbType)
	}
}

// Column is one entry of a result schema
type Column struct {
	Name string
	Kind Kind
}

// Schema is the ordered column list of a result set
type Schema []Column

// Names returns the column names in schema order
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// SchemaFromColumnTypes builds a Schema from a driver result description
func SchemaFromColumnTypes(types []*sql.ColumnType) (Schema, error) {
	schema := make(Schema, len(types))
	for i, ct := range types {
		kind, err := KindOf(ct.DatabaseTypeName())
		if err != nil {
			return nil, fmt.Errorf("column %d (%s): %w", i, ct.Name(), err)
		}
		schema[i] = Column{Name: ct.Name(), Kind: kind}
	}
	return schema, nil
}

// Value is one typed cell. Valid is false for SQL NULL.
type Value struct {
	Kind  Kind
	Valid bool
	Time  time.Time
	Int   int64
	Text  string
}

// TimestampValue returns a non-null timestamp cell
func TimestampValue(t time.Time) Value {
	return Value{Kind: KindTimestamp, Valid: true, Time: t}
}

// IntValue returns a non-null integer cell
func IntValue(v int64) Value {
	return Value{Kind: KindInteger, Valid: true, Int: v}
}

// TextValue returns a non-null text cell
func TextValue(s string) Value {
	return Value{Kind: KindText, Valid: true, Text: s}
}

// NullValue returns a NULL cell of the given kind
func NullValue(kind Kind) Value {
	return Value{Kind: kind}
}

// Snapshot is the result of one execution of the activity query
type Snapshot struct {
	Schema    Schema
	Rows      [][]Value
	FetchedAt time.Time
}

// When returns the first row's leading timestamp, if there is one
func (s *Snapshot) When() (time.Time, bool) {
	if len(s.Rows) == 0 || len(s.Rows[0]) == 0 {
		return time.Time{}, false
	}
	v := s.Rows[0][0]
	if v.Kind != KindTimestamp || !v.Valid {
		return time.Time{}, false
	}
	return v.Time, true
}
