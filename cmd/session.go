package cmd

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/airframesio/pgactivity-collector/cmd/formatters"
)

const driverName = "postgres"

// sslModeKey finds an explicit sslmode in a key=value connection string
var sslModeKey = regexp.MustCompile(`(^|\s)sslmode\s*=`)

// Opener opens a database handle. sql.Open is used outside tests.
type Opener func(driverName, dataSourceName string) (*sql.DB, error)

// SessionConfig holds what is needed to open one monitoring session
type SessionConfig struct {
	ConnString       string
	StatementTimeout time.Duration
	Query            string
	Open             Opener
	Logger           *slog.Logger
}

// FetchError wraps failures of executing the prepared query or reading its rows
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return "executing prepared query: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ActivitySource produces snapshots until closed
type ActivitySource interface {
	Fetch(ctx context.Context) (*formatters.Snapshot, error)
	Close()
}

// ConnectFunc opens a new ActivitySource
type ConnectFunc func(ctx context.Context) (ActivitySource, error)

// Session is a single pinned connection with the activity query prepared on it
type Session struct {
	db     *sql.DB
	conn   *sql.Conn
	stmt   *sql.Stmt
	logger *slog.Logger
	closed bool
}

// normalizeConnString converts URL connection strings to key=value form and
// requests TLS without certificate verification unless sslmode is already set
func normalizeConnString(connStr string) (string, error) {
	connStr = strings.TrimSpace(connStr)
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		converted, err := pq.ParseURL(connStr)
		if err != nil {
			return "", fmt.Errorf("parsing connection URL: %w", err)
		}
		connStr = converted
	}
	if !sslModeKey.MatchString(connStr) {
		if connStr != "" {
			connStr += " "
		}
		connStr += "sslmode=require"
	}
	return connStr, nil
}

// Connect opens a session, sets the statement timeout and prepares the query
func Connect(ctx context.Context, cfg SessionConfig) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	open := cfg.Open
	if open == nil {
		open = sql.Open
	}

	dsn, err := normalizeConnString(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db, err := open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Session{db: db, logger: logger}

	s.conn, err = db.Conn(ctx)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	timeoutMS := cfg.StatementTimeout.Milliseconds()
	if _, err := s.conn.ExecContext(ctx, fmt.Sprintf("set statement_timeout to %d", timeoutMS)); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting statement timeout: %w", err)
	}

	s.stmt, err = s.conn.PrepareContext(ctx, cfg.Query)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("preparing select pg_stat_activity: %w", err)
	}

	return s, nil
}

// Fetch runs the prepared query once and returns every row as typed values
func (s *Session) Fetch(ctx context.Context) (*formatters.Snapshot, error) {
	if s.closed {
		return nil, &FetchError{Err: sql.ErrConnDone}
	}

	rows, err := s.stmt.QueryContext(ctx)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	schema, err := formatters.SchemaFromColumnTypes(types)
	if err != nil {
		return nil, err
	}

	snap := &formatters.Snapshot{Schema: schema, FetchedAt: time.Now()}
	dest := make([]any, len(schema))
	for i, col := range schema {
		switch col.Kind {
		case formatters.KindTimestamp:
			dest[i] = new(sql.NullTime)
		case formatters.KindInteger:
			dest[i] = new(sql.NullInt64)
		case formatters.KindText:
			dest[i] = new(sql.NullString)
		}
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, &FetchError{Err: err}
		}
		snap.Rows = append(snap.Rows, scannedRow(schema, dest))
	}
	if err := rows.Err(); err != nil {
		return nil, &FetchError{Err: err}
	}

	return snap, nil
}

func scannedRow(schema formatters.Schema, dest []any) []formatters.Value {
	row := make([]formatters.Value, len(schema))
	for i, col := range schema {
		row[i] = formatters.NullValue(col.Kind)
		switch v := dest[i].(type) {
		case *sql.NullTime:
			if v.Valid {
				row[i] = formatters.TimestampValue(v.Time)
			}
		case *sql.NullInt64:
			if v.Valid {
				row[i] = formatters.IntValue(v.Int64)
			}
		case *sql.NullString:
			if v.Valid {
				row[i] = formatters.TextValue(v.String)
			}
		}
	}
	return row
}

// Close releases the statement, the pinned connection and the pool.
// Errors are logged, and calling Close again does nothing.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	if s.stmt != nil {
		if err := s.stmt.Close(); err != nil && !alreadyClosed(err) {
			s.logger.Warn("closing prepared statement failed", "error", err)
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !alreadyClosed(err) {
			s.logger.Warn("closing connection failed", "error", err)
		}
	}
	if err := s.db.Close(); err != nil && !alreadyClosed(err) {
		s.logger.Warn("closing database handle failed", "error", err)
	}
}

// alreadyClosed reports whether a close error means the server side is already gone
func alreadyClosed(err error) bool {
	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn)
}

// sessionConnector returns a ConnectFunc that opens real sessions
func sessionConnector(cfg SessionConfig) ConnectFunc {
	return func(ctx context.Context) (ActivitySource, error) {
		s, err := Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
