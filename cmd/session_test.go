package cmd

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/airframesio/pgactivity-collector/cmd/formatters"
)

const testQuery = "select now(), pid, usename, query from pg_stat_activity"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newMockSession(t *testing.T) (SessionConfig, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	cfg := SessionConfig{
		ConnString:       "host=localhost user=postgres",
		StatementTimeout: 5 * time.Second,
		Query:            testQuery,
		Logger:           newTestLogger(),
		Open: func(name, dsn string) (*sql.DB, error) {
			if name != "postgres" {
				t.Errorf("expected postgres driver, got %s", name)
			}
			if dsn != "host=localhost user=postgres sslmode=require" {
				t.Errorf("unexpected dsn %q", dsn)
			}
			return db, nil
		},
	}
	return cfg, mock
}

func activityRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("now").OfType("TIMESTAMPTZ", time.Time{}),
		sqlmock.NewColumn("pid").OfType("INT4", int64(0)),
		sqlmock.NewColumn("usename").OfType("NAME", ""),
		sqlmock.NewColumn("query").OfType("TEXT", ""),
	).
		AddRow(now, int64(42), "postgres", "select\n  1").
		AddRow(now, int64(43), nil, nil)
}

func TestNormalizeConnString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"key value", "host=db user=app", "host=db user=app sslmode=require"},
		{"explicit sslmode wins", "host=db sslmode=disable", "host=db sslmode=disable"},
		{"empty", "", "sslmode=require"},
		{"url", "postgres://app@db:5433/metrics", "dbname=metrics host=db port=5433 user=app sslmode=require"},
		{"url with sslmode", "postgresql://app@db/metrics?sslmode=verify-full", "dbname=metrics host=db sslmode=verify-full user=app"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeConnString(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSessionConnectAndFetch(t *testing.T) {
	cfg, mock := newMockSession(t)
	now := time.Date(2024, 1, 2, 3, 4, 5, 678901000, time.UTC)

	mock.ExpectExec("set statement_timeout to 5000").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(regexp.QuoteMeta(testQuery)).WillBeClosed()
	prep.ExpectQuery().WillReturnRows(activityRows(now))
	mock.ExpectClose()

	s, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	snap, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	wantNames := []string{"now", "pid", "usename", "query"}
	if got := strings.Join(snap.Schema.Names(), ","); got != strings.Join(wantNames, ",") {
		t.Fatalf("expected columns %v, got %s", wantNames, got)
	}
	if len(snap.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(snap.Rows))
	}
	if when, ok := snap.When(); !ok || !when.Equal(now) {
		t.Fatalf("expected when %v, got %v (%v)", now, when, ok)
	}
	if got := snap.Rows[0][1]; got != formatters.IntValue(42) {
		t.Fatalf("expected pid 42, got %+v", got)
	}
	if got := snap.Rows[1][2]; got != formatters.NullValue(formatters.KindText) {
		t.Fatalf("expected NULL usename, got %+v", got)
	}

	s.Close()
	s.Close()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}

	if _, err := s.Fetch(context.Background()); err == nil {
		t.Fatal("expected fetch on closed session to fail")
	}
}

func TestSessionConnectFailures(t *testing.T) {
	t.Run("StatementTimeout", func(t *testing.T) {
		cfg, mock := newMockSession(t)
		mock.ExpectExec("set statement_timeout to 5000").WillReturnError(errors.New("permission denied"))
		mock.ExpectClose()

		_, err := Connect(context.Background(), cfg)
		if err == nil || !strings.HasPrefix(err.Error(), "setting statement timeout") {
			t.Fatalf("expected statement timeout error, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("Prepare", func(t *testing.T) {
		cfg, mock := newMockSession(t)
		mock.ExpectExec("set statement_timeout to 5000").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectPrepare(regexp.QuoteMeta(testQuery)).WillReturnError(errors.New("relation does not exist"))
		mock.ExpectClose()

		_, err := Connect(context.Background(), cfg)
		if err == nil || !strings.HasPrefix(err.Error(), "preparing select pg_stat_activity") {
			t.Fatalf("expected prepare error, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("Open", func(t *testing.T) {
		cfg := SessionConfig{
			ConnString: "host=localhost",
			Query:      testQuery,
			Logger:     newTestLogger(),
			Open: func(string, string) (*sql.DB, error) {
				return nil, errors.New("unknown driver")
			},
		}
		_, err := Connect(context.Background(), cfg)
		if err == nil || !strings.HasPrefix(err.Error(), "connecting to database") {
			t.Fatalf("expected connect error, got %v", err)
		}
	})
}

func TestSessionFetchErrors(t *testing.T) {
	t.Run("QueryError", func(t *testing.T) {
		cfg, mock := newMockSession(t)
		mock.ExpectExec("set statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectPrepare(regexp.QuoteMeta(testQuery)).ExpectQuery().WillReturnError(errors.New("connection reset by peer"))
		mock.ExpectClose()

		s, err := Connect(context.Background(), cfg)
		if err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		defer s.Close()

		_, err = s.Fetch(context.Background())
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("expected FetchError, got %v", err)
		}
		if formatters.IsRenderError(err) {
			t.Fatal("fetch error must not be classified as a render error")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg, mock := newMockSession(t)
		mock.ExpectExec("set statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
		rows := sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("now").OfType("TIMESTAMPTZ", time.Time{}),
			sqlmock.NewColumn("payload").OfType("JSONB", ""),
		).AddRow(time.Now(), "{}")
		mock.ExpectPrepare(regexp.QuoteMeta(testQuery)).ExpectQuery().WillReturnRows(rows)
		mock.ExpectClose()

		s, err := Connect(context.Background(), cfg)
		if err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		defer s.Close()

		_, err = s.Fetch(context.Background())
		if !errors.Is(err, formatters.ErrUnsupportedType) || !formatters.IsRenderError(err) {
			t.Fatalf("expected unsupported type render error, got %v", err)
		}
	})
}

func TestSessionCloseLogsErrors(t *testing.T) {
	cfg, mock := newMockSession(t)
	var buf bytes.Buffer
	cfg.Logger = newLogger(&buf, false, "text")

	mock.ExpectExec("set statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare(regexp.QuoteMeta(testQuery))
	mock.ExpectClose().WillReturnError(errors.New("socket already closed"))

	s, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	s.Close()

	if !strings.Contains(buf.String(), "closing database handle failed error=socket already closed") {
		t.Fatalf("expected close failure to be logged, got %q", buf.String())
	}
}

func TestSessionCloseAfterServerDropped(t *testing.T) {
	cfg, mock := newMockSession(t)
	var buf bytes.Buffer
	cfg.Logger = newLogger(&buf, false, "text")

	mock.ExpectExec("set statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare(regexp.QuoteMeta(testQuery)).WillBeClosed().WillReturnCloseError(driver.ErrBadConn)
	mock.ExpectClose().WillReturnError(driver.ErrBadConn)

	s, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	s.Close()
	s.Close()

	if buf.Len() != 0 {
		t.Fatalf("expected a dropped session to close quietly, got %q", buf.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
