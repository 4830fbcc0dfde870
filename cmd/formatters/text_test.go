package formatters

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func activitySchema() Schema {
	return Schema{
		{Name: "now", Kind: KindTimestamp},
		{Name: "pid", Kind: KindInteger},
		{Name: "query", Kind: KindText},
	}
}

func pad(s string, width int) string {
	return s + strings.Repeat(" ", width+ColumnMargin-len(s))
}

func TestWidthsObserve(t *testing.T) {
	w := NewWidths(2)
	w.Observe([]string{"abc", "d"})
	w.Observe([]string{"a", "defgh"})

	if w.Get(0) != 3 || w.Get(1) != 5 {
		t.Fatalf("expected [3 5], got %v", w.Snapshot())
	}

	t.Run("GrowsColumns", func(t *testing.T) {
		w.Observe([]string{"", "", "xyz"})
		if w.Len() != 3 || w.Get(2) != 3 {
			t.Fatalf("expected third column of width 3, got %v", w.Snapshot())
		}
		if w.Get(0) != 3 || w.Get(1) != 5 {
			t.Fatalf("existing widths changed: %v", w.Snapshot())
		}
	})

	t.Run("OutOfRange", func(t *testing.T) {
		if w.Get(-1) != 0 || w.Get(42) != 0 {
			t.Fatal("out of range columns should report zero width")
		}
	})

	t.Run("SnapshotIsCopy", func(t *testing.T) {
		s := w.Snapshot()
		s[0] = 100
		if w.Get(0) == 100 {
			t.Fatal("Snapshot should return a copy")
		}
	})
}

// Widths form a non-decreasing sequence no matter what is observed.
func TestWidthsMonotonic(t *testing.T) {
	w := NewWidths(0)
	rows := [][]string{
		{"a", "bb", "ccc"},
		{"", "", ""},
		{"dddd", "e"},
		{"f", "gggggg", "h", "iiiiiiii"},
		{"j"},
	}

	prev := w.Snapshot()
	for _, row := range rows {
		w.Observe(row)
		cur := w.Snapshot()
		if len(cur) < len(prev) {
			t.Fatalf("column count shrank from %d to %d", len(prev), len(cur))
		}
		for i := range prev {
			if cur[i] < prev[i] {
				t.Fatalf("column %d shrank from %d to %d", i, prev[i], cur[i])
			}
		}
		prev = cur
	}
}

func TestTextWriterScenarioA(t *testing.T) {
	ts := time.Date(2024, 3, 15, 9, 30, 45, 123456000, time.UTC)
	snap := &Snapshot{
		Schema: activitySchema(),
		Rows:   [][]Value{{TimestampValue(ts), IntValue(42), TextValue("select  1")}},
	}

	var buf bytes.Buffer
	w := NewTextWriter(&buf, NewRenderer(), NewWidths(0))
	if err := w.WriteSnapshot(snap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tsText := "2024-03-15T09:30:45.123456Z"
	want := pad("now", len(tsText)) + pad("pid", 3) + "query\n" +
		pad(tsText, len(tsText)) + pad("42", 3) + "select 1\n"

	if buf.String() != want {
		t.Fatalf("unexpected block:\n%q\nwant:\n%q", buf.String(), want)
	}

	widths := w.Widths().Snapshot()
	if widths[0] != len(tsText) || widths[1] != 3 || widths[2] != len("select 1") {
		t.Fatalf("unexpected widths %v", widths)
	}
}

func TestTextWriterScenarioB(t *testing.T) {
	schema := Schema{
		{Name: "pid", Kind: KindInteger},
		{Name: "usename", Kind: KindText},
		{Name: "query", Kind: KindText},
	}
	first := &Snapshot{
		Schema: schema,
		Rows:   [][]Value{{IntValue(1), TextValue("bob"), TextValue("select 1")}},
	}
	second := &Snapshot{
		Schema: schema,
		Rows: [][]Value{{
			IntValue(2),
			TextValue("replication_user"),
			TextValue("select * from a_much_longer_relation_name"),
		}},
	}

	var buf bytes.Buffer
	w := NewTextWriter(&buf, NewRenderer(), NewWidths(0))

	if err := w.WriteSnapshot(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstBlock := buf.String()
	before := w.Widths().Snapshot()

	if err := w.WriteSnapshot(second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := w.Widths().Snapshot()

	if after[1] <= before[1] || after[2] <= before[2] {
		t.Fatalf("expected usename and query widths to grow: before %v, after %v", before, after)
	}
	if !strings.HasPrefix(buf.String(), firstBlock) {
		t.Fatal("first block was modified by a later snapshot")
	}

	wantFirst := pad("pid", 3) + pad("usename", 7) + "query\n" +
		pad("1", 3) + pad("bob", 7) + "select 1\n"
	if firstBlock != wantFirst {
		t.Fatalf("unexpected first block:\n%q\nwant:\n%q", firstBlock, wantFirst)
	}

	wantSecond := pad("pid", 3) + pad("usename", 16) + "query\n" +
		pad("2", 3) + pad("replication_user", 16) + "select * from a_much_longer_relation_name\n"
	if got := strings.TrimPrefix(buf.String(), firstBlock); got != wantSecond {
		t.Fatalf("unexpected second block:\n%q\nwant:\n%q", got, wantSecond)
	}
}

// No padded column is narrower than the width tracked when its block was written.
func TestTextWriterPaddingInvariant(t *testing.T) {
	rows := [][]Value{
		{IntValue(7), TextValue("alice"), TextValue("a")},
		{IntValue(123456), TextValue("b"), TextValue("longer and longer")},
		{NullValue(KindInteger), NullValue(KindText), NullValue(KindText)},
	}
	schema := Schema{
		{Name: "pid", Kind: KindInteger},
		{Name: "usename", Kind: KindText},
		{Name: "query", Kind: KindText},
	}

	var buf bytes.Buffer
	w := NewTextWriter(&buf, NewRenderer(), NewWidths(0))
	for i := range rows {
		buf.Reset()
		snap := &Snapshot{Schema: schema, Rows: rows[:i+1]}
		if err := w.WriteSnapshot(snap); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		widths := w.Widths().Snapshot()
		padded := widths[0] + ColumnMargin + widths[1] + ColumnMargin

		for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
			if len(line) < padded {
				t.Fatalf("line %q shorter than padded prefix %d", line, padded)
			}
			if strings.TrimRight(line[padded:], " ") != line[padded:] {
				t.Fatalf("line %q has trailing spaces in last column", line)
			}
		}
	}
}

func TestTextWriterEmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	w := NewTextWriter(&buf, NewRenderer(), NewWidths(0))

	if err := w.WriteSnapshot(&Snapshot{Schema: activitySchema()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := pad("now", 3) + pad("pid", 3) + "query\n"
	if buf.String() != want {
		t.Fatalf("expected header only, got %q", buf.String())
	}

	buf.Reset()
	if err := w.WriteSnapshot(&Snapshot{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing for an empty schema, got %q", buf.String())
	}
}

func TestTextWriterRenderErrorWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	w := NewTextWriter(&buf, NewRenderer(), NewWidths(0))

	err := w.WriteSnapshot(&Snapshot{
		Schema: activitySchema(),
		Rows:   [][]Value{{IntValue(1)}},
	})
	if !IsRenderError(err) {
		t.Fatalf("expected render error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output on error, got %q", buf.String())
	}
}
