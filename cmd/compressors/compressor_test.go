package compressors

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestGetCompressor(t *testing.T) {
	tests := []struct {
		name string
		ext  string
	}{
		{"zstd", ".zst"},
		{"lz4", ".lz4"},
		{"gzip", ".gz"},
		{"none", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := GetCompressor(tt.name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.Extension() != tt.ext {
				t.Fatalf("expected extension %q, got %q", tt.ext, c.Extension())
			}
			if !c.ValidLevel(0) || !c.ValidLevel(c.DefaultLevel()) {
				t.Fatalf("default level %d should be valid", c.DefaultLevel())
			}
		})
	}

	if _, err := GetCompressor("brotli"); !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("expected ErrUnsupportedCompression, got %v", err)
	}
}

func TestForPath(t *testing.T) {
	tests := map[string]string{
		"stat-activity-2024-01-01T00:00:00Z.txt.zst":   ".zst",
		"stat-activity-2024-01-01T00:00:00Z.jsonl.lz4": ".lz4",
		"out/stat-activity.txt.gz":                     ".gz",
		"stat-activity.txt":                            "",
	}
	for path, ext := range tests {
		if got := ForPath(path).Extension(); got != ext {
			t.Fatalf("%s: expected %q, got %q", path, ext, got)
		}
	}
}

func TestLevels(t *testing.T) {
	if NewZstdCompressor().ValidLevel(23) || !NewZstdCompressor().ValidLevel(22) {
		t.Fatal("zstd levels should be 1-22")
	}
	if NewLZ4Compressor().ValidLevel(10) || NewGzipCompressor().ValidLevel(10) {
		t.Fatal("lz4/gzip levels should be 1-9")
	}
	if NewNoneCompressor().ValidLevel(1) {
		t.Fatal("none only accepts level 0")
	}
	if _, err := NewLZ4Compressor().NewWriter(io.Discard, 12); err == nil {
		t.Fatal("expected error for invalid lz4 level")
	}
}

// Every codec decodes what was written across several flushes.
func TestStreamRoundTrip(t *testing.T) {
	blocks := []string{
		"now   pid   query\n",
		strings.Repeat("2024-01-01T00:00:00.000000Z   42    select 1\n", 50),
		"last block without much in it\n",
	}

	for _, name := range []string{"zstd", "lz4", "gzip", "none"} {
		t.Run(name, func(t *testing.T) {
			c, err := GetCompressor(name)
			if err != nil {
				t.Fatal(err)
			}

			var buf bytes.Buffer
			w, err := c.NewWriter(&buf, 0)
			if err != nil {
				t.Fatalf("NewWriter: %v", err)
			}
			for _, b := range blocks {
				if _, err := w.Write([]byte(b)); err != nil {
					t.Fatalf("Write: %v", err)
				}
				if err := w.Flush(); err != nil {
					t.Fatalf("Flush: %v", err)
				}
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			r, err := c.NewReader(&buf)
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			defer r.Close()

			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if string(got) != strings.Join(blocks, "") {
				t.Fatalf("round trip mismatch: got %d bytes", len(got))
			}
		})
	}
}

// A gzip stream cut right after a flush still yields everything flushed.
func TestGzipTruncatedAfterFlush(t *testing.T) {
	c := NewGzipCompressor()

	var buf bytes.Buffer
	w, err := c.NewWriter(&buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("first block\n")); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	truncated := append([]byte(nil), buf.Bytes()...)

	r, err := c.NewReader(bytes.NewReader(truncated))
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(r)
	if err == nil {
		t.Fatal("expected an error for a stream without trailer")
	}
	if string(got) != "first block\n" {
		t.Fatalf("expected flushed data, got %q", got)
	}
}
