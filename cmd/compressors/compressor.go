package compressors

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnsupportedCompression is returned when an unsupported compression type is requested
var ErrUnsupportedCompression = errors.New("unsupported compression type")

// StreamWriter is a compressing writer. Flush makes everything written so far
// decodable; Close writes the codec trailer.
type StreamWriter interface {
	io.WriteCloser
	Flush() error
}

// Compressor defines the interface for compression handlers
type Compressor interface {
	// NewWriter creates a streaming compression writer on top of w.
	// Level 0 selects DefaultLevel.
	NewWriter(w io.Writer, level int) (StreamWriter, error)

	// NewReader creates a streaming decompression reader
	NewReader(r io.Reader) (io.ReadCloser, error)

	// Extension returns the file extension for this compression (e.g., ".zst", ".lz4", ".gz")
	Extension() string

	// DefaultLevel returns the default compression level
	DefaultLevel() int

	// ValidLevel reports whether level is accepted by NewWriter
	ValidLevel(level int) bool
}

// GetCompressor returns the appropriate compressor based on the compression string
func GetCompressor(compression string) (Compressor, error) {
	switch compression {
	case "zstd":
		return NewZstdCompressor(), nil
	case "lz4":
		return NewLZ4Compressor(), nil
	case "gzip":
		return NewGzipCompressor(), nil
	case "none":
		return NewNoneCompressor(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, compression)
	}
}

// ForPath picks the compressor matching a file name's extension.
// Files without a known compression extension are treated as uncompressed.
func ForPath(path string) Compressor {
	for _, c := range []Compressor{NewZstdCompressor(), NewLZ4Compressor(), NewGzipCompressor()} {
		if strings.HasSuffix(path, c.Extension()) {
			return c
		}
	}
	return NewNoneCompressor()
}
