package compressors

import "io"

// NoneCompressor is a no-op compressor that writes data unchanged
type NoneCompressor struct{}

// NewNoneCompressor creates a new no-op compressor
func NewNoneCompressor() *NoneCompressor {
	return &NoneCompressor{}
}

// NewWriter creates a no-op writer (passes through without compression)
func (c *NoneCompressor) NewWriter(w io.Writer, _ int) (StreamWriter, error) {
	return &nopStreamWriter{w}, nil
}

// NewReader returns r unchanged
func (c *NoneCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

// Extension returns an empty string (no compression extension)
func (c *NoneCompressor) Extension() string {
	return ""
}

// DefaultLevel returns 0 (no compression level needed)
func (c *NoneCompressor) DefaultLevel() int {
	return 0
}

// ValidLevel only accepts 0
func (c *NoneCompressor) ValidLevel(level int) bool {
	return level == 0
}

type nopStreamWriter struct {
	io.Writer
}

func (w *nopStreamWriter) Flush() error { return nil }

func (w *nopStreamWriter) Close() error { return nil }
