package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/airframesio/pgactivity-collector/cmd/compressors"
	"github.com/airframesio/pgactivity-collector/cmd/formatters"
)

// ErrOutputClosed is returned when writing to a finalized output
var ErrOutputClosed = errors.New("output already finalized")

// countingWriter counts the bytes that reach the file
type countingWriter struct {
	file  *os.File
	count atomic.Int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.count.Add(int64(n))
	return n, err
}

// Output is the compressed file one run appends its snapshot blocks to
type Output struct {
	path       string
	file       *os.File
	counter    *countingWriter
	compressor compressors.StreamWriter
	writer     formatters.SnapshotWriter
	closed     bool
}

// OpenOutput creates path and stacks the compressor and formatter on top of it.
// An existing file is never overwritten.
func OpenOutput(path string, formatter formatters.Formatter, compressor compressors.Compressor, level int) (*Output, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}

	counter := &countingWriter{file: file}
	stream, err := compressor.NewWriter(counter, level)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("creating %s encoder: %w", compressor.Extension(), err)
	}

	return &Output{
		path:       path,
		file:       file,
		counter:    counter,
		compressor: stream,
		writer:     formatter.NewWriter(stream),
	}, nil
}

// Path returns the file location
func (o *Output) Path() string {
	return o.path
}

// BytesWritten returns the number of compressed bytes written to the file so far
func (o *Output) BytesWritten() int64 {
	return o.counter.count.Load()
}

// WriteSnapshot appends one encoded block
func (o *Output) WriteSnapshot(snap *formatters.Snapshot) error {
	if o.closed {
		return ErrOutputClosed
	}
	if err := o.writer.WriteSnapshot(snap); err != nil {
		if formatters.IsRenderError(err) {
			return err
		}
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// Flush makes every block written so far decodable from the file
func (o *Output) Flush() error {
	if o.closed {
		return ErrOutputClosed
	}
	if err := o.compressor.Flush(); err != nil {
		return fmt.Errorf("flushing output: %w", err)
	}
	return nil
}

// Close writes the codec trailer, syncs and closes the file. Calling it again does nothing.
func (o *Output) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true

	var errs []error
	if err := o.compressor.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing encoder: %w", err))
	}
	if err := o.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("syncing output: %w", err))
	}
	if err := o.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing output: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("finalizing %s: %w", o.path, errors.Join(errs...))
	}
	return nil
}
