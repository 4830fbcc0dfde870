package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/airframesio/pgactivity-collector/cmd/compressors"
	"github.com/airframesio/pgactivity-collector/cmd/formatters"
)

// ErrSummaryNeedsJSONL is returned when a summary is requested for a non-JSONL file
var ErrSummaryNeedsJSONL = errors.New("summary requires a .jsonl collector file")

// openCollectorFile opens path with the decompressor matching its extension
func openCollectorFile(path string) (io.ReadCloser, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	r, err := compressors.ForPath(path).NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("opening decoder for %s: %w", path, err)
	}

	closeAll := func() error {
		rerr := r.Close()
		ferr := f.Close()
		return errors.Join(rerr, ferr)
	}
	return r, closeAll, nil
}

// catFile decompresses path to w. A truncated file still yields everything up to its last flush.
func catFile(path string, w io.Writer) error {
	r, closeAll, err := openCollectorFile(path)
	if err != nil {
		return err
	}
	defer closeAll()

	n, err := io.Copy(w, r)
	if err != nil {
		return fmt.Errorf("reading %s after %d bytes (file may be truncated): %w", path, n, err)
	}
	return nil
}

// summarizeFile prints one line per snapshot of a JSONL collector file
func summarizeFile(path string, w io.Writer) error {
	base := strings.TrimSuffix(path, compressors.ForPath(path).Extension())
	if !strings.HasSuffix(base, ".jsonl") {
		return fmt.Errorf("%w: %s", ErrSummaryNeedsJSONL, path)
	}

	r, closeAll, err := openCollectorFile(path)
	if err != nil {
		return err
	}
	defer closeAll()

	reader := formatters.NewJSONLReader(r)
	var snapshots, rows int
	for {
		line, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %s after %d snapshots (file may be truncated): %w", path, snapshots, err)
		}

		when := "-"
		if line.When != nil {
			when = *line.When
		}
		fmt.Fprintf(w, "%s\t%d\n", when, len(line.Records))
		snapshots++
		rows += len(line.Records)
	}

	fmt.Fprintf(w, "%d snapshots, %d rows\n", snapshots, rows)
	return nil
}
