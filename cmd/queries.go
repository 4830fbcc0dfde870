package cmd

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/goyesql"
)

// ErrQueryNotFound is returned when the requested query is not in the queries file
var ErrQueryNotFound = errors.New("query not found")

//go:embed queries.sql
var embeddedQueries []byte

// loadQuery returns the SQL body named name, from path or from the embedded
// queries file when path is empty
func loadQuery(path, name string) (string, error) {
	var (
		queries goyesql.Queries
		err     error
	)
	if path == "" {
		queries, err = goyesql.ParseBytes(embeddedQueries)
	} else {
		var b []byte
		b, err = os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading queries file %s: %w", path, err)
		}
		queries, err = goyesql.ParseBytes(b)
	}
	if err != nil {
		return "", fmt.Errorf("parsing queries: %w", err)
	}

	q, ok := queries[name]
	if !ok || strings.TrimSpace(q.Query) == "" {
		return "", fmt.Errorf("%w: %s", ErrQueryNotFound, name)
	}
	return strings.TrimSuffix(strings.TrimSpace(q.Query), ";"), nil
}
