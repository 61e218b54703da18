package store

import (
	"fmt"
	"strings"
)

// Open builds a Store from a connection URL without connecting it:
// "file:<path>" yields a file-backed SQLite store, anything beginning
// with "postgres://" or "postgresql://" yields a server-backed
// Postgres store. Callers still call Connect before use.
func Open(url string) (Store, error) {
	switch {
	case strings.HasPrefix(url, "file:"):
		return NewSQLite(strings.TrimPrefix(url, "file:")), nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgres(url), nil
	default:
		return nil, fmt.Errorf("store: unrecognized source url %q (expected file: or postgres(ql):// scheme)", url)
	}
}
