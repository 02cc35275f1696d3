package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	// DriverModernc is the pure-Go driver registered by modernc.org/sqlite.
	DriverModernc = "sqlite"
	// DriverMattn is the cgo driver registered by github.com/mattn/go-sqlite3.
	DriverMattn = "sqlite3"
)

// ErrStoreUnavailable is returned when a store file is missing or cannot be read.
var ErrStoreUnavailable = errors.New("store unavailable")

// StoreError describes which store could not be opened and why.
type StoreError struct {
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("cannot open %s: %v", e.Path, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// DSN builds a read-only connection string for the given driver.
func DSN(driver, path string) (string, error) {
	q := url.Values{}
	q.Set("mode", "ro")
	switch driver {
	case DriverModernc, "":
		q.Add("_pragma", "busy_timeout(5000)")
		q.Add("_pragma", "query_only(1)")
	case DriverMattn:
		q.Set("_busy_timeout", "5000")
		q.Set("_query_only", "1")
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q (want %q or %q)", driver, DriverModernc, DriverMattn)
	}
	return "file:" + uriPathEscaper.Replace(path) + "?" + q.Encode(), nil
}

// uriPathEscaper escapes the characters SQLite URI filenames treat specially.
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// OpenReadOnly opens a SQLite file read-only and verifies it can be queried.
// Callers close the handle at the end of each logical operation.
func OpenReadOnly(ctx context.Context, driver, path string) (*sql.DB, error) {
	if driver == "" {
		driver = DriverModernc
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &StoreError{Path: path, Err: err}
	}

	dsn, err := DSN(driver, path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &StoreError{Path: path, Err: fmt.Errorf("failed to open database: %w", err)}
	}
	// A single connection is enough for one in-flight request.
	db.SetMaxOpenConns(1)

	// Reading sqlite_master is the cheapest query that fails on permission errors.
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master").Scan(&n); err != nil {
		db.Close()
		return nil, &StoreError{Path: path, Err: err}
	}
	return db, nil
}
