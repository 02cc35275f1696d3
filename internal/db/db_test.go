package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestDSN(t *testing.T) {
	dsn, err := DSN(DriverModernc, "/Users/me/Library/Application Support/a?b.db")
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:/Users/me/Library/Application Support/a%3fb.db?") {
		t.Fatalf("unexpected prefix: %s", dsn)
	}
	if !strings.Contains(dsn, "mode=ro") || !strings.Contains(dsn, "_pragma=") {
		t.Fatalf("missing read-only params: %s", dsn)
	}

	dsn, err = DSN(DriverMattn, "/tmp/chat.db")
	if err != nil {
		t.Fatalf("DSN mattn: %v", err)
	}
	if !strings.Contains(dsn, "_query_only=1") {
		t.Fatalf("missing mattn params: %s", dsn)
	}

	if _, err := DSN("postgres", "/tmp/x"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	_, err := OpenReadOnly(context.Background(), DriverModernc, filepath.Join(t.TempDir(), "nope.db"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestOpenReadOnlyRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	rw, err := sql.Open(DriverModernc, path)
	if err != nil {
		t.Fatalf("open rw: %v", err)
	}
	if _, err := rw.Exec(`CREATE TABLE t (x INTEGER); INSERT INTO t VALUES (1);`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rw.Close()

	ro, err := OpenReadOnly(context.Background(), DriverModernc, path)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer ro.Close()

	var x int
	if err := ro.QueryRow(`SELECT x FROM t`).Scan(&x); err != nil || x != 1 {
		t.Fatalf("read: x=%d err=%v", x, err)
	}
	if _, err := ro.Exec(`INSERT INTO t VALUES (2)`); err == nil {
		t.Fatalf("expected write to fail on read-only handle")
	}
}
