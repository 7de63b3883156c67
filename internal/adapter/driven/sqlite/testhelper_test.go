package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"testing"
)

// setupTestDB returns a migrated in-memory database private to the test.
// Writer and reader pools share it through cache=shared; the name comes from
// t.Name() so concurrent tests never collide.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// WAL does not apply to in-memory databases.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		url.PathEscape(t.Name()),
	)

	db, err := openDual(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunMigrations(db.Writer); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return db
}

// setupFileDB opens a migrated on-disk database under t.TempDir and returns
// its path so tests can reopen it.
func setupFileDB(t *testing.T) (*DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "vault.db")
	db, err := NewDB(context.Background(), path)
	if err != nil {
		t.Fatalf("open file db: %v", err)
	}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	return db, path
}
