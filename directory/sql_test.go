package directory_test

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mailrule/mailrule/directory"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE domains (name TEXT PRIMARY KEY, mx TEXT NOT NULL)`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = db.Exec(`INSERT INTO domains (name, mx) VALUES
		('example.org', 'relay1.example.org'),
		('example.net', 'relay2.example.org')`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return db
}

func TestSQLDirectory(t *testing.T) {

	d, err := directory.NewSQL(openTestDB(t), directory.Queries{
		ResolveQuery: `SELECT mx FROM domains WHERE name = ?`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	ok, err := d.Contains(ctx, "example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("example.org not found")
	}

	ok, err = d.Contains(ctx, "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("example.com found")
	}

	v, ok, err := d.Resolve(ctx, "example.net")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || v != "relay2.example.org" {
		t.Fatalf("got %q/%t, want relay2.example.org/true", v, ok)
	}

	// absent key is not-found, not an error
	_, ok, err = d.Resolve(ctx, "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("example.com resolved")
	}
}

func TestSQLDirectorySeparateContainsQuery(t *testing.T) {

	// membership is decided by its own query, wider than resolution
	d, err := directory.NewSQL(openTestDB(t), directory.Queries{
		ContainsQuery: `SELECT 1 FROM domains WHERE name = ?1 OR mx = ?1`,
		ResolveQuery:  `SELECT mx FROM domains WHERE name = ?`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	ok, err := d.Contains(ctx, "relay1.example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("mx name not matched by contains query")
	}

	_, ok, err = d.Resolve(ctx, "relay1.example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("mx name resolved")
	}
}

func TestSQLDirectoryBackendFailure(t *testing.T) {

	db := openTestDB(t)
	d, err := directory.NewSQL(db, directory.Queries{
		ResolveQuery: `SELECT mx FROM domains WHERE name = ?`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db.Close()

	// a dead backend is an error, never a silent not-found
	if _, err := d.Contains(context.Background(), "example.org"); err == nil {
		t.Fatalf("closed database reported a membership result")
	}
	if _, _, err := d.Resolve(context.Background(), "example.org"); err == nil {
		t.Fatalf("closed database reported a resolution result")
	}
}

func TestSQLDirectoryRequiresResolveQuery(t *testing.T) {

	if _, err := directory.NewSQL(openTestDB(t), directory.Queries{}); err == nil {
		t.Fatalf("accepted an empty query set")
	}
}
