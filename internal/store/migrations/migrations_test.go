package migrations

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n > 0
}

func TestRunCreatesSchema(t *testing.T) {
	db := openDB(t)
	if err := Run(db); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// A second run has nothing to apply.
	if err := Run(db); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	for _, table := range []string{"sources", "news_articles", "scraped_articles", "social_posts", "aggregator_items", "ingest_runs"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s missing", table)
		}
	}
}

func TestExecDownAndUp(t *testing.T) {
	db := openDB(t)
	var out bytes.Buffer

	if err := Exec(db, "up", &out); err != nil {
		t.Fatalf("up: %v", err)
	}
	if err := Exec(db, "down", &out); err != nil {
		t.Fatalf("down: %v", err)
	}
	if tableExists(t, db, "ingest_runs") {
		t.Error("ingest_runs should be dropped by down")
	}
	if !tableExists(t, db, "sources") {
		t.Error("sources should survive a single down")
	}
	if err := Exec(db, "up-one", &out); err != nil {
		t.Fatalf("up-one: %v", err)
	}
	if !tableExists(t, db, "ingest_runs") {
		t.Error("ingest_runs should be restored by up-one")
	}

	out.Reset()
	if err := Exec(db, "version", &out); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "2") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestExecUnknownCommand(t *testing.T) {
	if err := Exec(openDB(t), "sideways", &bytes.Buffer{}); err == nil {
		t.Error("expected error")
	}
}
