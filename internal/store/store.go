package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/fingest/internal/store/migrations"
	"github.com/elonfeng/fingest/pkg/record"
)

var (
	// ErrPersistenceConflict wraps a store error raised while writing one record.
	ErrPersistenceConflict = errors.New("persistence conflict")
	// ErrSourceNotRegistered is returned when a source has no registry row.
	ErrSourceNotRegistered = errors.New("source not registered")
	// ErrUnknownColumn is returned when a query names a column the table lacks.
	ErrUnknownColumn = errors.New("unknown column")
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store is the persistence interface.
type Store interface {
	SeedSources(ctx context.Context, sources []record.Source) error
	SourceExists(ctx context.Context, id record.SourceID) (bool, error)
	ListSources(ctx context.Context) ([]record.Source, error)
	CountBySource(ctx context.Context) (map[record.SourceID]int, error)

	Upsert(ctx context.Context, table record.Table, recs []record.Record, policy WritePolicy) (*WriteResult, error)
	Get(ctx context.Context, table record.Table, id string, dest any) error
	ListURLs(ctx context.Context, table record.Table) ([]string, error)

	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, opts RunListOpts) ([]Run, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
}

// Open opens a SQLite database with the store's pragmas applied and no
// migrations run. The pool is limited to one connection: pragmas are per
// connection and SQLite has a single writer.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(p), err)
		}
	}
	return db, nil
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SeedSources upserts registry rows.
func (s *SQLiteStore) SeedSources(ctx context.Context, sources []record.Source) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, src := range sources {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO sources (id, name, category) VALUES (:id, :name, :category)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, category = excluded.category
		`, src)
		if err != nil {
			return fmt.Errorf("seed source %s: %w", src.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SourceExists(ctx context.Context, id record.SourceID) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM sources WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("check source %d: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]record.Source, error) {
	var sources []record.Source
	if err := s.db.SelectContext(ctx, &sources, "SELECT id, name, category FROM sources ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// CountBySource counts stored rows per source across every content table.
func (s *SQLiteStore) CountBySource(ctx context.Context) (map[record.SourceID]int, error) {
	parts := make([]string, 0, len(record.Tables))
	for _, t := range record.Tables {
		parts = append(parts, fmt.Sprintf("SELECT source_id, COUNT(*) AS n FROM %s GROUP BY source_id", quote(t.Name)))
	}

	rows, err := s.db.QueryxContext(ctx, strings.Join(parts, " UNION ALL "))
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[record.SourceID]int)
	for rows.Next() {
		var id record.SourceID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[id] += n
	}
	return counts, rows.Err()
}

// Get loads one row of table into dest, a pointer to the table's record type.
func (s *SQLiteStore) Get(ctx context.Context, table record.Table, id string, dest any) error {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		columnList(table.Columns), quote(table.Name), quote(table.Key))
	if err := s.db.GetContext(ctx, dest, query, id); err != nil {
		return fmt.Errorf("get %s %s: %w", table.Name, id, err)
	}
	return nil
}

// ListURLs returns every stored url of table.
func (s *SQLiteStore) ListURLs(ctx context.Context, table record.Table) ([]string, error) {
	if !table.Has("url") {
		return nil, fmt.Errorf("%w: %s.url", ErrUnknownColumn, table.Name)
	}
	var urls []string
	query := fmt.Sprintf("SELECT url FROM %s WHERE url IS NOT NULL AND url <> ''", quote(table.Name))
	if err := s.db.SelectContext(ctx, &urls, query); err != nil {
		return nil, fmt.Errorf("list %s urls: %w", table.Name, err)
	}
	return urls, nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	return strings.Join(quoted, ", ")
}
