package store

import (
	"context"
	"fmt"
	"time"

	"github.com/elonfeng/fingest/pkg/record"
)

// Run is one pipeline run in the ingest ledger. Report holds the full JSON
// report; the counters are copied out for listing.
type Run struct {
	ID         string          `db:"id" json:"id"`
	SourceID   record.SourceID `db:"source_id" json:"source_id"`
	TableName  string          `db:"table_name" json:"table"`
	Received   int             `db:"received" json:"received"`
	Normalized int             `db:"normalized" json:"normalized"`
	Written    int             `db:"written" json:"written"`
	Skipped    int             `db:"skipped" json:"skipped"`
	Failed     int             `db:"failed" json:"failed"`
	Error      string          `db:"error" json:"error,omitempty"`
	StartedAt  time.Time       `db:"started_at" json:"started_at"`
	FinishedAt time.Time       `db:"finished_at" json:"finished_at"`
	Report     string          `db:"report" json:"-"`
}

// RunListOpts controls run listing.
type RunListOpts struct {
	SourceID record.SourceID
	Since    time.Time
	Limit    int
}

const runColumns = `id, source_id, table_name, received, normalized, written, skipped, failed,
	error, started_at, finished_at, report`

func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if run.Report == "" {
		run.Report = "{}"
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO ingest_runs (`+runColumns+`)
		VALUES (:id, :source_id, :table_name, :received, :normalized, :written, :skipped, :failed,
			:error, :started_at, :finished_at, :report)
		ON CONFLICT(id) DO UPDATE SET
			received = excluded.received,
			normalized = excluded.normalized,
			written = excluded.written,
			skipped = excluded.skipped,
			failed = excluded.failed,
			error = excluded.error,
			finished_at = excluded.finished_at,
			report = excluded.report
	`, run)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := s.db.GetContext(ctx, &run, "SELECT "+runColumns+" FROM ingest_runs WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts RunListOpts) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM ingest_runs WHERE 1=1"
	var args []any

	if opts.SourceID != 0 {
		query += " AND source_id = ?"
		args = append(args, opts.SourceID)
	}
	if !opts.Since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, opts.Since)
	}

	query += " ORDER BY started_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
