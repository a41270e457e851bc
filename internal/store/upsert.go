package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/elonfeng/fingest/pkg/record"
)

// WritePolicy decides what a failing record does to the rest of its batch.
type WritePolicy string

const (
	// WriteAtomic rolls the whole batch back when any record fails.
	WriteAtomic WritePolicy = "atomic"
	// WriteIsolated keeps the records written before the failing one and
	// stops the batch there.
	WriteIsolated WritePolicy = "isolated"
)

// ParseWritePolicy validates a configured policy name. Empty means atomic.
func ParseWritePolicy(s string) (WritePolicy, error) {
	switch WritePolicy(s) {
	case "", WriteAtomic:
		return WriteAtomic, nil
	case WriteIsolated:
		return WriteIsolated, nil
	}
	return "", fmt.Errorf("unknown write policy %q", s)
}

// RecordError is a record the writer did not store.
type RecordError struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// WriteResult summarizes one Upsert call.
type WriteResult struct {
	Written int           `json:"written"`
	Failed  []RecordError `json:"failed,omitempty"`
}

const savepoint = "upsert_record"

// upsertQuery builds the named insert-or-update statement for a table. Every
// non-key column is overwritten on conflict.
func upsertQuery(t record.Table) string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = ":" + c
	}
	sets := make([]string, 0, len(t.Columns))
	for _, c := range t.Updatable() {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", quote(c), quote(c)))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		quote(t.Name), columnList(t.Columns), strings.Join(names, ", "),
		quote(t.Key), strings.Join(sets, ", "))
}

// Upsert writes recs into table inside one transaction. Under WriteAtomic
// any failure returns an error wrapping ErrPersistenceConflict and nothing
// is stored. Under WriteIsolated the failing record is rolled back to its
// savepoint, earlier records commit, and the failing and remaining records
// are reported in Failed.
func (s *SQLiteStore) Upsert(ctx context.Context, table record.Table, recs []record.Record, policy WritePolicy) (*WriteResult, error) {
	res := &WriteResult{}
	if len(recs) == 0 {
		return res, nil
	}
	for _, rec := range recs {
		if rec.RecordTable().Name != table.Name {
			return nil, fmt.Errorf("record %s belongs to %s, not %s", rec.RecordID(), rec.RecordTable().Name, table.Name)
		}
	}

	query := upsertQuery(table)
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert %s: %w", table.Name, err)
	}
	defer tx.Rollback()

	for i, rec := range recs {
		if policy != WriteIsolated {
			if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
				return nil, fmt.Errorf("%w: %s %s: %v", ErrPersistenceConflict, table.Name, rec.RecordID(), err)
			}
			res.Written++
			continue
		}

		err := upsertIsolated(ctx, tx, query, rec)
		if err == nil {
			res.Written++
			continue
		}
		if !errors.Is(err, ErrPersistenceConflict) {
			return nil, err
		}
		res.Failed = append(res.Failed, RecordError{ID: rec.RecordID(), Reason: err.Error(), Err: err})
		for _, rest := range recs[i+1:] {
			res.Failed = append(res.Failed, RecordError{
				ID:     rest.RecordID(),
				Reason: fmt.Sprintf("not attempted: batch stopped at %s", rec.RecordID()),
			})
		}
		break
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert %s: %w", table.Name, err)
	}
	return res, nil
}

// upsertIsolated writes one record inside a savepoint. A failing statement
// is reported as ErrPersistenceConflict; savepoint errors are returned as is.
func upsertIsolated(ctx context.Context, tx *sqlx.Tx, query string, rec record.Record) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}

	if _, execErr := tx.NamedExecContext(ctx, query, rec); execErr != nil {
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); err != nil {
			return fmt.Errorf("rollback to savepoint: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return fmt.Errorf("release savepoint: %w", err)
		}
		return fmt.Errorf("%w: %s %s: %v", ErrPersistenceConflict, rec.RecordTable().Name, rec.RecordID(), execErr)
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
