package ingest

import (
	"encoding/json"
	"time"

	"github.com/elonfeng/fingest/internal/store"
	"github.com/elonfeng/fingest/pkg/normalize"
	"github.com/elonfeng/fingest/pkg/record"
)

// Report is the structured outcome of one pipeline run.
type Report struct {
	RunID      string              `json:"run_id"`
	Source     string              `json:"source"`
	SourceID   record.SourceID     `json:"source_id"`
	Table      string              `json:"table"`
	Received   int                 `json:"received"`
	Normalized int                 `json:"normalized"`
	Written    int                 `json:"written"`
	Batches    int                 `json:"batches"`
	Skipped    []normalize.Skip    `json:"skipped,omitempty"`
	Failed     []store.RecordError `json:"failed,omitempty"`
	Warnings   []normalize.Warning `json:"warnings,omitempty"`
	Error      string              `json:"error,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

// OK reports whether every received record was written.
func (r *Report) OK() bool {
	return r.Error == "" && len(r.Failed) == 0 && len(r.Skipped) == 0
}

// Duration is how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Run converts the report into its ledger row.
func (r *Report) Run() *store.Run {
	body, err := json.Marshal(r)
	if err != nil {
		body = []byte("{}")
	}
	return &store.Run{
		ID:         r.RunID,
		SourceID:   r.SourceID,
		TableName:  r.Table,
		Received:   r.Received,
		Normalized: r.Normalized,
		Written:    r.Written,
		Skipped:    len(r.Skipped),
		Failed:     len(r.Failed),
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Report:     string(body),
	}
}
