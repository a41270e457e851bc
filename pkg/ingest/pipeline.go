package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/elonfeng/fingest/internal/store"
	"github.com/elonfeng/fingest/pkg/normalize"
	"github.com/elonfeng/fingest/pkg/record"
)

// Writer is the part of the store a pipeline needs.
type Writer interface {
	SourceExists(ctx context.Context, id record.SourceID) (bool, error)
	Upsert(ctx context.Context, table record.Table, recs []record.Record, policy store.WritePolicy) (*store.WriteResult, error)
	SaveRun(ctx context.Context, run *store.Run) error
}

// Options configures a Pipeline.
type Options struct {
	// BatchSize splits the input into separately committed batches. Zero
	// writes the whole input as one batch.
	BatchSize   int
	WritePolicy store.WritePolicy
}

// Pipeline runs raw records of one source through normalization and the
// upsert writer.
type Pipeline struct {
	writer Writer
	norm   *normalize.Normalizer
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Pipeline.
func New(w Writer, n *normalize.Normalizer, opts Options, logger *slog.Logger) *Pipeline {
	if opts.WritePolicy == "" {
		opts.WritePolicy = store.WriteAtomic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		writer: w,
		norm:   n,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run ingests raws for src. The returned report is always non-nil and is
// saved to the run ledger. A non-nil error means a batch was aborted or the
// run could not start; batches committed before that stay committed.
func (p *Pipeline) Run(ctx context.Context, src record.SourceID, raws []record.Raw) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Source:    src.String(),
		SourceID:  src,
		Received:  len(raws),
		StartedAt: p.now(),
	}
	log := p.logger.With("run_id", report.RunID, "source", report.Source)

	err := p.run(ctx, src, raws, report, log)
	report.FinishedAt = p.now()
	if err != nil {
		report.Error = err.Error()
	}

	if saveErr := p.writer.SaveRun(context.WithoutCancel(ctx), report.Run()); saveErr != nil {
		log.Warn("save run failed", "error", saveErr)
	}

	log.Info("ingest finished",
		"table", report.Table,
		"received", report.Received,
		"written", report.Written,
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		"warnings", len(report.Warnings),
		"duration", report.Duration(),
	)
	return report, err
}

func (p *Pipeline) run(ctx context.Context, src record.SourceID, raws []record.Raw, report *Report, log *slog.Logger) error {
	table, ok := src.Table()
	if !ok {
		return fmt.Errorf("%w: %d", normalize.ErrUnknownSource, src)
	}
	report.Table = table.Name

	exists, err := p.writer.SourceExists(ctx, src)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s (%d)", store.ErrSourceNotRegistered, src, src)
	}

	for start, batch := range batches(raws, p.opts.BatchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Batches++

		out, err := p.norm.Normalize(src, batch)
		if out != nil {
			report.Warnings = append(report.Warnings, offsetWarnings(out.Warnings, start)...)
		}
		if err != nil {
			return fmt.Errorf("batch at %d aborted: %w", start, err)
		}
		report.Skipped = append(report.Skipped, offsetSkips(out.Skipped, start)...)
		report.Normalized += len(out.Records)

		res, err := p.writer.Upsert(ctx, table, out.Records, p.opts.WritePolicy)
		if err != nil {
			if errors.Is(err, store.ErrPersistenceConflict) {
				for _, rec := range out.Records {
					report.Failed = append(report.Failed, store.RecordError{
						ID:     rec.RecordID(),
						Reason: "batch rolled back: " + err.Error(),
						Err:    err,
					})
				}
			}
			return fmt.Errorf("batch at %d: %w", start, err)
		}
		report.Written += res.Written
		report.Failed = append(report.Failed, res.Failed...)

		log.Debug("batch written", "start", start, "size", len(batch), "written", res.Written, "failed", len(res.Failed))
	}
	return nil
}

// batches yields consecutive slices of raws with their starting index.
func batches(raws []record.Raw, size int) func(yield func(int, []record.Raw) bool) {
	return func(yield func(int, []record.Raw) bool) {
		if size <= 0 {
			size = len(raws)
		}
		for start := 0; start < len(raws); start += size {
			end := min(start+size, len(raws))
			if !yield(start, raws[start:end]) {
				return
			}
		}
	}
}

func offsetSkips(skips []normalize.Skip, start int) []normalize.Skip {
	for i := range skips {
		skips[i].Index += start
	}
	return skips
}

func offsetWarnings(warns []normalize.Warning, start int) []normalize.Warning {
	for i := range warns {
		warns[i].Index += start
	}
	return warns
}
