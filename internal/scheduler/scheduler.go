package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/fingest/pkg/ingest"
	"github.com/elonfeng/fingest/pkg/notify"
	"github.com/elonfeng/fingest/pkg/record"
	"github.com/elonfeng/fingest/pkg/source"
)

// Ingester runs one source's raw records through normalization and storage.
type Ingester interface {
	Run(ctx context.Context, src record.SourceID, raws []record.Raw) (*ingest.Report, error)
}

// Options configures a Scheduler.
type Options struct {
	// Interval between passes. Zero runs a single pass.
	Interval time.Duration
	// Concurrency bounds the collectors running at once. Zero means all.
	Concurrency int
}

// Scheduler runs collectors in parallel, ingests their output and announces
// the results.
type Scheduler struct {
	collectors []source.Collector
	ingester   Ingester
	notifier   *notify.Manager
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a new scheduler. notifier may be nil.
func New(collectors []source.Collector, ing Ingester, notifier *notify.Manager, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewManager(false)
	}
	return &Scheduler{
		collectors: collectors,
		ingester:   ing,
		notifier:   notifier,
		opts:       opts,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run performs a pass immediately, then one per interval until ctx is
// cancelled. Without an interval it returns after the first pass.
func (s *Scheduler) Run(ctx context.Context) error {
	s.pass(ctx)
	if s.opts.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	s.logger.Info("scheduler running", "interval", s.opts.Interval, "collectors", len(s.collectors))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	reports := s.RunOnce(ctx)
	if ctx.Err() != nil {
		return
	}
	sent, err := s.notifier.Notify(ctx, reports)
	if err != nil {
		s.logger.Error("notify failed", "error", err)
	} else if sent {
		s.logger.Debug("run summary sent", "runs", len(reports))
	}
}

// RunOnce collects from every collector and ingests the results. Reports are
// in collector order. A failing collector yields a report carrying its error
// and does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) []*ingest.Report {
	reports := make([]*ingest.Report, len(s.collectors))

	var g errgroup.Group
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}
	for i, c := range s.collectors {
		g.Go(func() error {
			reports[i] = s.runCollector(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func (s *Scheduler) runCollector(ctx context.Context, c source.Collector) *ingest.Report {
	src := c.Source()
	log := s.logger.With("source", src.String())
	started := s.now()

	raws, err := c.Collect(ctx)
	if err != nil {
		log.Error("collect failed", "error", err)
		return &ingest.Report{
			Source:     src.String(),
			SourceID:   src,
			Error:      fmt.Sprintf("collect: %v", err),
			StartedAt:  started,
			FinishedAt: s.now(),
		}
	}

	report, err := s.ingester.Run(ctx, src, raws)
	if err != nil {
		log.Error("ingest failed", "run_id", report.RunID, "error", err)
	}
	return report
}
