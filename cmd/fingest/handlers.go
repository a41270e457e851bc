package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/fingest/internal/config"
	"github.com/elonfeng/fingest/internal/scheduler"
	"github.com/elonfeng/fingest/internal/store"
	"github.com/elonfeng/fingest/internal/store/migrations"
	"github.com/elonfeng/fingest/pkg/ingest"
	"github.com/elonfeng/fingest/pkg/normalize"
	"github.com/elonfeng/fingest/pkg/notify"
	"github.com/elonfeng/fingest/pkg/record"
	"github.com/elonfeng/fingest/pkg/server"
	"github.com/elonfeng/fingest/pkg/source"
)

const errorWidth = 60

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openStore opens the database, optionally registering the known sources.
func openStore(ctx context.Context, cfg *config.Config, seed bool) (*store.SQLiteStore, error) {
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if seed {
		if err := db.SeedSources(ctx, record.Registry); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func buildPipeline(cfg *config.Config, db ingest.Writer, log *slog.Logger) (*ingest.Pipeline, error) {
	policy, err := store.ParseWritePolicy(cfg.Ingest.WritePolicy)
	if err != nil {
		return nil, err
	}

	n := normalize.New(normalize.Options{
		DatePolicy:         normalize.DatePolicy(cfg.Ingest.DatePolicy),
		AllowDegenerateIDs: cfg.Ingest.AllowDegenerateIDs,
	})
	return ingest.New(db, n, ingest.Options{
		BatchSize:   cfg.Ingest.BatchSize,
		WritePolicy: policy,
	}, log), nil
}

func buildCollectors(cfg *config.Config, known source.URLLister, log *slog.Logger) []source.Collector {
	var collectors []source.Collector
	s := cfg.Sources

	if s.Benzinga.Enabled {
		collectors = append(collectors, source.NewBenzinga(source.BenzingaOptions{
			BaseURL:  s.Benzinga.BaseURL,
			APIKey:   s.Benzinga.APIKey,
			PageSize: s.Benzinga.PageSize,
			MaxPages: s.Benzinga.MaxPages,
			Lookback: time.Duration(s.Benzinga.LookbackDays) * 24 * time.Hour,
			Logger:   log,
		}))
	}
	if s.Nasdaq.Enabled {
		collectors = append(collectors, source.NewNasdaq(source.NasdaqOptions{
			ListingURLs: s.Nasdaq.ListingURLs,
			Feeds:       s.Nasdaq.Feeds,
			MaxArticles: s.Nasdaq.MaxArticles,
			Selectors: source.NasdaqSelectors{
				Links: s.Nasdaq.Selectors.Links,
				Title: s.Nasdaq.Selectors.Title,
				Date:  s.Nasdaq.Selectors.Date,
				Body:  s.Nasdaq.Selectors.Body,
			},
			Known:  known,
			Logger: log,
		}))
	}
	if s.Reddit.Enabled {
		collectors = append(collectors, source.NewReddit(source.RedditOptions{
			ClientID:     s.Reddit.ClientID,
			ClientSecret: s.Reddit.ClientSecret,
			UserAgent:    s.Reddit.UserAgent,
			Subreddits:   s.Reddit.Subreddits,
			Limit:        s.Reddit.Limit,
			Logger:       log,
		}))
	}
	if s.SeekingAlpha.Enabled {
		opts := source.SeekingAlphaOptions{
			APIKey: s.SeekingAlpha.APIKey,
			Host:   s.SeekingAlpha.Host,
			Logger: log,
		}
		news, articles := opts, opts
		news.Size = s.SeekingAlpha.NewsSize
		articles.Size = s.SeekingAlpha.ArticlesSize
		collectors = append(collectors,
			source.NewSeekingAlphaNews(news),
			source.NewSeekingAlphaArticles(articles),
		)
	}
	return collectors
}

// selectCollectors keeps the collectors named in names. Every name must
// resolve to an enabled collector.
func selectCollectors(all []source.Collector, names []string) ([]source.Collector, error) {
	if len(names) == 0 {
		return all, nil
	}
	wanted := make(map[record.SourceID]bool)
	for _, name := range names {
		src, ok := record.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown source %q (known: %s)", name, strings.Join(record.Names(), ", "))
		}
		wanted[src.ID] = true
	}

	var selected []source.Collector
	for _, c := range all {
		if wanted[c.Source()] {
			selected = append(selected, c)
			delete(wanted, c.Source())
		}
	}
	if len(wanted) > 0 {
		missing := make([]string, 0, len(wanted))
		for id := range wanted {
			missing = append(missing, id.String())
		}
		slices.Sort(missing)
		return nil, fmt.Errorf("not enabled in the config: %s", strings.Join(missing, ", "))
	}
	return selected, nil
}

func buildNotifier(cfg *config.Config, log *slog.Logger) *notify.Manager {
	var notifiers []notify.Notifier
	n := cfg.Notify

	if n.Slack.Enabled && n.Slack.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlack(n.Slack.WebhookURL))
	}
	if n.Discord.Enabled && n.Discord.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewDiscord(n.Discord.WebhookURL))
	}
	if n.Webhook.Enabled && n.Webhook.URL != "" {
		notifiers = append(notifiers, notify.NewWebhook(n.Webhook.URL, n.Webhook.Secret))
	}
	if n.Telegram.Enabled && n.Telegram.Token != "" {
		tg, err := notify.NewTelegram(n.Telegram.Token, n.Telegram.ChatID)
		if err != nil {
			log.Warn("telegram notifier disabled", "error", err)
		} else {
			notifiers = append(notifiers, tg)
		}
	}
	return notify.NewManager(n.OnFailureOnly, notifiers...)
}

func runMigrate(out io.Writer, command string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	return migrations.Exec(db.DB, command, out)
}

func runSeed(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(context.Background(), cfg, true)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintf(out, "registered %d sources\n", len(record.Registry))
	return nil
}

func runIngest(ctx context.Context, out io.Writer, sourceName string, paths []string, seed, jsonOutput bool) error {
	src, ok := record.Lookup(sourceName)
	if !ok {
		return fmt.Errorf("unknown source %q (known: %s)", sourceName, strings.Join(record.Names(), ", "))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log.Level)

	db, err := openStore(ctx, cfg, seed)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := buildPipeline(cfg, db, log)
	if err != nil {
		return err
	}

	raws, err := source.NewFile(src.ID, paths...).Collect(ctx)
	if err != nil {
		return err
	}

	report, runErr := p.Run(ctx, src.ID, raws)
	if jsonOutput {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else if err := printReports(out, []*ingest.Report{report}); err != nil {
		return err
	}
	return runErr
}

func runCollect(ctx context.Context, out io.Writer, names []string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log.Level)

	db, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer db.Close()

	collectors, err := selectCollectors(buildCollectors(cfg, db, log), names)
	if err != nil {
		return err
	}
	if len(collectors) == 0 {
		return fmt.Errorf("no collectors enabled")
	}

	p, err := buildPipeline(cfg, db, log)
	if err != nil {
		return err
	}

	reports := scheduler.New(collectors, p, nil, scheduler.Options{Concurrency: cfg.Schedule.Concurrency}, log).RunOnce(ctx)
	if sent, err := buildNotifier(cfg, log).Notify(ctx, reports); err != nil {
		log.Error("notify failed", "error", err)
	} else if sent {
		log.Debug("run summary sent")
	}

	if jsonOutput {
		return writeJSON(out, reports)
	}
	return printReports(out, reports)
}

func runRuns(ctx context.Context, out io.Writer, sourceName string, limit int, jsonOutput bool) error {
	opts := store.RunListOpts{Limit: limit}
	if sourceName != "" {
		src, ok := record.Lookup(sourceName)
		if !ok {
			return fmt.Errorf("unknown source %q", sourceName)
		}
		opts.SourceID = src.ID
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(ctx, opts)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs yet (try: fingest collect)")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSOURCE\tSTARTED\tRECEIVED\tWRITTEN\tSKIPPED\tFAILED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			shortID(r.ID), r.SourceID, humanize.Time(r.StartedAt),
			humanize.Comma(int64(r.Received)), humanize.Comma(int64(r.Written)),
			r.Skipped, r.Failed, truncate(r.Error))
	}
	return w.Flush()
}

func runSources(ctx context.Context, out io.Writer, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	sources, err := db.ListSources(ctx)
	if err != nil {
		return err
	}
	counts, err := db.CountBySource(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		type sourceRow struct {
			record.Source
			Rows int `json:"rows"`
		}
		rows := make([]sourceRow, 0, len(sources))
		for _, s := range sources {
			rows = append(rows, sourceRow{Source: s, Rows: counts[s.ID]})
		}
		return writeJSON(out, rows)
	}
	if len(sources) == 0 {
		fmt.Fprintln(out, "no sources registered (try: fingest seed)")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tTABLE\tROWS")
	for _, s := range sources {
		table := "-"
		if t, ok := s.ID.Table(); ok {
			table = t.Name
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Category, table, humanize.Comma(int64(counts[s.ID])))
	}
	return w.Flush()
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}
	log := newLogger(cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := buildPipeline(cfg, db, log)
	if err != nil {
		return err
	}
	return server.New(db, p, port, log).ListenAndServe(ctx)
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}
	interval, err := cfg.Schedule.ParseInterval()
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := buildPipeline(cfg, db, log)
	if err != nil {
		return err
	}

	sched := scheduler.New(buildCollectors(cfg, db, log), p, buildNotifier(cfg, log),
		scheduler.Options{Interval: interval, Concurrency: cfg.Schedule.Concurrency}, log)
	srv := server.New(db, p, port, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	err = g.Wait()
	log.Info("shut down")
	return err
}

func printReports(out io.Writer, reports []*ingest.Report) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tTABLE\tRECEIVED\tWRITTEN\tSKIPPED\tFAILED\tDURATION\tERROR")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.Source, r.Table,
			humanize.Comma(int64(r.Received)), humanize.Comma(int64(r.Written)),
			len(r.Skipped), len(r.Failed),
			r.Duration().Round(time.Millisecond), truncate(r.Error))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, r := range reports {
		for _, s := range r.Skipped {
			fmt.Fprintf(out, "  %s skipped #%d %s: %s\n", r.Source, s.Index, s.ID, truncate(s.Reason))
		}
		for _, f := range r.Failed {
			fmt.Fprintf(out, "  %s failed %s: %s\n", r.Source, f.ID, truncate(f.Reason))
		}
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string) string {
	if s == "" {
		return "-"
	}
	return runewidth.Truncate(s, errorWidth, "…")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

