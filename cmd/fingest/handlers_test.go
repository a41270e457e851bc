package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/elonfeng/fingest/internal/config"
	"github.com/elonfeng/fingest/pkg/ingest"
	"github.com/elonfeng/fingest/pkg/record"
	"github.com/elonfeng/fingest/pkg/source"
)

// useConfig points the CLI at a temp config with its own database.
func useConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "database:\n  path: " + filepath.Join(dir, "fingest.db") + "\nlog:\n  level: error\n" + extra
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	old := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = old })
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSelectCollectors(t *testing.T) {
	all := []source.Collector{
		source.NewFile(record.SourceBenzinga),
		source.NewFile(record.SourceReddit),
	}

	got, err := selectCollectors(all, []string{"Reddit"})
	if err != nil {
		t.Fatalf("selectCollectors: %v", err)
	}
	if len(got) != 1 || got[0].Source() != record.SourceReddit {
		t.Errorf("selected = %v", got)
	}

	if got, _ := selectCollectors(all, nil); len(got) != 2 {
		t.Errorf("no names should select all, got %d", len(got))
	}
	if _, err := selectCollectors(all, []string{"bloomberg"}); err == nil {
		t.Error("expected unknown source error")
	}
	if _, err := selectCollectors(all, []string{"nasdaq"}); err == nil || !strings.Contains(err.Error(), "not enabled") {
		t.Errorf("err = %v, want not enabled", err)
	}
}

func TestBuildCollectors(t *testing.T) {
	cfg := config.Default()
	cfg.Sources.Reddit.Enabled = true
	cfg.Sources.SeekingAlpha.Enabled = true

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var got []record.SourceID
	for _, c := range buildCollectors(cfg, nil, logger) {
		got = append(got, c.Source())
	}
	want := []record.SourceID{record.SourceReddit, record.SourceSeekingAlphaNews, record.SourceSeekingAlphaArticle}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("collectors mismatch (-want +got):\n%s", diff)
	}
}

func TestIngestCommand(t *testing.T) {
	dir := useConfig(t, "")
	input := writeFile(t, dir, "posts.jsonl",
		`{"id":"p1","subreddit":"stocks","created_utc":1562014489,"title":"Hello","url":"https://www.reddit.com/r/stocks/comments/p1/","author":"a"}`+"\n"+
			`{"id":"p2","subreddit":"stocks","created_utc":"not a date","title":"Bad","url":"https://www.reddit.com/r/stocks/comments/p2/","author":"b"}`+"\n")

	// Without registered sources the run is rejected.
	if err := runIngest(context.Background(), io.Discard, "reddit", []string{input}, false, true); err == nil {
		t.Fatal("expected unregistered source error")
	}

	var out bytes.Buffer
	if err := runIngest(context.Background(), &out, "reddit", []string{input}, true, true); err != nil {
		t.Fatalf("runIngest: %v", err)
	}
	var report ingest.Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out.String())
	}
	if report.Received != 2 || report.Written != 1 || len(report.Skipped) != 1 {
		t.Errorf("report = %+v", report)
	}

	out.Reset()
	if err := runSources(context.Background(), &out, false); err != nil {
		t.Fatalf("runSources: %v", err)
	}
	if !strings.Contains(out.String(), "social_posts") {
		t.Errorf("sources output:\n%s", out.String())
	}

	out.Reset()
	if err := runRuns(context.Background(), &out, "reddit", 10, false); err != nil {
		t.Fatalf("runRuns: %v", err)
	}
	// Two runs: the rejected one and the successful one.
	if lines := strings.Count(strings.TrimSpace(out.String()), "\n"); lines != 2 {
		t.Errorf("runs output:\n%s", out.String())
	}
}

func TestIngestUnknownSource(t *testing.T) {
	useConfig(t, "")
	err := runIngest(context.Background(), io.Discard, "bloomberg", []string{"x.jsonl"}, true, false)
	if err == nil || !strings.Contains(err.Error(), "unknown source") {
		t.Errorf("err = %v", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	useConfig(t, "ingest:\n  write_policy: sometimes\n")
	if err := runSeed(io.Discard); !errors.Is(err, config.ErrInvalidWritePolicy) {
		t.Errorf("err = %v, want ErrInvalidWritePolicy", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate(""); got != "-" {
		t.Errorf("truncate(\"\") = %q", got)
	}
	long := strings.Repeat("x", errorWidth+10)
	if got := truncate(long); len([]rune(got)) != errorWidth || !strings.HasSuffix(got, "…") {
		t.Errorf("truncate(long) = %q", got)
	}
}
