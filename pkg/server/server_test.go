package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/elonfeng/fingest/internal/store"
	"github.com/elonfeng/fingest/pkg/ingest"
	"github.com/elonfeng/fingest/pkg/normalize"
	"github.com/elonfeng/fingest/pkg/record"
)

func newTestServer(t *testing.T, seed bool) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if seed {
		if err := s.SeedSources(context.Background(), record.Registry); err != nil {
			t.Fatalf("SeedSources: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := ingest.New(s, normalize.New(normalize.Options{}), ingest.Options{}, logger)
	srv := httptest.NewServer(New(s, p, 0, logger).Handler())
	t.Cleanup(srv.Close)
	return srv, s
}

const redditJSONL = `{"id":"1abcde","subreddit":"stocks","created_utc":1562014489,"title":"AAPL &amp; earnings","selftext":"","url":"https://www.reddit.com/r/stocks/comments/1abcde/","score":12,"num_comments":3,"ups":12,"author":"someone"}
{"id":"2fghij","subreddit":"stocks","created_utc":1562014490,"url":"https://www.reddit.com/r/stocks/comments/2fghij/","author":"other"}
`

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, false)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("status %d body %v", resp.StatusCode, body)
	}
}

func TestIngestThenListing(t *testing.T) {
	srv, s := newTestServer(t, true)

	resp, err := http.Post(srv.URL+"/api/v1/ingest/reddit", "application/x-ndjson", strings.NewReader(redditJSONL))
	if err != nil {
		t.Fatal(err)
	}
	var report ingest.Report
	decode(t, resp, &report)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, report %+v", resp.StatusCode, report)
	}
	if report.Received != 2 || report.Written != 1 || len(report.Skipped) != 1 || report.Skipped[0].Index != 1 {
		t.Errorf("report = %+v", report)
	}

	var post record.SocialPost
	if err := s.Get(context.Background(), record.SocialPosts, "1abcde", &post); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if post.Title != "AAPL & earnings" || post.Created != "2019-07-01 16:54:49" {
		t.Errorf("post = %+v", post)
	}

	resp, err = http.Get(srv.URL + "/api/v1/sources")
	if err != nil {
		t.Fatal(err)
	}
	var sources struct {
		Data []struct {
			Name  string `json:"name"`
			Table string `json:"table"`
			Rows  int    `json:"rows"`
		} `json:"data"`
		Count int `json:"count"`
	}
	decode(t, resp, &sources)
	if sources.Count != len(record.Registry) {
		t.Fatalf("count = %d", sources.Count)
	}
	for _, src := range sources.Data {
		want := 0
		if src.Name == "reddit" {
			want = 1
		}
		if src.Rows != want {
			t.Errorf("%s rows = %d, want %d", src.Name, src.Rows, want)
		}
	}

	resp, err = http.Get(srv.URL + "/api/v1/runs?source=reddit")
	if err != nil {
		t.Fatal(err)
	}
	var runs struct {
		Data []store.Run `json:"data"`
	}
	decode(t, resp, &runs)
	if len(runs.Data) != 1 || runs.Data[0].ID != report.RunID {
		t.Fatalf("runs = %+v", runs.Data)
	}

	resp, err = http.Get(srv.URL + "/api/v1/runs/" + report.RunID)
	if err != nil {
		t.Fatal(err)
	}
	var stored ingest.Report
	decode(t, resp, &stored)
	if diff := cmp.Diff(report.Skipped, stored.Skipped); diff != "" {
		t.Errorf("stored report mismatch (-want +got):\n%s", diff)
	}
}

func TestIngestErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		seed   bool
		status int
	}{
		{"unknown source", "/api/v1/ingest/bloomberg", "", true, http.StatusNotFound},
		{"bad jsonl", "/api/v1/ingest/reddit", "not json\n", true, http.StatusBadRequest},
		{"unregistered source", "/api/v1/ingest/reddit", redditJSONL, false, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.seed)
			resp, err := http.Post(srv.URL+tt.path, "application/x-ndjson", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestRunsValidation(t *testing.T) {
	srv, _ := newTestServer(t, true)
	for _, q := range []string{"source=nope", "since=yesterday", "limit=-1"} {
		resp, err := http.Get(srv.URL + "/api/v1/runs?" + q)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}

	resp, err := http.Get(srv.URL + "/api/v1/runs/does-not-exist")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", resp.StatusCode)
	}
}
