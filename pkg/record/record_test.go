package record

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name   string
		wantID SourceID
		wantOK bool
	}{
		{"benzinga", SourceBenzinga, true},
		{"Nasdaq", SourceNasdaq, true},
		{" reddit ", SourceReddit, true},
		{"seeking-alpha-news", SourceSeekingAlphaNews, true},
		{"seeking_alpha_article", SourceSeekingAlphaArticle, true},
		{"twitter", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(tt.name)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
			}
			if got.ID != tt.wantID {
				t.Errorf("Lookup(%q) id = %d, want %d", tt.name, got.ID, tt.wantID)
			}
		})
	}
}

func TestSourceTables(t *testing.T) {
	want := map[SourceID]string{
		SourceBenzinga:            "news_articles",
		SourceNasdaq:              "scraped_articles",
		SourceReddit:              "social_posts",
		SourceSeekingAlphaNews:    "aggregator_items",
		SourceSeekingAlphaArticle: "aggregator_items",
	}
	got := map[SourceID]string{}
	for _, s := range Registry {
		tbl, ok := s.ID.Table()
		if !ok {
			t.Fatalf("source %s has no table", s.Name)
		}
		got[s.ID] = tbl.Name
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("source tables mismatch (-want +got):\n%s", diff)
	}
	if _, ok := SourceID(42).Table(); ok {
		t.Error("unknown source resolved to a table")
	}
}

func TestUpdatableSkipsKey(t *testing.T) {
	for _, tbl := range Tables {
		cols := tbl.Updatable()
		if len(cols) != len(tbl.Columns)-1 {
			t.Errorf("%s: got %d updatable columns, want %d", tbl.Name, len(cols), len(tbl.Columns)-1)
		}
		for _, c := range cols {
			if c == tbl.Key {
				t.Errorf("%s: key %q listed as updatable", tbl.Name, c)
			}
		}
		if !tbl.Has("source_id") {
			t.Errorf("%s: missing source_id column", tbl.Name)
		}
	}
}
