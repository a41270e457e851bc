package normalize

import (
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/fingest/pkg/record"
)

// DatePolicy decides what an unparseable required date does.
type DatePolicy string

const (
	// DateSkip drops the record and keeps going.
	DateSkip DatePolicy = "skip"
	// DateAbort fails the whole batch before anything is written.
	DateAbort DatePolicy = "abort"
)

// Options configures a Normalizer.
type Options struct {
	// Location replaces US Eastern as the target zone. Production leaves it
	// nil; tests set it to pin expectations.
	Location           *time.Location
	DatePolicy         DatePolicy
	AllowDegenerateIDs bool
}

// Skip is a raw record that produced no canonical record.
type Skip struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Warning is a field that was nulled out or a degenerate id that was kept.
type Warning struct {
	Index   int    `json:"index"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// Outcome is the result of normalizing one batch.
type Outcome struct {
	Records  []record.Record
	Skipped  []Skip
	Warnings []Warning
}

// Normalizer maps raw payloads of each source to canonical records.
type Normalizer struct {
	ts   *Timestamps
	opts Options
}

type mapper func(n *Normalizer, raw record.Raw, src record.SourceID) (record.Record, []string, error)

var mappers = map[record.SourceID]mapper{
	record.SourceBenzinga:            (*Normalizer).newsArticle,
	record.SourceNasdaq:              (*Normalizer).scrapedArticle,
	record.SourceReddit:              (*Normalizer).socialPost,
	record.SourceSeekingAlphaNews:    (*Normalizer).aggregatorItem,
	record.SourceSeekingAlphaArticle: (*Normalizer).aggregatorItem,
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	if opts.DatePolicy == "" {
		opts.DatePolicy = DateSkip
	}
	return &Normalizer{ts: NewTimestamps(opts.Location), opts: opts}
}

// Timestamps exposes the parser the normalizer uses.
func (n *Normalizer) Timestamps() *Timestamps { return n.ts }

// One normalizes a single raw record. Warnings are returned even when the
// record is dropped.
func (n *Normalizer) One(src record.SourceID, raw record.Raw) (record.Record, []string, error) {
	m, ok := mappers[src]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownSource, src)
	}
	if raw == nil {
		return nil, nil, fmt.Errorf("%w: empty payload", ErrMalformedRawRecord)
	}
	return m(n, raw, src)
}

// Normalize maps a batch. Records that cannot be stored are listed in
// Skipped with their index in raws. With DateAbort an unparseable required
// date returns an error and the partial outcome.
func (n *Normalizer) Normalize(src record.SourceID, raws []record.Raw) (*Outcome, error) {
	if _, ok := mappers[src]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSource, src)
	}

	out := &Outcome{Records: make([]record.Record, 0, len(raws))}
	for i, raw := range raws {
		rec, warns, err := n.One(src, raw)
		id := rawID(raw, rec)
		for _, w := range warns {
			out.Warnings = append(out.Warnings, Warning{Index: i, ID: id, Message: w})
		}
		if err != nil {
			if n.opts.DatePolicy == DateAbort && isDateError(err) {
				return out, fmt.Errorf("record %d: %w", i, err)
			}
			out.Skipped = append(out.Skipped, Skip{Index: i, ID: id, Reason: err.Error(), Err: err})
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func rawID(raw record.Raw, rec record.Record) string {
	if rec != nil {
		return rec.RecordID()
	}
	if s, ok := scalar(raw["id"]); ok {
		return s
	}
	if s, ok := raw["url"].(string); ok {
		return s
	}
	return ""
}

func (n *Normalizer) newsArticle(raw record.Raw, src record.SourceID) (record.Record, []string, error) {
	f := newFields(raw, n.ts)
	a := &record.NewsArticle{
		ID:       f.id("id"),
		Author:   f.plain("author"),
		Created:  f.date("created"),
		Updated:  f.date("updated"),
		Title:    f.text("title"),
		Teaser:   f.optText("teaser"),
		Body:     f.text("body"),
		URL:      f.plain("url"),
		Stocks:   f.list("stocks"),
		Channels: f.list("channels"),
		Tags:     f.list("tags"),
		SourceID: src,
	}
	if err := f.err(); err != nil {
		return nil, f.warnings, err
	}
	return a, f.warnings, nil
}

func (n *Normalizer) scrapedArticle(raw record.Raw, src record.SourceID) (record.Record, []string, error) {
	f := newFields(raw, n.ts)
	var url string
	if u := f.optPlain("url"); u != nil {
		url = *u
	}
	id, idErr := DeriveIDChecked(url)

	a := &record.ScrapedArticle{
		ID:       id,
		Title:    f.text("title"),
		Datetime: f.date("datetime", "date"),
		Body:     f.optText("body"),
		URL:      url,
		SourceID: src,
	}
	if err := f.err(); err != nil {
		return nil, f.warnings, err
	}
	if errors.Is(idErr, ErrIdentifierDegenerate) {
		if !n.opts.AllowDegenerateIDs {
			return nil, f.warnings, idErr
		}
		f.warn("url: %v, stored under %s", idErr, id)
	}
	return a, f.warnings, nil
}

func (n *Normalizer) socialPost(raw record.Raw, src record.SourceID) (record.Record, []string, error) {
	f := newFields(raw, n.ts)
	p := &record.SocialPost{
		ID:          f.id("id"),
		Subreddit:   f.plain("subreddit"),
		Created:     f.date("created_utc", "created"),
		Title:       f.text("title"),
		Selftext:    f.optText("selftext"),
		URL:         f.plain("url"),
		Score:       f.optInt("score"),
		NumComments: f.optInt("num_comments"),
		Ups:         f.optInt("ups"),
		Author:      f.plain("author"),
		SourceID:    src,
	}
	if err := f.err(); err != nil {
		return nil, f.warnings, err
	}
	return p, f.warnings, nil
}

func (n *Normalizer) aggregatorItem(raw record.Raw, src record.SourceID) (record.Record, []string, error) {
	f := newFields(raw, n.ts)
	it := &record.AggregatorItem{
		ID:               f.id("id"),
		Title:            f.text("title"),
		Published:        f.date("published_on", "published"),
		LastModified:     f.optDate("last_modified"),
		Summary:          f.optText("summary"),
		Content:          f.text("content"),
		URL:              f.optPlain("url"),
		TickersPrimary:   f.list("tickers_primary"),
		TickersSecondary: f.list("tickers_secondary"),
		SourceID:         src,
	}
	if err := f.err(); err != nil {
		return nil, f.warnings, err
	}
	return it, f.warnings, nil
}
