package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/elonfeng/fingest/pkg/record"
)

// URLLister reports the URLs already stored for a table.
type URLLister interface {
	ListURLs(ctx context.Context, table record.Table) ([]string, error)
}

// NasdaqSelectors are CSS selectors tried in order; the first that matches
// wins.
type NasdaqSelectors struct {
	Links []string
	Title []string
	Date  []string
	Body  []string
}

// NasdaqOptions configures the scraping collector.
type NasdaqOptions struct {
	ListingURLs []string
	Feeds       []string
	MaxArticles int
	Selectors   NasdaqSelectors
	Known       URLLister
	Client      *http.Client
	Logger      *slog.Logger
}

// Nasdaq discovers article URLs from listing pages and RSS feeds, skips
// the ones already stored and scrapes the rest.
type Nasdaq struct {
	opts   NasdaqOptions
	client *http.Client
	parser *gofeed.Parser
	logger *slog.Logger
}

// candidate is a discovered article. Published comes from the feed entry
// and backs up a page without a readable date.
type candidate struct {
	url       string
	published string
}

// NewNasdaq creates a scraping collector.
func NewNasdaq(opts NasdaqOptions) *Nasdaq {
	if opts.MaxArticles <= 0 {
		opts.MaxArticles = 50
	}
	return &Nasdaq{
		opts:   opts,
		client: newHTTPClient(opts.Client),
		parser: gofeed.NewParser(),
		logger: orDefaultLogger(opts.Logger),
	}
}

func (n *Nasdaq) Source() record.SourceID { return record.SourceNasdaq }

func (n *Nasdaq) Collect(ctx context.Context) ([]record.Raw, error) {
	known := map[string]bool{}
	if n.opts.Known != nil {
		urls, err := n.opts.Known.ListURLs(ctx, record.ScrapedArticles)
		if err != nil {
			return nil, fmt.Errorf("list known urls: %w", err)
		}
		for _, u := range urls {
			known[u] = true
		}
	}

	candidates := n.discover(ctx)
	var raws []record.Raw
	for _, c := range candidates {
		if len(raws) >= n.opts.MaxArticles {
			break
		}
		if known[c.url] {
			continue
		}
		known[c.url] = true

		raw, err := n.scrape(ctx, c)
		if err != nil {
			n.logger.Warn("nasdaq article skipped", "url", c.url, "error", err)
			continue
		}
		raws = append(raws, raw)
	}
	n.logger.Debug("nasdaq scrape finished", "discovered", len(candidates), "scraped", len(raws))
	return raws, ctx.Err()
}

// discover returns candidates from listing pages then feeds, in order and
// without duplicates. Failing pages are logged and skipped.
func (n *Nasdaq) discover(ctx context.Context) []candidate {
	seen := map[string]bool{}
	var out []candidate
	add := func(c candidate) {
		if c.url == "" || seen[c.url] {
			return
		}
		seen[c.url] = true
		out = append(out, c)
	}

	for _, page := range n.opts.ListingURLs {
		links, err := n.listingLinks(ctx, page)
		if err != nil {
			n.logger.Warn("nasdaq listing failed", "url", page, "error", err)
			continue
		}
		for _, l := range links {
			add(candidate{url: l})
		}
	}

	for _, feed := range n.opts.Feeds {
		entries, err := n.feedEntries(ctx, feed)
		if err != nil {
			n.logger.Warn("nasdaq feed failed", "url", feed, "error", err)
			continue
		}
		for _, e := range entries {
			add(e)
		}
	}
	return out
}

func (n *Nasdaq) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml")
	return do(n.client, req)
}

func (n *Nasdaq) listingLinks(ctx context.Context, page string) ([]string, error) {
	base, err := url.Parse(page)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	body, err := n.get(ctx, page)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", page, err)
	}

	var links []string
	for _, sel := range n.opts.Selectors.Links {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok || strings.TrimSpace(href) == "" {
				return
			}
			ref, err := url.Parse(strings.TrimSpace(href))
			if err != nil {
				return
			}
			links = append(links, base.ResolveReference(ref).String())
		})
		if len(links) > 0 {
			break
		}
	}
	return links, nil
}

func (n *Nasdaq) feedEntries(ctx context.Context, feedURL string) ([]candidate, error) {
	body, err := n.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	feed, err := n.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	out := make([]candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := item.Link
		if link == "" && len(item.Links) > 0 {
			link = item.Links[0]
		}
		published := item.Published
		if published == "" {
			published = item.Updated
		}
		out = append(out, candidate{url: strings.TrimSpace(link), published: published})
	}
	return out, nil
}

// scrape extracts title, date and body markup from an article page. Fields
// that cannot be found are left null for the normalizer to judge.
func (n *Nasdaq) scrape(ctx context.Context, c candidate) (record.Raw, error) {
	body, err := n.get(ctx, c.url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse article: %w", err)
	}

	sel := n.opts.Selectors
	date := firstText(doc, sel.Date)
	if date == "" {
		date = c.published
	}

	var articleBody any
	if s := firstMatch(doc, sel.Body); s != nil {
		if h, err := s.Html(); err == nil {
			articleBody = h
		}
	}

	return record.Raw{
		"url":   c.url,
		"title": optional(firstText(doc, sel.Title)),
		"date":  optional(date),
		"body":  articleBody,
	}, nil
}

func firstMatch(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return nil
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}
