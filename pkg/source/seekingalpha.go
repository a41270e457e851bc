package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/elonfeng/fingest/pkg/record"
)

// SeekingAlphaOptions configures both RapidAPI collectors.
type SeekingAlphaOptions struct {
	APIKey string
	Host   string
	// BaseURL overrides https://<Host>.
	BaseURL string
	Size    int
	Client  *http.Client
	Logger  *slog.Logger
}

type seekingAlphaClient struct {
	opts   SeekingAlphaOptions
	client *http.Client
	logger *slog.Logger
}

func newSeekingAlphaClient(opts SeekingAlphaOptions) *seekingAlphaClient {
	if opts.Host == "" {
		opts.Host = "seeking-alpha.p.rapidapi.com"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://" + opts.Host
	}
	if opts.Size <= 0 {
		opts.Size = 20
	}
	return &seekingAlphaClient{
		opts:   opts,
		client: newHTTPClient(opts.Client),
		logger: orDefaultLogger(opts.Logger),
	}
}

func (c *seekingAlphaClient) get(ctx context.Context, path string, q url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-rapidapi-key", c.opts.APIKey)
	req.Header.Set("x-rapidapi-host", c.opts.Host)

	body, err := do(c.client, req)
	if err != nil {
		return err
	}
	if err := decodeJSON(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// JSON:API shapes shared by the list and detail endpoints.
type saDocument struct {
	ID         string `json:"id"`
	Attributes struct {
		Title        string   `json:"title"`
		PublishOn    string   `json:"publishOn"`
		LastModified string   `json:"lastModified"`
		Content      string   `json:"content"`
		Summary      []string `json:"summary"`
	} `json:"attributes"`
	Links struct {
		Canonical string `json:"canonical"`
		Self      string `json:"self"`
	} `json:"links"`
	Relationships struct {
		PrimaryTickers   saRelation `json:"primaryTickers"`
		SecondaryTickers saRelation `json:"secondaryTickers"`
	} `json:"relationships"`
}

type saRelation struct {
	Data []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"data"`
}

type saIncluded struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name string `json:"name"`
	} `json:"attributes"`
}

// tagNames indexes included tags by id.
func tagNames(included []saIncluded) map[string]string {
	names := make(map[string]string, len(included))
	for _, inc := range included {
		if inc.Type == "tag" && inc.Attributes.Name != "" {
			names[inc.ID] = inc.Attributes.Name
		}
	}
	return names
}

// resolve returns the ticker names a relation points at. Unknown ids are
// dropped.
func (r saRelation) resolve(names map[string]string) []string {
	out := make([]string, 0, len(r.Data))
	for _, d := range r.Data {
		if name, ok := names[d.ID]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (d saDocument) raw(names map[string]string) record.Raw {
	raw := record.Raw{
		"id":                d.ID,
		"title":             d.Attributes.Title,
		"published_on":      optional(d.Attributes.PublishOn),
		"last_modified":     optional(d.Attributes.LastModified),
		"content":           d.Attributes.Content,
		"url":               optional(d.Links.Canonical),
		"tickers_primary":   d.Relationships.PrimaryTickers.resolve(names),
		"tickers_secondary": d.Relationships.SecondaryTickers.resolve(names),
	}
	if d.Attributes.Summary != nil {
		raw["summary"] = d.Attributes.Summary
	}
	return raw
}

// SeekingAlphaNews collects the market news list (source 4).
type SeekingAlphaNews struct {
	c *seekingAlphaClient
}

// NewSeekingAlphaNews creates the news collector.
func NewSeekingAlphaNews(opts SeekingAlphaOptions) *SeekingAlphaNews {
	return &SeekingAlphaNews{c: newSeekingAlphaClient(opts)}
}

func (s *SeekingAlphaNews) Source() record.SourceID { return record.SourceSeekingAlphaNews }

func (s *SeekingAlphaNews) Collect(ctx context.Context) ([]record.Raw, error) {
	var resp struct {
		Data     []saDocument `json:"data"`
		Included []saIncluded `json:"included"`
	}
	q := url.Values{
		"category": {"market-news::all"},
		"size":     {strconv.Itoa(s.c.opts.Size)},
		"number":   {"1"},
	}
	if err := s.c.get(ctx, "/news/v2/list", q, &resp); err != nil {
		return nil, fmt.Errorf("seeking alpha news: %w", err)
	}

	names := tagNames(resp.Included)
	raws := make([]record.Raw, 0, len(resp.Data))
	for _, d := range resp.Data {
		raws = append(raws, d.raw(names))
	}
	return raws, nil
}

// SeekingAlphaArticles collects the latest articles with their details
// (source 5). The list endpoint only carries ids.
type SeekingAlphaArticles struct {
	c *seekingAlphaClient
}

// NewSeekingAlphaArticles creates the article collector.
func NewSeekingAlphaArticles(opts SeekingAlphaOptions) *SeekingAlphaArticles {
	return &SeekingAlphaArticles{c: newSeekingAlphaClient(opts)}
}

func (s *SeekingAlphaArticles) Source() record.SourceID { return record.SourceSeekingAlphaArticle }

func (s *SeekingAlphaArticles) Collect(ctx context.Context) ([]record.Raw, error) {
	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	q := url.Values{
		"category": {"latest-articles"},
		"size":     {strconv.Itoa(s.c.opts.Size)},
		"number":   {"1"},
	}
	if err := s.c.get(ctx, "/articles/v2/list", q, &list); err != nil {
		return nil, fmt.Errorf("seeking alpha articles: %w", err)
	}

	raws := make([]record.Raw, 0, len(list.Data))
	for _, item := range list.Data {
		var detail struct {
			Data     saDocument   `json:"data"`
			Included []saIncluded `json:"included"`
		}
		if err := s.c.get(ctx, "/articles/get-details", url.Values{"id": {item.ID}}, &detail); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.c.logger.Warn("seeking alpha article skipped", "id", item.ID, "error", err)
			continue
		}
		raws = append(raws, detail.Data.raw(tagNames(detail.Included)))
	}
	return raws, nil
}
