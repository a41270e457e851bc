package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/elonfeng/fingest/pkg/record"
)

// BenzingaOptions configures the news API collector.
type BenzingaOptions struct {
	BaseURL  string
	APIKey   string
	PageSize int
	MaxPages int
	Lookback time.Duration
	Client   *http.Client
	Logger   *slog.Logger
}

// Benzinga pages through the news API from a lookback date forward.
type Benzinga struct {
	opts   BenzingaOptions
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewBenzinga creates a news API collector.
func NewBenzinga(opts BenzingaOptions) *Benzinga {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.benzinga.com"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 24 * time.Hour
	}
	return &Benzinga{
		opts:   opts,
		client: newHTTPClient(opts.Client),
		logger: orDefaultLogger(opts.Logger),
		now:    time.Now,
	}
}

func (b *Benzinga) Source() record.SourceID { return record.SourceBenzinga }

// Collect fetches pages until one comes back short or MaxPages is reached.
func (b *Benzinga) Collect(ctx context.Context) ([]record.Raw, error) {
	from := b.now().Add(-b.opts.Lookback).Format("2006-01-02")

	var all []record.Raw
	for page := 0; page < b.opts.MaxPages; page++ {
		raws, err := b.fetchPage(ctx, from, page)
		if err != nil {
			if len(all) > 0 {
				b.logger.Warn("benzinga page failed, keeping earlier pages", "page", page, "error", err)
				break
			}
			return nil, err
		}
		all = append(all, raws...)
		if len(raws) < b.opts.PageSize {
			break
		}
	}
	return all, nil
}

func (b *Benzinga) fetchPage(ctx context.Context, from string, page int) ([]record.Raw, error) {
	q := url.Values{
		"token":         {b.opts.APIKey},
		"dateFrom":      {from},
		"displayOutput": {"full"},
		"page":          {strconv.Itoa(page)},
		"pageSize":      {strconv.Itoa(b.opts.PageSize)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.opts.BaseURL+"/api/v2/news?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create benzinga request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := do(b.client, req)
	if err != nil {
		return nil, fmt.Errorf("benzinga page %d: %w", page, err)
	}

	// The API answers with a bare list or with {"articles": [...]}.
	var raws []record.Raw
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Articles []record.Raw `json:"articles"`
		}
		if err := decodeJSON(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decode benzinga page %d: %w", page, err)
		}
		raws = wrapped.Articles
	} else if err := decodeJSON(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("decode benzinga page %d: %w", page, err)
	}
	return raws, nil
}
