package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/elonfeng/fingest/pkg/record"
)

// RedditOptions configures the Reddit collector.
type RedditOptions struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	Subreddits   []string
	Limit        int
	AuthURL      string
	APIURL       string
	Client       *http.Client
	Logger       *slog.Logger
}

// Reddit lists the newest posts of a set of subreddits through the OAuth API.
type Reddit struct {
	opts   RedditOptions
	client *http.Client
	logger *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewReddit creates a new Reddit collector.
func NewReddit(opts RedditOptions) *Reddit {
	if opts.UserAgent == "" {
		opts.UserAgent = userAgent
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if opts.AuthURL == "" {
		opts.AuthURL = "https://www.reddit.com/api/v1/access_token"
	}
	if opts.APIURL == "" {
		opts.APIURL = "https://oauth.reddit.com"
	}
	return &Reddit{
		opts:   opts,
		client: newHTTPClient(opts.Client),
		logger: orDefaultLogger(opts.Logger),
	}
}

func (r *Reddit) Source() record.SourceID { return record.SourceReddit }

// Collect fetches one combined r/a+b+c/new listing.
func (r *Reddit) Collect(ctx context.Context) ([]record.Raw, error) {
	if len(r.opts.Subreddits) == 0 {
		return nil, nil
	}
	if err := r.authenticate(ctx); err != nil {
		return nil, fmt.Errorf("reddit auth: %w", err)
	}

	reqURL := fmt.Sprintf("%s/r/%s/new.json?limit=%d",
		r.opts.APIURL, strings.Join(r.opts.Subreddits, "+"), r.opts.Limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.currentToken())
	req.Header.Set("User-Agent", r.opts.UserAgent)

	body, err := do(r.client, req)
	if err != nil {
		return nil, fmt.Errorf("reddit listing: %w", err)
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode reddit listing: %w", err)
	}

	raws := make([]record.Raw, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Stickied {
			continue
		}

		postURL := post.URL
		if postURL == "" || strings.HasPrefix(postURL, "/r/") {
			postURL = "https://www.reddit.com" + post.Permalink
		}

		raws = append(raws, record.Raw{
			"id":           post.ID,
			"subreddit":    post.Subreddit,
			"created_utc":  numberOrNil(post.CreatedUTC),
			"title":        post.Title,
			"selftext":     post.Selftext,
			"url":          postURL,
			"score":        numberOrNil(post.Score),
			"num_comments": numberOrNil(post.NumComments),
			"ups":          numberOrNil(post.Ups),
			"author":       post.Author,
		})
	}
	r.logger.Debug("reddit listing fetched", "posts", len(raws))
	return raws, nil
}

func (r *Reddit) currentToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

func (r *Reddit) authenticate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && time.Now().Before(r.tokenExpiry) {
		return nil
	}

	data := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.AuthURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(r.opts.ClientID, r.opts.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", r.opts.UserAgent)

	body, err := do(r.client, req)
	if err != nil {
		return fmt.Errorf("reddit token request: %w", err)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return fmt.Errorf("decode reddit token: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return fmt.Errorf("reddit token response without access_token")
	}

	r.token = tokenResp.AccessToken
	r.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string      `json:"id"`
	Subreddit   string      `json:"subreddit"`
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Permalink   string      `json:"permalink"`
	Selftext    string      `json:"selftext"`
	Author      string      `json:"author"`
	Score       json.Number `json:"score"`
	NumComments json.Number `json:"num_comments"`
	Ups         json.Number `json:"ups"`
	CreatedUTC  json.Number `json:"created_utc"`
	Stickied    bool        `json:"stickied"`
}

func numberOrNil(n json.Number) any {
	if n == "" {
		return nil
	}
	return n
}
