package record

// Table describes a content table well enough for a generic upsert: its
// name, its conflict key and the ordered column list (key included).
type Table struct {
	Name    string
	Key     string
	Columns []string
}

// Updatable returns every column except the key.
func (t Table) Updatable() []string {
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c != t.Key {
			cols = append(cols, c)
		}
	}
	return cols
}

// Has reports whether the table carries the named column.
func (t Table) Has(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

var (
	NewsArticles = Table{
		Name: "news_articles",
		Key:  "id",
		Columns: []string{
			"id", "author", "created", "updated", "title", "teaser", "body",
			"url", "stocks", "channels", "tags", "source_id",
		},
	}
	ScrapedArticles = Table{
		Name:    "scraped_articles",
		Key:     "id",
		Columns: []string{"id", "title", "datetime", "body", "url", "source_id"},
	}
	SocialPosts = Table{
		Name: "social_posts",
		Key:  "id",
		Columns: []string{
			"id", "subreddit", "created", "title", "selftext", "url",
			"score", "num_comments", "ups", "author", "source_id",
		},
	}
	AggregatorItems = Table{
		Name: "aggregator_items",
		Key:  "id",
		Columns: []string{
			"id", "title", "published", "last_modified", "summary", "content",
			"url", "tickers_primary", "tickers_secondary", "source_id",
		},
	}
)

// Tables lists every content table.
var Tables = []Table{NewsArticles, ScrapedArticles, SocialPosts, AggregatorItems}

// Record is a canonical, storable row.
type Record interface {
	RecordID() string
	RecordTable() Table
}

// NewsArticle is a news API article (source 1).
type NewsArticle struct {
	ID       string   `json:"id" db:"id"`
	Author   string   `json:"author" db:"author"`
	Created  string   `json:"created" db:"created"`
	Updated  string   `json:"updated" db:"updated"`
	Title    string   `json:"title" db:"title"`
	Teaser   *string  `json:"teaser" db:"teaser"`
	Body     string   `json:"body" db:"body"`
	URL      string   `json:"url" db:"url"`
	Stocks   *string  `json:"stocks" db:"stocks"`
	Channels *string  `json:"channels" db:"channels"`
	Tags     *string  `json:"tags" db:"tags"`
	SourceID SourceID `json:"source_id" db:"source_id"`
}

func (a *NewsArticle) RecordID() string   { return a.ID }
func (a *NewsArticle) RecordTable() Table { return NewsArticles }

// ScrapedArticle is a page scraped from the news site (source 2). Its id is
// derived from the URL.
type ScrapedArticle struct {
	ID       string   `json:"id" db:"id"`
	Title    string   `json:"title" db:"title"`
	Datetime string   `json:"datetime" db:"datetime"`
	Body     *string  `json:"body" db:"body"`
	URL      string   `json:"url" db:"url"`
	SourceID SourceID `json:"source_id" db:"source_id"`
}

func (a *ScrapedArticle) RecordID() string   { return a.ID }
func (a *ScrapedArticle) RecordTable() Table { return ScrapedArticles }

// SocialPost is a discussion post (source 3).
type SocialPost struct {
	ID          string   `json:"id" db:"id"`
	Subreddit   string   `json:"subreddit" db:"subreddit"`
	Created     string   `json:"created" db:"created"`
	Title       string   `json:"title" db:"title"`
	Selftext    *string  `json:"selftext" db:"selftext"`
	URL         string   `json:"url" db:"url"`
	Score       *int64   `json:"score" db:"score"`
	NumComments *int64   `json:"num_comments" db:"num_comments"`
	Ups         *int64   `json:"ups" db:"ups"`
	Author      string   `json:"author" db:"author"`
	SourceID    SourceID `json:"source_id" db:"source_id"`
}

func (p *SocialPost) RecordID() string   { return p.ID }
func (p *SocialPost) RecordTable() Table { return SocialPosts }

// AggregatorItem is a news item or article from the aggregator API
// (sources 4 and 5 share the table).
type AggregatorItem struct {
	ID               string   `json:"id" db:"id"`
	Title            string   `json:"title" db:"title"`
	Published        string   `json:"published" db:"published"`
	LastModified     *string  `json:"last_modified" db:"last_modified"`
	Summary          *string  `json:"summary" db:"summary"`
	Content          string   `json:"content" db:"content"`
	URL              *string  `json:"url" db:"url"`
	TickersPrimary   *string  `json:"tickers_primary" db:"tickers_primary"`
	TickersSecondary *string  `json:"tickers_secondary" db:"tickers_secondary"`
	SourceID         SourceID `json:"source_id" db:"source_id"`
}

func (i *AggregatorItem) RecordID() string   { return i.ID }
func (i *AggregatorItem) RecordTable() Table { return AggregatorItems }
