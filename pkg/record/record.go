package record

import "strings"

// Raw is one undecoded payload as it arrived from a collector or a JSONL file.
type Raw map[string]any

// SourceID identifies a row of the sources dimension table.
type SourceID int

const (
	SourceBenzinga            SourceID = 1
	SourceNasdaq              SourceID = 2
	SourceReddit              SourceID = 3
	SourceSeekingAlphaNews    SourceID = 4
	SourceSeekingAlphaArticle SourceID = 5
)

// Source is a registry row.
type Source struct {
	ID       SourceID `json:"id" db:"id"`
	Name     string   `json:"name" db:"name"`
	Category string   `json:"category" db:"category"`
}

// Registry is the static seed of the sources table.
var Registry = []Source{
	{ID: SourceBenzinga, Name: "benzinga", Category: "news_api"},
	{ID: SourceNasdaq, Name: "nasdaq", Category: "scraped_news"},
	{ID: SourceReddit, Name: "reddit", Category: "social"},
	{ID: SourceSeekingAlphaNews, Name: "seeking_alpha_news", Category: "seeking_alpha"},
	{ID: SourceSeekingAlphaArticle, Name: "seeking_alpha_article", Category: "seeking_alpha"},
}

// Lookup finds a registry entry by name. Hyphens and case are ignored so
// "Seeking-Alpha-News" resolves too.
func Lookup(name string) (Source, bool) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for _, s := range Registry {
		if s.Name == key {
			return s, true
		}
	}
	return Source{}, false
}

// ByID finds a registry entry by id.
func ByID(id SourceID) (Source, bool) {
	for _, s := range Registry {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

// Names returns the registry names in id order.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for _, s := range Registry {
		names = append(names, s.Name)
	}
	return names
}

func (id SourceID) String() string {
	if s, ok := ByID(id); ok {
		return s.Name
	}
	return "unknown"
}

// Table returns the content table records of this source land in.
func (id SourceID) Table() (Table, bool) {
	switch id {
	case SourceBenzinga:
		return NewsArticles, true
	case SourceNasdaq:
		return ScrapedArticles, true
	case SourceReddit:
		return SocialPosts, true
	case SourceSeekingAlphaNews, SourceSeekingAlphaArticle:
		return AggregatorItems, true
	}
	return Table{}, false
}
