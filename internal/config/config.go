package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingDatabasePath = errors.New("database.path is required")
	ErrInvalidLogLevel     = errors.New("log.level must be debug, info, warn or error")
	ErrInvalidBatchSize    = errors.New("ingest.batch_size must be non-negative")
	ErrInvalidDatePolicy   = errors.New("ingest.date_policy must be skip or abort")
	ErrInvalidWritePolicy  = errors.New("ingest.write_policy must be atomic or isolated")
	ErrInvalidInterval     = errors.New("schedule.interval is not a duration")
	ErrInvalidConcurrency  = errors.New("schedule.concurrency must be non-negative")
	ErrMissingCredentials  = errors.New("enabled source is missing credentials")
	ErrMissingTelegramChat = errors.New("notify.telegram.chat_id is required")
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Sources  SourcesConfig  `yaml:"sources"`
	Notify   NotifyConfig   `yaml:"notify"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level string `yaml:"level"`
}

// IngestConfig holds the normalization and write policies. Timestamps are
// always stored in US Eastern time, so there is no zone setting.
type IngestConfig struct {
	BatchSize          int    `yaml:"batch_size"`
	DatePolicy         string `yaml:"date_policy"`
	WritePolicy        string `yaml:"write_policy"`
	AllowDegenerateIDs bool   `yaml:"allow_degenerate_ids"`
}

// ScheduleConfig configures the collection loop. An empty interval means a
// single pass; a zero concurrency runs every collector at once.
type ScheduleConfig struct {
	Interval    string `yaml:"interval"`
	Concurrency int    `yaml:"concurrency"`
}

// ParseInterval returns the collection interval, zero for a single pass.
func (s ScheduleConfig) ParseInterval() (time.Duration, error) {
	if s.Interval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, s.Interval)
	}
	return d, nil
}

// SourcesConfig holds configuration for all collectors.
type SourcesConfig struct {
	Benzinga     BenzingaConfig     `yaml:"benzinga"`
	Nasdaq       NasdaqConfig       `yaml:"nasdaq"`
	Reddit       RedditConfig       `yaml:"reddit"`
	SeekingAlpha SeekingAlphaConfig `yaml:"seeking_alpha"`
}

// BenzingaConfig for the news API collector.
type BenzingaConfig struct {
	Enabled      bool   `yaml:"enabled"`
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	PageSize     int    `yaml:"page_size"`
	MaxPages     int    `yaml:"max_pages"`
	LookbackDays int    `yaml:"lookback_days"`
}

// NasdaqConfig for the scraping collector.
type NasdaqConfig struct {
	Enabled     bool            `yaml:"enabled"`
	ListingURLs []string        `yaml:"listing_urls"`
	Feeds       []string        `yaml:"feeds"`
	MaxArticles int             `yaml:"max_articles"`
	Selectors   NasdaqSelectors `yaml:"selectors"`
}

// NasdaqSelectors are CSS selectors tried in order until one matches.
type NasdaqSelectors struct {
	Links []string `yaml:"links"`
	Title []string `yaml:"title"`
	Date  []string `yaml:"date"`
	Body  []string `yaml:"body"`
}

// RedditConfig for the Reddit collector.
type RedditConfig struct {
	Enabled      bool     `yaml:"enabled"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	UserAgent    string   `yaml:"user_agent"`
	Subreddits   []string `yaml:"subreddits"`
	Limit        int      `yaml:"limit"`
}

// SeekingAlphaConfig for the RapidAPI collectors (news and articles).
type SeekingAlphaConfig struct {
	Enabled      bool   `yaml:"enabled"`
	APIKey       string `yaml:"api_key"`
	Host         string `yaml:"host"`
	NewsSize     int    `yaml:"news_size"`
	ArticlesSize int    `yaml:"articles_size"`
}

// NotifyConfig configures run summary destinations.
type NotifyConfig struct {
	OnFailureOnly bool           `yaml:"on_failure_only"`
	Slack         SlackConfig    `yaml:"slack"`
	Discord       DiscordConfig  `yaml:"discord"`
	Webhook       WebhookConfig  `yaml:"webhook"`
	Telegram      TelegramConfig `yaml:"telegram"`
}

// SlackConfig for Slack webhook notifications.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook notifications.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook notifications.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// TelegramConfig for Telegram bot notifications.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./fingest.db"},
		Log:      LogConfig{Level: "info"},
		Ingest: IngestConfig{
			DatePolicy:  "skip",
			WritePolicy: "atomic",
		},
		Sources: SourcesConfig{
			Benzinga: BenzingaConfig{
				BaseURL:      "https://api.benzinga.com",
				PageSize:     100,
				MaxPages:     10,
				LookbackDays: 1,
			},
			Nasdaq: NasdaqConfig{
				ListingURLs: []string{"https://www.nasdaq.com/news-and-insights/markets"},
				Feeds:       []string{"https://www.nasdaq.com/feed/rssoutbound?category=Markets"},
				MaxArticles: 50,
				Selectors: NasdaqSelectors{
					Links: []string{"a.jupiter22-c-article-list__item_title_wrapper"},
					Title: []string{".jupiter22-c-hero-article__ > h1", "h1 > span", "h1"},
					Date: []string{
						"div.jupiter22-c-author-byline > p.jupiter22-c-author-byline__timestamp",
						"div.article-header__metadata > div.timestamp > time",
					},
					Body: []string{".body__content"},
				},
			},
			Reddit: RedditConfig{
				UserAgent: "fingest/1.0",
				Subreddits: []string{
					"stocks", "investing", "wallstreetbets", "options", "daytrading",
					"StockMarket", "pennystocks", "SwingTrading", "TechnicalAnalysis",
					"QuantitativeFinance", "algotrading", "RobinHood", "Finance",
					"DividendInvesting", "HighFrequencyTrading", "Economics", "EToro",
					"Forex", "Bogleheads",
				},
				Limit: 100,
			},
			SeekingAlpha: SeekingAlphaConfig{
				Host:         "seeking-alpha.p.rapidapi.com",
				NewsSize:     40,
				ArticlesSize: 20,
			},
		},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FINGEST_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("FINGEST_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("BENZINGA_API_KEY"); v != "" {
		cfg.Sources.Benzinga.APIKey = v
	}
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Sources.Reddit.ClientID = v
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Sources.Reddit.ClientSecret = v
	}
	if v := os.Getenv("REDDIT_USER_AGENT"); v != "" {
		cfg.Sources.Reddit.UserAgent = v
	}
	if v := os.Getenv("SEEKING_ALPHA_API_KEY"); v != "" {
		cfg.Sources.SeekingAlpha.APIKey = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notify.Slack.WebhookURL = v
		cfg.Notify.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Notify.Discord.WebhookURL = v
		cfg.Notify.Discord.Enabled = true
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.Telegram.Token = v
		cfg.Notify.Telegram.Enabled = true
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		var id int64
		if _, err := fmt.Sscan(v, &id); err == nil {
			cfg.Notify.Telegram.ChatID = id
		}
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return ErrMissingDatabasePath
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	if c.Ingest.BatchSize < 0 {
		return ErrInvalidBatchSize
	}
	switch c.Ingest.DatePolicy {
	case "", "skip", "abort":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDatePolicy, c.Ingest.DatePolicy)
	}
	switch c.Ingest.WritePolicy {
	case "", "atomic", "isolated":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidWritePolicy, c.Ingest.WritePolicy)
	}
	if _, err := c.Schedule.ParseInterval(); err != nil {
		return err
	}
	if c.Schedule.Concurrency < 0 {
		return ErrInvalidConcurrency
	}

	s := c.Sources
	if s.Benzinga.Enabled && s.Benzinga.APIKey == "" {
		return fmt.Errorf("%w: benzinga api_key", ErrMissingCredentials)
	}
	if s.Reddit.Enabled && (s.Reddit.ClientID == "" || s.Reddit.ClientSecret == "") {
		return fmt.Errorf("%w: reddit client_id/client_secret", ErrMissingCredentials)
	}
	if s.SeekingAlpha.Enabled && s.SeekingAlpha.APIKey == "" {
		return fmt.Errorf("%w: seeking_alpha api_key", ErrMissingCredentials)
	}
	if c.Notify.Telegram.Enabled && c.Notify.Telegram.ChatID == 0 {
		return ErrMissingTelegramChat
	}
	return nil
}
