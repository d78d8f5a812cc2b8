// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	DB         DBConfig         `mapstructure:"db"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Comparison ComparisonConfig `mapstructure:"comparison"`
	Scorer     ScorerConfig     `mapstructure:"scorer"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifeMins int    `mapstructure:"max_conn_life_minutes"`
}

// CrawlerConfig governs the platform fetchers and batch sizing.
type CrawlerConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxPerPlatform int    `mapstructure:"max_per_platform"`
}

// HeadlessConfig configures the headless rendering fetcher.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// RetrievalConfig tunes candidate retrieval.
type RetrievalConfig struct {
	MinTokenLen   int `mapstructure:"min_token_len"`
	MaxTerms      int `mapstructure:"max_terms"`
	CorpusCap     int `mapstructure:"corpus_cap"`
	MinViable     int `mapstructure:"min_viable"`
	LiveCap       int `mapstructure:"live_cap"`
	MaxCandidates int `mapstructure:"max_candidates"`
}

// ComparisonConfig tunes the matching pipeline.
type ComparisonConfig struct {
	AcceptThreshold  float64 `mapstructure:"accept_threshold"`
	FallbackFloor    float64 `mapstructure:"fallback_floor"`
	ScorerCandidates int     `mapstructure:"scorer_candidates"`
}

// ScorerConfig configures the AI scorer client.
type ScorerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StorageConfig sets destination and paths for batch snapshot blobs.
type StorageConfig struct {
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for batch-committed notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEHOUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_life_minutes", 30)
	v.SetDefault("crawler.user_agent", "pricehound-bot/0.1")
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.max_per_platform", 50)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("retrieval.min_token_len", 2)
	v.SetDefault("retrieval.max_terms", 3)
	v.SetDefault("retrieval.corpus_cap", 50)
	v.SetDefault("retrieval.min_viable", 5)
	v.SetDefault("retrieval.live_cap", 30)
	v.SetDefault("retrieval.max_candidates", 150)
	v.SetDefault("comparison.accept_threshold", 0.70)
	v.SetDefault("comparison.fallback_floor", 0.4)
	v.SetDefault("comparison.scorer_candidates", 80)
	v.SetDefault("scorer.enabled", false)
	v.SetDefault("scorer.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("scorer.model", "gemini-2.0-flash")
	v.SetDefault("scorer.timeout_seconds", 60)
	v.SetDefault("storage.prefix", "batches")
	v.SetDefault("storage.content_type", "application/json")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Comparison.AcceptThreshold <= 0 || c.Comparison.AcceptThreshold > 1 {
		return fmt.Errorf("comparison.accept_threshold must be in (0, 1]")
	}
	if c.Comparison.FallbackFloor < 0 || c.Comparison.FallbackFloor > 1 {
		return fmt.Errorf("comparison.fallback_floor must be in [0, 1]")
	}
	if c.Scorer.Enabled && c.Scorer.APIKey == "" {
		return fmt.Errorf("scorer.api_key must be set when scorer is enabled")
	}
	if c.Storage.GCSBucket != "" && c.Storage.LocalDir != "" {
		return fmt.Errorf("storage.gcs_bucket and storage.local_dir are mutually exclusive")
	}
	return nil
}

// CrawlTimeout converts the crawler timeout config to a duration.
func (c Config) CrawlTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}
