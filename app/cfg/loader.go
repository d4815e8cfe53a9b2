package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./toonfeed.db" description:"Path to the SQLite database file"`

	// Application configuration
	FeedsFile        string `long:"feeds-file" env:"FEEDS_FILE" default:"./feeds.yml" description:"YAML file listing the feed sources"`
	Port             string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	CronSecret       string `long:"cron-secret" env:"CRON_SECRET" description:"Shared secret required to trigger feed ingestion"`
	Timezone         string `long:"timezone" env:"APP_TIMEZONE" default:"America/Los_Angeles" description:"Reference timezone for the 'today' window"`
	FetchConcurrency int    `long:"fetch-concurrency" env:"FETCH_CONCURRENCY" default:"6" description:"Maximum concurrent feed fetches per ingestion cycle"`
	FetchTimeout     int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"5" description:"Per-feed fetch timeout in seconds"`
	MaxItemsPerFeed  int    `long:"max-items-per-feed" env:"MAX_ITEMS_PER_FEED" default:"3" description:"Maximum items kept from each feed per cycle"`

	// Image generation configuration
	GenerationAPIKey  string `long:"generation-api-key" env:"GENERATION_API_KEY" description:"API key for the upstream image generation service"`
	GenerationModel   string `long:"generation-model" env:"GENERATION_MODEL" default:"gemini-2.5-flash-image" description:"Upstream image generation model name"`
	GenerationBaseURL string `long:"generation-base-url" env:"GENERATION_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta" description:"Base URL of the image generation API"`
	GenerationRetries int    `long:"generation-retries" env:"GENERATION_RETRIES" default:"3" description:"Maximum attempts per image generation call"`

	// Rate limiting
	RateLimitMax           int `long:"rate-limit-max" env:"RATE_LIMIT_MAX" default:"10" description:"Maximum generation requests per client within the window"`
	RateLimitWindowMinutes int `long:"rate-limit-window" env:"RATE_LIMIT_WINDOW_MINUTES" default:"5" description:"Sliding rate limit window in minutes"`

	// Application metadata
	UserAgent           string `long:"user-agent" env:"USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36" description:"User agent string for feed requests"`
	AllowStaticFallback bool   `long:"allow-static-fallback" env:"ALLOW_STATIC_FALLBACK" description:"Serve the static seed headlines when no items were fetched today"`
	FeedDump            bool   `long:"feed-dump" env:"FEED_DUMP" description:"Save raw feed documents to a temp file when parsing yields nothing"`
	Debug               bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:                 raw.DBPath,
		FeedsFile:              raw.FeedsFile,
		Port:                   raw.Port,
		CronSecret:             raw.CronSecret,
		Timezone:               raw.Timezone,
		FetchConcurrency:       raw.FetchConcurrency,
		FetchTimeout:           raw.FetchTimeout,
		MaxItemsPerFeed:        raw.MaxItemsPerFeed,
		GenerationAPIKey:       raw.GenerationAPIKey,
		GenerationModel:        raw.GenerationModel,
		GenerationBaseURL:      raw.GenerationBaseURL,
		GenerationRetries:      raw.GenerationRetries,
		RateLimitMax:           raw.RateLimitMax,
		RateLimitWindowMinutes: raw.RateLimitWindowMinutes,
		UserAgent:              raw.UserAgent,
		AllowStaticFallback:    raw.AllowStaticFallback,
		FeedDump:               raw.FeedDump,
		Debug:                  raw.Debug,
		Version:                GetVersion(),
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Location resolves the configured reference timezone. The timezone is
// validated during Load, so a failure here falls back to UTC.
func (c *Cfg) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
