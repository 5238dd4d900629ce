// Package config loads the three configuration surfaces (pipeline, feed
// sources, topics) and applies recognized environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the pipeline configuration.
type Config struct {
	DBPath    string    `mapstructure:"db_path"`
	Timezone  string    `mapstructure:"timezone"`
	Language  string    `mapstructure:"language"`
	Pipeline  Pipeline  `mapstructure:"pipeline"`
	HTTP      HTTP      `mapstructure:"http"`
	Models    Models    `mapstructure:"models"`
	Browser   Browser   `mapstructure:"browser"`
	Retention Retention `mapstructure:"retention"`
}

// Pipeline holds filtering and worker settings.
type Pipeline struct {
	Filtering Filtering `mapstructure:"filtering"`
	Workers   int       `mapstructure:"workers"`
}

// Filtering holds the selection-gate knobs.
type Filtering struct {
	ConfidenceThreshold  float64 `mapstructure:"confidence_threshold"`
	MaxArticlesToProcess int     `mapstructure:"max_articles_to_process"`
}

// HTTP holds fetcher settings shared by the collector and extractor.
type HTTP struct {
	UserAgent         string  `mapstructure:"user_agent"`
	RequestTimeoutSec int     `mapstructure:"request_timeout_sec"`
	CrawlDelaySec     float64 `mapstructure:"crawl_delay_sec"`
	AcceptLanguage    string  `mapstructure:"accept_language"`
	RespectRobots     bool    `mapstructure:"respect_robots"`
	MaxItemsPerFeed   int     `mapstructure:"max_items_per_feed"`
	SkipGNewsRedirect bool    `mapstructure:"skip_gnews_redirects"`
}

// Models names the oracle models per tier.
type Models struct {
	Nano     string `mapstructure:"nano"`
	Mini     string `mapstructure:"mini"`
	Analysis string `mapstructure:"analysis"`
}

// Browser holds the headless-browser fallback settings. An empty endpoint
// disables the fallback.
type Browser struct {
	Endpoint        string `mapstructure:"endpoint"`
	NavigateTimeout int    `mapstructure:"navigate_timeout_sec"`
	RecycleEvery    int    `mapstructure:"recycle_every"`
}

// Retention holds cleanup windows in days.
type Retention struct {
	SignatureDays int `mapstructure:"signature_days"`
	StepStateDays int `mapstructure:"step_state_days"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DBPath:   "riskradar.db",
		Timezone: "Europe/Zurich",
		Language: "de",
		Pipeline: Pipeline{
			Filtering: Filtering{
				ConfidenceThreshold:  0.70,
				MaxArticlesToProcess: 35,
			},
			Workers: 4,
		},
		HTTP: HTTP{
			UserAgent:         "riskradar/1.0 (+https://riskradar.local)",
			RequestTimeoutSec: 12,
			CrawlDelaySec:     0,
			AcceptLanguage:    "de-CH,de;q=0.9,en;q=0.7",
			RespectRobots:     false,
			MaxItemsPerFeed:   100,
			SkipGNewsRedirect: true,
		},
		Models: Models{
			Nano:     "gemini-flash-lite-latest",
			Mini:     "gemini-flash-latest",
			Analysis: "gemini-pro-latest",
		},
		Browser: Browser{
			NavigateTimeout: 60,
			RecycleEvery:    3,
		},
		Retention: Retention{
			SignatureDays: 7,
			StepStateDays: 7,
		},
	}
}

// Load reads the pipeline configuration file (if any), merges defaults and
// applies environment overrides. A missing file is not an error; an invalid
// file is fatal before the run starts.
func Load(path string) (*Config, error) {
	// Best effort: pick up a local .env before reading the environment.
	_ = godotenv.Load()

	cfg := Default()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if !configMissing(path, err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configMissing reports whether the read failure just means "no config
// file", which is fine when no explicit path was requested.
func configMissing(path string, err error) bool {
	if path == "" {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		return notFound
	}
	_, statErr := os.Stat(path)
	return os.IsNotExist(statErr)
}

// applyEnv applies the recognized environment variables on top of file and
// default values.
func (c *Config) applyEnv() {
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("MODEL_NANO"); v != "" {
		c.Models.Nano = v
	}
	if v := os.Getenv("MODEL_MINI"); v != "" {
		c.Models.Mini = v
	}
	if v := os.Getenv("MODEL_ANALYSIS"); v != "" {
		c.Models.Analysis = v
	}
	if v := os.Getenv("CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Pipeline.Filtering.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("MAX_ITEMS_PER_FEED"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTP.MaxItemsPerFeed = n
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTP.RequestTimeoutSec = n
		}
	}
	if v := os.Getenv("CRAWL_DELAY_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.HTTP.CrawlDelaySec = f
		}
	}
	if v := os.Getenv("USER_AGENT"); v != "" {
		c.HTTP.UserAgent = v
	}
	if v := os.Getenv("PIPELINE_LANGUAGE"); v != "" {
		c.Language = v
	}
	if v := os.Getenv("SKIP_GNEWS_REDIRECTS"); v != "" {
		c.HTTP.SkipGNewsRedirect = strings.EqualFold(v, "true")
	}
}

// Validate rejects configurations that cannot start a run.
func (c *Config) Validate() error {
	if c.Pipeline.Filtering.ConfidenceThreshold < 0 || c.Pipeline.Filtering.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold %f outside [0,1]", c.Pipeline.Filtering.ConfidenceThreshold)
	}
	if c.Pipeline.Filtering.MaxArticlesToProcess <= 0 {
		return fmt.Errorf("max_articles_to_process must be positive")
	}
	if c.Language != "de" && c.Language != "en" {
		return fmt.Errorf("language must be de or en, got %q", c.Language)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 1
	}
	return nil
}

// Location resolves the configured timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RequestTimeout returns the HTTP timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.RequestTimeoutSec) * time.Second
}
