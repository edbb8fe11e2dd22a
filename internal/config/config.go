package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the job.
type Config struct {
	// FeedURL is the RSS or Atom feed whose newest item is published.
	FeedURL string `yaml:"feed_url"`

	// Handle and AppPassword identify the posting account.
	Handle      string `yaml:"handle"`
	AppPassword string `yaml:"app_password"`

	// PDS is the base URL of the account's personal data server.
	PDS string `yaml:"pds"`

	State   StateConfig   `yaml:"state"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Log     LogConfig     `yaml:"log"`
	Confirm ConfirmConfig `yaml:"confirm"`
}

// StateConfig selects where published links are remembered.
type StateConfig struct {
	// Driver is json or sqlite.
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// FetchConfig tunes outbound HTTP for the feed, pages and images.
type FetchConfig struct {
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	BrowserTLS bool          `yaml:"browser_tls"`
	MaxBytes   int64         `yaml:"max_bytes"`
}

// LogConfig controls the operational and scheduler logs.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`

	// CronFile receives one line per invocation.
	CronFile string `yaml:"cron_file"`
}

// ConfirmConfig controls waiting for the new post on the firehose.
type ConfirmConfig struct {
	JetstreamURL string `yaml:"jetstream_url"`

	// Timeout of zero disables confirmation.
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		PDS: "https://bsky.social",
		State: StateConfig{
			Driver: "json",
			Path:   "published_links.json",
		},
		Fetch: FetchConfig{
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Confirm: ConfirmConfig{
			JetstreamURL: "wss://jetstream1.us-east.bsky.network/subscribe",
		},
	}
}

// Load reads configuration from the YAML file at path, if any, and then
// from environment variables. Fields absent from both keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.FeedURL = envOrDefault("RSS2BSKY_FEED_URL", cfg.FeedURL)
	cfg.Handle = envOrDefault("BLUESKY_HANDLE", cfg.Handle)
	cfg.AppPassword = envOrDefault("BLUESKY_APP_PASSWORD", cfg.AppPassword)
	cfg.PDS = envOrDefault("BLUESKY_PDS", cfg.PDS)
	cfg.State.Path = envOrDefault("RSS2BSKY_STATE_FILE", cfg.State.Path)
	cfg.Confirm.JetstreamURL = envOrDefault("RSS2BSKY_JETSTREAM_URL", cfg.Confirm.JetstreamURL)
}

// Validate reports the first missing or invalid setting.
func (c Config) Validate() error {
	if c.FeedURL == "" {
		return fmt.Errorf("feed_url is required (or set RSS2BSKY_FEED_URL)")
	}
	if c.Handle == "" || c.AppPassword == "" {
		return fmt.Errorf("handle and app_password are required (or set BLUESKY_HANDLE and BLUESKY_APP_PASSWORD)")
	}
	switch c.State.Driver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unknown state driver %q", c.State.Driver)
	}
	if c.State.Path == "" {
		return fmt.Errorf("state path is required")
	}
	if c.Confirm.Timeout < 0 {
		return fmt.Errorf("confirm timeout must not be negative")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
