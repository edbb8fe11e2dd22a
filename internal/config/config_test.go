package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rss2bsky.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RSS2BSKY_FEED_URL", "BLUESKY_HANDLE", "BLUESKY_APP_PASSWORD",
		"BLUESKY_PDS", "RSS2BSKY_STATE_FILE", "RSS2BSKY_JETSTREAM_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
	if cfg.State.Path != "published_links.json" || cfg.PDS != "https://bsky.social" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
feed_url: https://example.com/feed.xml
handle: me.bsky.social
app_password: from-file
state:
  driver: sqlite
  path: links.db
fetch:
  timeout: 5s
  browser_tls: true
log:
  level: debug
  cron_file: cron.log
confirm:
  timeout: 1m
`)
	t.Setenv("BLUESKY_APP_PASSWORD", "from-env")
	t.Setenv("BLUESKY_PDS", "https://pds.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.FeedURL != "https://example.com/feed.xml" || cfg.Handle != "me.bsky.social" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.AppPassword != "from-env" {
		t.Errorf("AppPassword = %q, env should win", cfg.AppPassword)
	}
	if cfg.PDS != "https://pds.example.com" {
		t.Errorf("PDS = %q", cfg.PDS)
	}
	if cfg.State.Driver != "sqlite" || cfg.State.Path != "links.db" {
		t.Errorf("State = %+v", cfg.State)
	}
	if cfg.Fetch.Timeout != 5*time.Second || !cfg.Fetch.BrowserTLS {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || cfg.Log.CronFile != "cron.log" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Confirm.Timeout != time.Minute || cfg.Confirm.JetstreamURL == "" {
		t.Errorf("Confirm = %+v", cfg.Confirm)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "feed_urll: typo\n")); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := Load(writeConfig(t, "fetch:\n  timeout: soon\n")); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.FeedURL = "https://example.com/feed.xml"
	valid.Handle = "me.bsky.social"
	valid.AppPassword = "secret"

	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no feed", func(c *Config) { c.FeedURL = "" }, "feed_url"},
		{"no handle", func(c *Config) { c.Handle = "" }, "handle"},
		{"no password", func(c *Config) { c.AppPassword = "" }, "app_password"},
		{"bad driver", func(c *Config) { c.State.Driver = "postgres" }, "state driver"},
		{"no path", func(c *Config) { c.State.Path = "" }, "state path"},
		{"negative confirm", func(c *Config) { c.Confirm.Timeout = -time.Second }, "confirm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}
