package config

import (
	"os"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	content := `
poller:
  poll_interval: 1m
  freshness_window: 2m
  fetch_timeout: 30s
  max_concurrent_fetches: 4

cache:
  ttl: 30s

alerting:
  purge_after: 12h

telegram:
  bot_token: "test_token"
  ops_chat_id: "-100"
  enabled: true

storage:
  db_path: "./data/test.db"

logging:
  level: "info"
  format: "text"

sources:
  - id: "bookieA"
    base_url: "http://feed-a.internal"
  - id: "exchangeB"
    base_url: "http://feed-b.internal"

destinations:
  - id: "vip"
    chat_id: "-100200300"
    min_lay_odds: 2.0
    min_back_odds: 1.5
    min_rating: 100
    min_liquidity: 20
    max_minutes_to_start: 90
    allow_re_alert: true
    re_alert_rating_delta: 5
  - id: "digest"
    chat_id: "-100200301"
    min_rating: 95
    max_minutes_to_start: 120
    summary_mode: true
    summary_refresh_interval: 1h
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Poller.PollInterval != time.Minute {
		t.Errorf("unexpected poll interval: %v", cfg.Poller.PollInterval)
	}
	if cfg.Poller.MaxConcurrentFetch != 4 {
		t.Errorf("unexpected fetch concurrency: %d", cfg.Poller.MaxConcurrentFetch)
	}
	if cfg.Alerting.PurgeAfter != 12*time.Hour {
		t.Errorf("unexpected purge_after: %v", cfg.Alerting.PurgeAfter)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0].ID != "bookieA" {
		t.Errorf("sources misparsed: %+v", cfg.Sources)
	}
	if len(cfg.Destinations) != 2 {
		t.Fatalf("expected 2 destinations, got %d", len(cfg.Destinations))
	}
	if cfg.Destinations[0].ReAlertRatingDelta != 5 {
		t.Errorf("unexpected re-alert delta: %f", cfg.Destinations[0].ReAlertRatingDelta)
	}
	if !cfg.Destinations[1].SummaryMode || cfg.Destinations[1].SummaryRefreshInterval != time.Hour {
		t.Errorf("summary destination misparsed: %+v", cfg.Destinations[1])
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	dests := cfg.DestinationModels()
	if len(dests) != 2 || dests[0].ID != "vip" || dests[1].ChatID != "-100200301" {
		t.Errorf("DestinationModels mismatch: %+v", dests)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `
sources:
  - id: "bookieA"
    base_url: "http://feed-a.internal"

destinations:
  - id: "vip"
    chat_id: "-100200300"
    max_minutes_to_start: 90
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Poller.PollInterval != time.Minute {
		t.Errorf("default poll interval: %v", cfg.Poller.PollInterval)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("default cache ttl: %v", cfg.Cache.TTL)
	}
	if cfg.Alerting.PurgeAfter != 12*time.Hour {
		t.Errorf("default purge_after: %v", cfg.Alerting.PurgeAfter)
	}
	if cfg.Telegram.MaxRetries != 3 || cfg.Telegram.RetryDelayBase != time.Second {
		t.Errorf("default telegram retry settings: %+v", cfg.Telegram)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("default logging: %+v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func validBase() *Config {
	return &Config{
		Poller: PollerConfig{
			PollInterval:       time.Minute,
			FreshnessWindow:    2 * time.Minute,
			FetchTimeout:       30 * time.Second,
			MaxConcurrentFetch: 4,
		},
		Cache:    CacheConfig{TTL: 30 * time.Second},
		Alerting: AlertingConfig{PurgeAfter: 12 * time.Hour},
		Storage:  StorageConfig{DBPath: "./data/test.db"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Sources: []SourceConfig{
			{ID: "bookieA", BaseURL: "http://feed-a.internal"},
		},
		Destinations: []DestinationConfig{
			{ID: "vip", ChatID: "-100", MaxMinutesToStart: 90},
		},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "poll interval too short",
			mutate:  func(c *Config) { c.Poller.PollInterval = time.Second },
			wantErr: true,
		},
		{
			name:    "missing telegram token when enabled",
			mutate:  func(c *Config) { c.Telegram.Enabled = true; c.Telegram.OpsChatID = "-100" },
			wantErr: true,
		},
		{
			name:    "no destinations",
			mutate:  func(c *Config) { c.Destinations = nil },
			wantErr: true,
		},
		{
			name:    "no sources",
			mutate:  func(c *Config) { c.Sources = nil },
			wantErr: true,
		},
		{
			name: "source missing base_url",
			mutate: func(c *Config) {
				c.Sources = []SourceConfig{{ID: "bookieA"}}
			},
			wantErr: true,
		},
		{
			name: "duplicate destination IDs",
			mutate: func(c *Config) {
				c.Destinations = append(c.Destinations, c.Destinations[0])
			},
			wantErr: true,
		},
		{
			name: "re-alert without delta",
			mutate: func(c *Config) {
				c.Destinations[0].AllowReAlert = true
				c.Destinations[0].ReAlertRatingDelta = 0
			},
			wantErr: true,
		},
		{
			name: "summary mode without interval",
			mutate: func(c *Config) {
				c.Destinations[0].SummaryMode = true
				c.Destinations[0].SummaryRefreshInterval = 0
			},
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
