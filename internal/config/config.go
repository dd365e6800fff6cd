package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/mcqweb/goosealerts/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Poller       PollerConfig        `mapstructure:"poller"`
	Cache        CacheConfig         `mapstructure:"cache"`
	Alerting     AlertingConfig      `mapstructure:"alerting"`
	Telegram     TelegramConfig      `mapstructure:"telegram"`
	Storage      StorageConfig       `mapstructure:"storage"`
	Logging      LoggingConfig       `mapstructure:"logging"`
	Sources      []SourceConfig      `mapstructure:"sources"`
	Destinations []DestinationConfig `mapstructure:"destinations"`
}

// SourceConfig holds one quote feed endpoint
type SourceConfig struct {
	ID      string `mapstructure:"id"`
	BaseURL string `mapstructure:"base_url"`
}

// PollerConfig holds poll loop and fetch fan-out configuration
type PollerConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	FreshnessWindow    time.Duration `mapstructure:"freshness_window"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	MaxConcurrentFetch int           `mapstructure:"max_concurrent_fetches"`
}

// CacheConfig holds fetch result cache configuration
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// AlertingConfig holds alert record retention configuration
type AlertingConfig struct {
	PurgeAfter time.Duration `mapstructure:"purge_after"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	OpsChatID      string        `mapstructure:"ops_chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DestinationConfig holds one notification destination with its
// qualification thresholds and dedup policy
type DestinationConfig struct {
	ID                     string        `mapstructure:"id"`
	ChatID                 string        `mapstructure:"chat_id"`
	MinLayOdds             float64       `mapstructure:"min_lay_odds"`
	MinBackOdds            float64       `mapstructure:"min_back_odds"`
	MinRating              float64       `mapstructure:"min_rating"`
	MinLiquidity           float64       `mapstructure:"min_liquidity"`
	MaxMinutesToStart      int           `mapstructure:"max_minutes_to_start"`
	AllowReAlert           bool          `mapstructure:"allow_re_alert"`
	ReAlertRatingDelta     float64       `mapstructure:"re_alert_rating_delta"`
	SummaryMode            bool          `mapstructure:"summary_mode"`
	SummaryRefreshInterval time.Duration `mapstructure:"summary_refresh_interval"`
}

// ToModel converts the raw config entry into the domain destination.
func (d DestinationConfig) ToModel() models.Destination {
	return models.Destination{
		ID:                     d.ID,
		ChatID:                 d.ChatID,
		MinLayOdds:             d.MinLayOdds,
		MinBackOdds:            d.MinBackOdds,
		MinRating:              d.MinRating,
		MinLiquidity:           d.MinLiquidity,
		MaxMinutesToStart:      d.MaxMinutesToStart,
		AllowReAlert:           d.AllowReAlert,
		ReAlertRatingDelta:     d.ReAlertRatingDelta,
		SummaryMode:            d.SummaryMode,
		SummaryRefreshInterval: d.SummaryRefreshInterval,
	}
}

// DestinationModels converts every configured destination.
func (c *Config) DestinationModels() []models.Destination {
	out := make([]models.Destination, 0, len(c.Destinations))
	for _, d := range c.Destinations {
		out = append(out, d.ToModel())
	}
	return out
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("GOOSEALERTS")
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Poller defaults
	v.SetDefault("poller.poll_interval", "1m")
	v.SetDefault("poller.freshness_window", "2m")
	v.SetDefault("poller.fetch_timeout", "30s")
	v.SetDefault("poller.max_concurrent_fetches", 8)

	// Cache defaults
	v.SetDefault("cache.ttl", "30s")

	// Alerting defaults
	v.SetDefault("alerting.purge_after", "12h")

	// Telegram defaults
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/goosealerts.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Poller config
	if c.Poller.PollInterval < 10*time.Second {
		return fmt.Errorf("poller.poll_interval must be at least 10 seconds")
	}
	if c.Poller.FreshnessWindow <= 0 {
		return fmt.Errorf("poller.freshness_window must be positive")
	}
	if c.Poller.FetchTimeout <= 0 {
		return fmt.Errorf("poller.fetch_timeout must be positive")
	}
	if c.Poller.MaxConcurrentFetch < 1 {
		return fmt.Errorf("poller.max_concurrent_fetches must be at least 1")
	}

	// Validate Cache config
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	// Validate Alerting config
	if c.Alerting.PurgeAfter < time.Hour {
		return fmt.Errorf("alerting.purge_after must be at least 1 hour")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.OpsChatID == "" {
			return fmt.Errorf("telegram.ops_chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Validate Sources
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}
	seenSources := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if s.BaseURL == "" {
			return fmt.Errorf("sources[%d]: base_url is required", i)
		}
		if seenSources[s.ID] {
			return fmt.Errorf("sources[%d]: duplicate source ID %q", i, s.ID)
		}
		seenSources[s.ID] = true
	}

	// Validate Destinations
	if len(c.Destinations) == 0 {
		return fmt.Errorf("at least one destination must be configured")
	}
	seen := make(map[string]bool, len(c.Destinations))
	for i, d := range c.Destinations {
		m := d.ToModel()
		if err := m.Validate(); err != nil {
			return fmt.Errorf("destinations[%d]: %w", i, err)
		}
		if seen[d.ID] {
			return fmt.Errorf("destinations[%d]: duplicate destination ID %q", i, d.ID)
		}
		seen[d.ID] = true
	}

	return nil
}
