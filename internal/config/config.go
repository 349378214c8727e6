package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"PriceHistory/internal/calendar"
	"PriceHistory/internal/collector"
	"PriceHistory/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Provider struct {
		BaseURL   string        `yaml:"base_url"`
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
		UserAgent string        `yaml:"user_agent"`
	} `yaml:"provider"`
	Database struct {
		Driver      string `yaml:"driver"`
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	Update struct {
		Periods      string        `yaml:"periods"`
		Retry        int           `yaml:"retry"`
		RoundDelay   time.Duration `yaml:"round_delay"`
		AttemptDelay time.Duration `yaml:"attempt_delay"`
		LastDate     string        `yaml:"last_date"`
	} `yaml:"update"`
	Schedule struct {
		DailyCron   string `yaml:"daily_cron"`
		WeeklyCron  string `yaml:"weekly_cron"`
		MonthlyCron string `yaml:"monthly_cron"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Proxy    string `yaml:"proxy"`
	LogLevel string `yaml:"log_level"`
}

// DefaultPath is used when neither a flag nor CONFIG_PATH names a file.
const DefaultPath = "config.yaml"

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. A missing file is not an error. Numeric
// keys present in the file keep their value even when zero.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("PRICEHIST_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	cfg.fillEmpty()
	return cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	c := &Config{}
	c.Provider.Timeout = collector.DefaultFetchTimeout
	c.Update.Retry = 6
	c.Update.RoundDelay = 2 * time.Minute
	c.Update.AttemptDelay = 3 * time.Second
	c.fillEmpty()
	return c
}

// PathFromEnv returns CONFIG_PATH or DefaultPath.
func PathFromEnv() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// fillEmpty restores defaults for string settings left blank.
func (c *Config) fillEmpty() {
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = collector.DefaultYahooURL
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/pricehist.db"
	}
	if c.Update.Periods == "" {
		c.Update.Periods = "mwd"
	}
	if c.Update.LastDate == "" {
		c.Update.LastDate = "TD"
	}
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 0 22 * * 1-5"
	}
	if c.Schedule.WeeklyCron == "" {
		c.Schedule.WeeklyCron = "0 0 8 * * 1"
	}
	if c.Schedule.MonthlyCron == "" {
		c.Schedule.MonthlyCron = "0 0 9 1 * *"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Provider.Timeout < 0 {
		return fmt.Errorf("provider.timeout must not be negative")
	}
	if c.Provider.RateLimit < 0 {
		return fmt.Errorf("provider.rate_limit must not be negative")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required")
		}
	case "postgres", "postgresql":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("database.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if _, err := model.ParseGranularities(c.Update.Periods); err != nil {
		return fmt.Errorf("update.periods: %w", err)
	}
	if c.Update.Retry < 0 {
		return fmt.Errorf("update.retry must not be negative")
	}
	if c.Update.RoundDelay < 0 || c.Update.AttemptDelay < 0 {
		return fmt.Errorf("update delays must not be negative")
	}
	if _, err := calendar.ParseAsOf(c.Update.LastDate, time.Now()); err != nil {
		return fmt.Errorf("update.last_date: %w", err)
	}
	return nil
}

// TelegramEnabled reports whether run summaries should be sent.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
