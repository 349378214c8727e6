package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PRICEHIST_DB_DRIVER", "SQLITE_PATH", "POSTGRES_DSN", "PROVIDER_BASE_URL",
		"HTTPS_PROXY", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "LOG_LEVEL", "CONFIG_PATH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "mwd", cfg.Update.Periods)
	assert.Equal(t, 6, cfg.Update.Retry)
	assert.Equal(t, 2*time.Minute, cfg.Update.RoundDelay)
	assert.Equal(t, 3*time.Second, cfg.Update.AttemptDelay)
	assert.Equal(t, 10*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, "TD", cfg.Update.LastDate)
	assert.False(t, cfg.TelegramEnabled())
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider:
  base_url: http://quotes.local/table.csv
  timeout: 5s
  rate_limit: 2
database:
  driver: sqlite
  sqlite_path: /tmp/a.db
update:
  periods: d
  retry: 3
  round_delay: 30s
telegram:
  bot_token: file-token
  chat_id: "42"
`), 0o644))

	t.Setenv("SQLITE_PATH", "/tmp/b.db")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://quotes.local/table.csv", cfg.Provider.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 2.0, cfg.Provider.RateLimit)
	assert.Equal(t, "/tmp/b.db", cfg.Database.SQLitePath)
	assert.Equal(t, "d", cfg.Update.Periods)
	assert.Equal(t, 3, cfg.Update.Retry)
	assert.Equal(t, 30*time.Second, cfg.Update.RoundDelay)
	assert.Equal(t, "env-token", cfg.Telegram.BotToken)
	assert.True(t, cfg.TelegramEnabled())
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("update: [unclosed"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Database.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "not supported")

	cfg = base()
	cfg.Database.Driver = "postgres"
	assert.ErrorContains(t, cfg.Validate(), "postgres_dsn")
	cfg.Database.PostgresDSN = "postgres://localhost/pricehist"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Update.Periods = "dx"
	assert.ErrorContains(t, cfg.Validate(), "update.periods")

	cfg = base()
	cfg.Update.LastDate = "yesterday"
	assert.ErrorContains(t, cfg.Validate(), "update.last_date")

	cfg = base()
	cfg.Update.Retry = -1
	assert.Error(t, cfg.Validate())
}

func TestPathFromEnv(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, DefaultPath, PathFromEnv())
	t.Setenv("CONFIG_PATH", "/etc/pricehist.yaml")
	assert.Equal(t, "/etc/pricehist.yaml", PathFromEnv())
}

func TestLoad_ExplicitZeroIsKept(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
update:
  retry: 0
  round_delay: 0s
  attempt_delay: 0s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.Update.Retry)
	assert.Zero(t, cfg.Update.RoundDelay)
	assert.Zero(t, cfg.Update.AttemptDelay)
	assert.Equal(t, "mwd", cfg.Update.Periods)
	require.NoError(t, cfg.Validate())
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 6, cfg.Update.Retry)
	assert.Equal(t, 2*time.Minute, cfg.Update.RoundDelay)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}
