package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
feed:
  base_url: https://feed.example.com/api
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 50, cfg.Feed.PageSize)
	assert.Equal(t, 3, cfg.Feed.Retry.MaxRetries)
	assert.Equal(t, time.Millisecond, cfg.Feed.Retry.Unit)
	assert.Equal(t, 4, cfg.Sync.Concurrency)
	assert.Equal(t, "@every 5m", cfg.Trigger.Schedule)
	assert.Equal(t, 10, cfg.Trigger.Limit)
	assert.Equal(t, "RECENT", cfg.Trigger.Type)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "sync_requests", cfg.RabbitMQ.RequestsRoutingKey)
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("BETTERLOX_DB_PASSWORD", "s3cret")
	path := writeConfig(t, `
database:
  host: db
  port: 6432
  user: betterlox
  password: ${BETTERLOX_DB_PASSWORD}
  dbname: betterlox
feed:
  base_url: https://feed.example.com/api
  retry:
    max_retries: 5
    unit: 10ms
sync:
  attempt_timeout: 90s
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, 5, cfg.Feed.Retry.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, cfg.Feed.Retry.Unit)
	assert.Equal(t, 90*time.Second, cfg.Sync.AttemptTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "host=db port=6432 user=betterlox password=s3cret dbname=betterlox sslmode=disable", cfg.Database.DSN())
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing feed url": `log_level: info`,
		"bad log level": `
feed:
  base_url: https://feed.example.com/api
log_level: loud
`,
		"bad trigger type": `
feed:
  base_url: https://feed.example.com/api
trigger:
  type: EVERYTHING
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validate config")
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "feed: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
