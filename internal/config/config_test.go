package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DispatchDefaults(t *testing.T) {
	t.Setenv("DISPATCH_BATCH_SIZE", "")
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "")
	t.Setenv("DISPATCH_RUN_TIMEOUT", "")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Dispatch.BatchSize)
	assert.Equal(t, 3, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, 5, cfg.Dispatch.Workers)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.JobTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Dispatch.RunTimeout)
	assert.Empty(t, cfg.Dispatch.Secret)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestConfig_DispatchFromEnv(t *testing.T) {
	t.Setenv("DISPATCH_BATCH_SIZE", "10")
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "5")
	t.Setenv("DISPATCH_JOB_TIMEOUT", "5s")
	t.Setenv("DISPATCH_RUN_TIMEOUT", "2m")
	t.Setenv("DISPATCH_SECRET", "s3cret")
	t.Setenv("PUBLIC_BASE_URL", "https://cards.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Dispatch.BatchSize)
	assert.Equal(t, 5, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.JobTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Dispatch.RunTimeout)
	assert.Equal(t, "s3cret", cfg.Dispatch.Secret)
	assert.Equal(t, "https://cards.example.com", cfg.PublicBaseURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
}

func TestConfig_ZeroAttemptsRejected(t *testing.T) {
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "0")

	cfg, err := Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "max attempts")
}

func TestConfig_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cardpost.yaml")
	content := `
dispatch:
  batch_size: 2
  workers: 1
  cron: "@every 30s"
  retry_initial: 10ms
  run_timeout: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Dispatch.BatchSize)
	assert.Equal(t, 1, cfg.Dispatch.Workers)
	assert.Equal(t, "@every 30s", cfg.Dispatch.Cron)
	assert.Equal(t, 10*time.Millisecond, cfg.Dispatch.RetryInitial)
	assert.Equal(t, 90*time.Second, cfg.Dispatch.RunTimeout)
	// untouched by the file
	assert.Equal(t, 4, cfg.Dispatch.MaxAttempts)
}

func TestConfig_YAMLMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestConfig_ChannelToggles(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.EmailEnabled())
	assert.False(t, cfg.TelegramEnabled())

	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPFrom = "cards@example.com"
	cfg.TGApiID = 12345
	cfg.TGApiHash = "hash"
	assert.True(t, cfg.EmailEnabled())
	assert.True(t, cfg.TelegramEnabled())
}

func TestConfig_NegativeRunTimeoutRejected(t *testing.T) {
	t.Setenv("DISPATCH_RUN_TIMEOUT", "-1s")

	cfg, err := Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "run timeout")
}
