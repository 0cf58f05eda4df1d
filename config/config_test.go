package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Logs.Path)
	assert.Equal(t, DefaultChannel, cfg.Logs.Channel)
	assert.Equal(t, "info", cfg.Logs.Level)
	assert.False(t, cfg.Logs.Pretty)

	assert.Equal(t, "request/2.88.2", cfg.Request.UserAgent)
	assert.Equal(t, "*/*", cfg.Request.Accept)
	assert.Equal(t, 10*time.Second, cfg.Request.Timeout)
	assert.Equal(t, 1, cfg.Request.MaxTries)
	assert.True(t, cfg.Request.InsecureSkipVerify)
	assert.True(t, cfg.Request.IPv4Only)
	assert.Equal(t, DefaultTraceHeader, cfg.Request.TraceHeader)

	assert.Equal(t, 50*time.Millisecond, cfg.Retry.Interval)
	assert.Equal(t, 60*time.Second, cfg.Retry.Timeout)

	assert.Equal(t, time.Hour, cfg.DNS.TTL)
	assert.Equal(t, "", cfg.DNS.Nameserver)
	assert.Equal(t, 5*time.Second, cfg.DNS.LookupTimeout)

	assert.InDelta(t, 0.0, cfg.Rate.Limit, 0)
	assert.Equal(t, 1, cfg.Rate.Burst)

	assert.False(t, cfg.Observability.Enabled)
	assert.Equal(t, "stdout", cfg.Observability.Endpoint)
	assert.Equal(t, "http", cfg.Observability.Protocol)
	assert.Equal(t, "think-request", cfg.Observability.Service.Name)
	assert.Equal(t, 60*time.Second, cfg.Observability.Metrics.Interval)
}

func TestLoadMissingFileIsOptional(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.DNS.TTL)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
request:
  timeout: 2s
  maxtries: 3
dns:
  nameserver: 127.0.0.1:5353
rate:
  limit: 5
  burst: 2
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Request.Timeout)
	assert.Equal(t, 3, cfg.Request.MaxTries)
	assert.Equal(t, "127.0.0.1:5353", cfg.DNS.Nameserver)
	assert.InDelta(t, 5.0, cfg.Rate.Limit, 0)
	assert.Equal(t, 2, cfg.Rate.Burst)
	assert.Equal(t, "*/*", cfg.Request.Accept)
	assert.True(t, cfg.Exists("dns.nameserver"))
	assert.Equal(t, "127.0.0.1:5353", cfg.String("dns.nameserver"))
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte("request:\n  maxtries: 2\n"), 0o600))

	t.Setenv("LOGS_PATH", dir)
	t.Setenv("REQUEST_MAXTRIES", "4")
	t.Setenv("RETRY_INTERVAL", "10ms")
	t.Setenv("OBSERVABILITY_SERVICE_NAME", "orders")
	t.Setenv("UNRELATED_SETTING", "x")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Logs.Path)
	assert.Equal(t, 4, cfg.Request.MaxTries)
	assert.Equal(t, 10*time.Millisecond, cfg.Retry.Interval)
	assert.Equal(t, "orders", cfg.Observability.Service.Name)
	assert.False(t, cfg.Exists("unrelated.setting"))
}

func TestLoadBytes(t *testing.T) {
	cfg, err := LoadBytes([]byte("logs:\n  level: debug\ndns:\n  ttl: 30m\n"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logs.Level)
	assert.Equal(t, 30*time.Minute, cfg.DNS.TTL)

	_, err = LoadBytes([]byte("logs: [unterminated"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := LoadBytes([]byte("retry:\n  interval: 0s\n"))
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "invalid", cfgErr.Category)
	assert.Equal(t, "retry.interval", cfgErr.Field)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)
	assert.NoError(t, Validate(cfg))
	assert.Equal(t, 10*time.Second, cfg.Request.Timeout)
}

func TestNilConfigAccessors(t *testing.T) {
	var cfg *Config
	assert.False(t, cfg.Exists("logs.path"))
	assert.Equal(t, "", cfg.String("logs.path"))
}
