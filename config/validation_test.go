package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		category string
		field    string
	}{
		{name: "unknown log level", mutate: func(c *Config) { c.Logs.Level = "loud" }, category: "invalid", field: "logs.level"},
		{name: "channel required with path", mutate: func(c *Config) { c.Logs.Path = "/tmp"; c.Logs.Channel = "" }, category: "missing", field: "logs.channel"},
		{name: "negative timeout", mutate: func(c *Config) { c.Request.Timeout = -time.Second }, category: "invalid", field: "request.timeout"},
		{name: "negative max tries", mutate: func(c *Config) { c.Request.MaxTries = -1 }, category: "invalid", field: "request.maxtries"},
		{name: "empty trace header", mutate: func(c *Config) { c.Request.TraceHeader = "" }, category: "missing", field: "request.traceheader"},
		{name: "zero retry timeout", mutate: func(c *Config) { c.Retry.Timeout = 0 }, category: "invalid", field: "retry.timeout"},
		{name: "zero ttl", mutate: func(c *Config) { c.DNS.TTL = 0 }, category: "invalid", field: "dns.ttl"},
		{name: "zero lookup timeout", mutate: func(c *Config) { c.DNS.LookupTimeout = 0 }, category: "invalid", field: "dns.lookuptimeout"},
		{name: "negative rate", mutate: func(c *Config) { c.Rate.Limit = -1 }, category: "invalid", field: "rate.limit"},
		{name: "burst below one", mutate: func(c *Config) { c.Rate.Limit = 10; c.Rate.Burst = 0 }, category: "invalid", field: "rate.burst"},
		{
			name: "observability protocol",
			mutate: func(c *Config) {
				c.Observability.Enabled = true
				c.Observability.Endpoint = "collector:4317"
				c.Observability.Protocol = "smtp"
			},
			category: "invalid",
			field:    "observability",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.category, cfgErr.Category)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestConfigErrorMessage(t *testing.T) {
	assert.Equal(t,
		"config_missing: logs.channel required set LOGS_CHANNEL env var or add logs.channel to the config file",
		NewMissingFieldError("logs.channel").Error())

	assert.Equal(t,
		"config_invalid: logs.level unknown level must be one of: info, debug",
		NewInvalidFieldError("logs.level", "unknown level", []string{"info", "debug"}).Error())

	assert.Equal(t, "config_invalid: rate.limit must not be negative",
		NewInvalidFieldError("rate.limit", "must not be negative", nil).Error())
}
