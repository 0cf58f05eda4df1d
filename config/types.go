package config

import (
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/thinkkoa/request/observability"
)

// Config holds everything the request executor can be tuned with.
type Config struct {
	Logs          LogsConfig           `koanf:"logs"`
	Request       RequestConfig        `koanf:"request"`
	Retry         RetryConfig          `koanf:"retry"`
	DNS           DNSConfig            `koanf:"dns"`
	Rate          RateConfig           `koanf:"rate"`
	Observability observability.Config `koanf:"observability"`

	k *koanf.Koanf
}

// LogsConfig selects where failure records go. With an empty Path they are
// written to the process logger.
type LogsConfig struct {
	Path    string `koanf:"path"`
	Channel string `koanf:"channel"`
	Level   string `koanf:"level"`
	Pretty  bool   `koanf:"pretty"`
}

// RequestConfig holds the per-call defaults and transport knobs.
type RequestConfig struct {
	UserAgent          string        `koanf:"useragent"`
	Accept             string        `koanf:"accept"`
	Timeout            time.Duration `koanf:"timeout"`
	MaxTries           int           `koanf:"maxtries"`
	InsecureSkipVerify bool          `koanf:"insecureskipverify"`
	IPv4Only           bool          `koanf:"ipv4only"`
	TraceHeader        string        `koanf:"traceheader"`
}

// RetryConfig bounds retried calls.
type RetryConfig struct {
	Interval time.Duration `koanf:"interval"`
	Timeout  time.Duration `koanf:"timeout"`
}

// DNSConfig tunes the DNS cache. An empty Nameserver selects the system
// resolver.
type DNSConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	Nameserver    string        `koanf:"nameserver"`
	LookupTimeout time.Duration `koanf:"lookuptimeout"`
}

// RateConfig limits outbound attempts per second. A zero Limit disables
// limiting.
type RateConfig struct {
	Limit float64 `koanf:"limit"`
	Burst int     `koanf:"burst"`
}

// Exists reports whether key was set by any configuration layer.
func (c *Config) Exists(key string) bool {
	if c == nil || c.k == nil {
		return false
	}
	return c.k.Exists(key)
}

// String returns the raw string value for key, or "" when unset.
func (c *Config) String(key string) string {
	if c == nil || c.k == nil {
		return ""
	}
	return c.k.String(key)
}
