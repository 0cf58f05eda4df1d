package httpclient

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/thinkkoa/request/config"
	"github.com/thinkkoa/request/dnscache"
	"github.com/thinkkoa/request/logger"
	"github.com/thinkkoa/request/observability"
)

// NewFromConfig builds an executor from cfg. When cfg.Logs.Path is set,
// failure records go to <path>/<channel>.log; if that file cannot be opened
// they fall back to log. When cfg.Observability is enabled the executor
// exports its spans and metrics through a provider it owns. Close the
// executor to release the file and flush the exporters.
func NewFromConfig(cfg *config.Config, log logger.Logger) (*Executor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	transport := DefaultTransportConfig()
	transport.InsecureSkipVerify = cfg.Request.InsecureSkipVerify
	transport.IPv4Only = cfg.Request.IPv4Only

	b := NewBuilder(log).
		WithTransport(transport).
		WithDefaultHeader("User-Agent", cfg.Request.UserAgent).
		WithDefaultHeader("Accept", cfg.Request.Accept).
		WithTimeout(cfg.Request.Timeout).
		WithMaxTries(cfg.Request.MaxTries).
		WithTraceHeader(cfg.Request.TraceHeader).
		WithRetry(cfg.Retry.Interval, cfg.Retry.Timeout).
		WithDNSCache(dnscache.New(newResolver(&cfg.DNS), dnscache.WithTTL(cfg.DNS.TTL)))

	if cfg.Rate.Limit > 0 {
		b.WithRateLimit(rate.Limit(cfg.Rate.Limit), cfg.Rate.Burst)
	}

	if cfg.Observability.Enabled {
		provider, err := observability.NewProvider(&cfg.Observability)
		if err != nil {
			return nil, fmt.Errorf("observability: %w", err)
		}
		b.WithTracerProvider(provider.TracerProvider()).
			withCloser(providerCloser{provider})
	}

	if cfg.Logs.Path != "" {
		ch, err := logger.NewChannel(cfg.Logs.Path, cfg.Logs.Channel, cfg.Logs.Level)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.Logs.Path).Msg("Failure log channel unavailable, using process logger")
		} else {
			b.withOwnedFailureLog(ch)
		}
	}

	return b.Build(), nil
}

// providerCloser shuts a telemetry provider down on Close.
type providerCloser struct {
	provider observability.Provider
}

func (c providerCloser) Close() error {
	return observability.Shutdown(c.provider, observability.DefaultShutdownTimeout)
}

func newResolver(cfg *config.DNSConfig) dnscache.Resolver {
	if cfg.Nameserver != "" {
		return dnscache.NewNameserverResolver(cfg.Nameserver, cfg.LookupTimeout)
	}
	return dnscache.NewSystemResolver(cfg.LookupTimeout)
}
