package config

import (
	"slices"
	"strconv"
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}

// Validate checks every section and returns the first problem as a
// *ConfigError.
func Validate(cfg *Config) error {
	if err := validateLogs(&cfg.Logs); err != nil {
		return err
	}
	if err := validateRequest(&cfg.Request); err != nil {
		return err
	}
	if err := validateRetry(&cfg.Retry); err != nil {
		return err
	}
	if err := validateDNS(&cfg.DNS); err != nil {
		return err
	}
	if err := validateRate(&cfg.Rate); err != nil {
		return err
	}
	if err := cfg.Observability.Validate(); err != nil {
		return NewInvalidFieldError("observability", err.Error(), nil)
	}
	return nil
}

func validateLogs(cfg *LogsConfig) error {
	if !slices.Contains(validLogLevels, cfg.Level) {
		return NewInvalidFieldError("logs.level", "unknown level "+strconv.Quote(cfg.Level), validLogLevels)
	}
	if cfg.Path != "" && cfg.Channel == "" {
		return NewMissingFieldError("logs.channel")
	}
	return nil
}

func validateRequest(cfg *RequestConfig) error {
	if cfg.Timeout < 0 {
		return NewInvalidFieldError("request.timeout", "must not be negative", nil)
	}
	if cfg.MaxTries < 0 {
		return NewInvalidFieldError("request.maxtries", "must not be negative", nil)
	}
	if cfg.TraceHeader == "" {
		return NewMissingFieldError("request.traceheader")
	}
	return nil
}

func validateRetry(cfg *RetryConfig) error {
	if cfg.Interval <= 0 {
		return NewInvalidFieldError("retry.interval", "must be positive", nil)
	}
	if cfg.Timeout <= 0 {
		return NewInvalidFieldError("retry.timeout", "must be positive", nil)
	}
	return nil
}

func validateDNS(cfg *DNSConfig) error {
	if cfg.TTL <= 0 {
		return NewInvalidFieldError("dns.ttl", "must be positive", nil)
	}
	if cfg.LookupTimeout <= 0 {
		return NewInvalidFieldError("dns.lookuptimeout", "must be positive", nil)
	}
	return nil
}

func validateRate(cfg *RateConfig) error {
	if cfg.Limit < 0 {
		return NewInvalidFieldError("rate.limit", "must not be negative", nil)
	}
	if cfg.Limit > 0 && cfg.Burst < 1 {
		return NewInvalidFieldError("rate.burst", "must be at least 1 when rate.limit is set", nil)
	}
	return nil
}
