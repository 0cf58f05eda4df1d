// Package config loads executor configuration from defaults, an optional
// YAML document and the environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultChannel names the failure log file under Logs.Path.
	DefaultChannel = "THINK_REQUEST"
	// DefaultTraceHeader carries the request id.
	DefaultTraceHeader = "X-Request-ID"
)

// sections are the top-level keys environment variables may set.
var sections = []string{"logs", "request", "retry", "dns", "rate", "observability"}

// Load reads defaults, then the YAML file at path when it exists, then
// environment variables such as LOGS_PATH or REQUEST_TIMEOUT. An empty path
// skips the file layer.
func Load(path string) (*Config, error) {
	k, err := newKoanf()
	if err != nil {
		return nil, err
	}

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		} else if !errors.Is(statErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
		}
	}

	return finish(k)
}

// LoadBytes is Load with an in-memory YAML document instead of a file.
func LoadBytes(data []byte) (*Config, error) {
	k, err := newKoanf()
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return finish(k)
}

// Default returns the built-in configuration, ignoring files and the
// environment.
func Default() *Config {
	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	cfg, err := unmarshal(k)
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

func newKoanf() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	return k, nil
}

func finish(k *koanf.Koanf) (*Config, error) {
	if err := k.Load(env.Provider(".", env.Opt{TransformFunc: envKey}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg, err := unmarshal(k)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k
	return &cfg, nil
}

// envKey maps REQUEST_MAXTRIES to request.maxtries. Variables outside the
// known sections are dropped.
func envKey(k, v string) (string, any) {
	key := strings.ReplaceAll(strings.ToLower(k), "_", ".")
	section, _, _ := strings.Cut(key, ".")
	for _, s := range sections {
		if s == section && key != section {
			return key, v
		}
	}
	return "", nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"logs.path":    "",
		"logs.channel": DefaultChannel,
		"logs.level":   "info",
		"logs.pretty":  false,

		"request.useragent":          "request/2.88.2",
		"request.accept":             "*/*",
		"request.timeout":            "10s",
		"request.maxtries":           1,
		"request.insecureskipverify": true,
		"request.ipv4only":           true,
		"request.traceheader":        DefaultTraceHeader,

		"retry.interval": "50ms",
		"retry.timeout":  "60s",

		"dns.ttl":           "1h",
		"dns.nameserver":    "",
		"dns.lookuptimeout": "5s",

		"rate.limit": 0,
		"rate.burst": 1,

		"observability.enabled":          false,
		"observability.endpoint":         "stdout",
		"observability.protocol":         "http",
		"observability.insecure":         true,
		"observability.service.name":     "think-request",
		"observability.metrics.interval": "60s",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
