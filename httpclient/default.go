package httpclient

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/thinkkoa/request/config"
	"github.com/thinkkoa/request/logger"
)

var (
	defaultOnce     sync.Once
	defaultExecutor *Executor
)

// Default returns the process-wide executor. It is built on first use from
// config.Load("") so LOGS_PATH and the other environment keys apply, and it
// owns the process-wide DNS cache.
func Default() *Executor {
	defaultOnce.Do(func() {
		defaultExecutor = buildDefault()
	})
	return defaultExecutor
}

func buildDefault() *Executor {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: request config: %v, using defaults\n", err)
		cfg = config.Default()
	}
	log := logger.New(cfg.Logs.Level, cfg.Logs.Pretty)

	ex, err := NewFromConfig(cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid request config, using defaults")
		return NewBuilder(log).Build()
	}
	return ex
}

// Execute runs opts on the default executor.
func Execute(ctx context.Context, opts Options) (*Response, error) {
	return Default().Execute(ctx, opts)
}
