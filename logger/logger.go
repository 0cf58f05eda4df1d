package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

const (
	// channelBufferSize is the number of records the channel diode holds before dropping.
	channelBufferSize = 1000
	// channelPollInterval is how often the diode flushes to the channel file.
	channelPollInterval = 10 * time.Millisecond
)

// ZeroLogger wraps zerolog.Logger to implement the Logger interface.
type ZeroLogger struct {
	zlog   *zerolog.Logger
	filter *SensitiveDataFilter
}

var _ Logger = (*ZeroLogger)(nil)

// New creates a logger writing to stdout. When pretty is true the output is
// formatted for humans instead of JSON.
func New(level string, pretty bool) *ZeroLogger {
	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(out, level, nil)
}

// NewWithWriter creates a logger writing JSON records to w. A nil filter
// config selects DefaultFilterConfig.
func NewWithWriter(w io.Writer, level string, filterConfig *FilterConfig) *ZeroLogger {
	l := zerolog.New(w).With().Timestamp().Logger()

	zLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zLevel = zerolog.InfoLevel
	}
	l = l.Level(zLevel)

	return &ZeroLogger{zlog: &l, filter: NewSensitiveDataFilter(filterConfig)}
}

// Nop returns a logger that discards everything.
func Nop() *ZeroLogger {
	l := zerolog.Nop()
	return &ZeroLogger{zlog: &l, filter: NewSensitiveDataFilter(nil)}
}

// Channel is a logger bound to a named log file. Records are handed to a
// diode so writers never block on disk I/O; overflow drops the oldest records.
type Channel struct {
	*ZeroLogger
	name   string
	path   string
	closer io.Closer
}

// NewChannel opens (or creates) <dir>/<name>.log for appending and returns a
// logger writing to it. Every record carries a "channel" field.
func NewChannel(dir, name, level string) (*Channel, error) {
	if dir == "" {
		return nil, fmt.Errorf("log channel %s: directory is required", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("log channel %s: %w", name, err)
	}

	path := filepath.Join(dir, name+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log channel %s: %w", name, err)
	}

	dw := diode.NewWriter(file, channelBufferSize, channelPollInterval, func(missed int) {
		fmt.Fprintf(os.Stderr, "WARNING: log channel %s dropped %d records\n", name, missed)
	})

	base := NewWithWriter(dw, level, nil)
	zl := base.zlog.With().Str("channel", name).Logger()

	return &Channel{
		ZeroLogger: &ZeroLogger{zlog: &zl, filter: base.filter},
		name:       name,
		path:       path,
		closer:     dw, // closes file after draining
	}, nil
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Path returns the file the channel appends to.
func (c *Channel) Path() string { return c.path }

// Close flushes pending records and closes the channel file.
func (c *Channel) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// WithContext returns the logger stored in ctx by zerolog, if any.
func (l *ZeroLogger) WithContext(ctx any) Logger {
	c, ok := ctx.(context.Context)
	if !ok {
		return l
	}
	zl := zerolog.Ctx(c)
	if zl == nil || zl.GetLevel() == zerolog.Disabled {
		return l
	}
	return &ZeroLogger{zlog: zl, filter: l.filter}
}

// WithFields returns a logger that adds fields to every entry. Sensitive
// values are masked before they are attached.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	if l.filter != nil {
		fields = l.filter.FilterFields(fields)
	}
	zl := l.zlog.With().Fields(fields).Logger()
	return &ZeroLogger{zlog: &zl, filter: l.filter}
}
