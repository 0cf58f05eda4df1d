// Package dnscache rewrites request URIs to a resolved IPv4 address and
// remembers the result per URI for a fixed time.
package dnscache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a resolved URI is reused.
const DefaultTTL = time.Hour

// ErrNoHost is returned for URIs without a hostname.
var ErrNoHost = errors.New("dnscache: uri has no hostname")

// Resolver resolves a hostname to a single IPv4 address.
type Resolver interface {
	LookupHost(ctx context.Context, host string) (string, error)
}

// Entry is a cached rewrite of one URI.
type Entry struct {
	ResolvedURI string
	Hostname    string
	ExpiresAt   time.Time
}

// Outcome reports how Resolve produced its result.
type Outcome int

const (
	// OutcomeSkipped means the URI was used as is (IP literal or unparsable).
	OutcomeSkipped Outcome = iota
	// OutcomeHit means a fresh cached entry was reused.
	OutcomeHit
	// OutcomeMiss means the hostname was looked up and the entry stored.
	OutcomeMiss
	// OutcomeFailed means the lookup failed and the original URI is used.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeMiss:
		return "miss"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Result is the URI to dial and, when rewritten, the Host header to send.
type Result struct {
	URI     string
	Host    string
	Outcome Outcome
}

// Rewritten reports whether the URI points at a resolved address.
func (r Result) Rewritten() bool { return r.Host != "" }

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache maps URIs to resolved URIs. Each entry expires on its own; concurrent
// misses for the same URI share one lookup.
type Cache struct {
	resolver Resolver
	ttl      time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry
	sf      singleflight.Group
}

// New creates a cache backed by resolver. A nil resolver selects SystemResolver.
func New(resolver Resolver, opts ...Option) *Cache {
	if resolver == nil {
		resolver = NewSystemResolver(0)
	}
	c := &Cache{
		resolver: resolver,
		ttl:      DefaultTTL,
		now:      time.Now,
		entries:  make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the URI to dial for rawURI. Lookup failures are reported
// alongside a Result carrying rawURI unchanged, so callers can proceed with
// the original address.
func (c *Cache) Resolve(ctx context.Context, rawURI string) (Result, error) {
	original := Result{URI: rawURI, Outcome: OutcomeSkipped}

	u, err := url.Parse(rawURI)
	if err != nil {
		return original, fmt.Errorf("dnscache: parse uri: %w", err)
	}
	hostname := u.Hostname()
	if hostname == "" {
		return original, ErrNoHost
	}
	if net.ParseIP(hostname) != nil {
		return original, nil
	}

	if entry, ok := c.lookup(rawURI); ok {
		return Result{URI: entry.ResolvedURI, Host: entry.Hostname, Outcome: OutcomeHit}, nil
	}

	// The lookup is shared by every waiter on rawURI, so one caller's
	// cancellation must not fail the others.
	lookupCtx := context.WithoutCancel(ctx)
	v, err, _ := c.sf.Do(rawURI, func() (any, error) {
		// another caller may have refreshed the entry while we waited
		if entry, ok := c.lookup(rawURI); ok {
			return entry, nil
		}
		ip, err := c.resolver.LookupHost(lookupCtx, hostname)
		if err != nil {
			return nil, err
		}
		entry := Entry{
			ResolvedURI: rewrite(u, ip),
			Hostname:    hostname,
			ExpiresAt:   c.now().Add(c.ttl),
		}
		c.mu.Lock()
		c.entries[rawURI] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		original.Outcome = OutcomeFailed
		return original, fmt.Errorf("dnscache: lookup %s: %w", hostname, err)
	}

	entry := v.(Entry)
	return Result{URI: entry.ResolvedURI, Host: entry.Hostname, Outcome: OutcomeMiss}, nil
}

// Get returns the fresh entry for rawURI, if any.
func (c *Cache) Get(rawURI string) (Entry, bool) {
	return c.lookup(rawURI)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.ExpiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *Cache) lookup(rawURI string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[rawURI]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.ExpiresAt) {
		return Entry{}, false
	}
	return entry, true
}

// rewrite swaps the hostname for ip, keeping scheme, userinfo, port, path,
// query and fragment.
func rewrite(u *url.URL, ip string) string {
	out := *u
	if port := u.Port(); port != "" {
		out.Host = net.JoinHostPort(ip, port)
	} else {
		out.Host = ip
	}
	return out.String()
}
