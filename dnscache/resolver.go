package dnscache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// DefaultLookupTimeout bounds a single lookup.
const DefaultLookupTimeout = 5 * time.Second

// ErrNoAnswer is returned when a lookup yields no IPv4 address.
var ErrNoAnswer = errors.New("dnscache: no ipv4 address in answer")

// SystemResolver resolves through the operating system resolver.
type SystemResolver struct {
	resolver *net.Resolver
	timeout  time.Duration
}

// NewSystemResolver creates a resolver using net.DefaultResolver. A zero
// timeout selects DefaultLookupTimeout.
func NewSystemResolver(timeout time.Duration) *SystemResolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &SystemResolver{resolver: net.DefaultResolver, timeout: timeout}
}

// LookupHost returns the first IPv4 address of host.
func (r *SystemResolver) LookupHost(ctx context.Context, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ips, err := r.resolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return "", err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return "", ErrNoAnswer
}

// NameserverResolver sends A queries to a fixed nameserver.
type NameserverResolver struct {
	client *dns.Client
	server string
}

// NewNameserverResolver creates a resolver for server ("host" or
// "host:port", port 53 by default).
func NewNameserverResolver(server string, timeout time.Duration) *NameserverResolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &NameserverResolver{
		client: &dns.Client{Net: "udp", Timeout: timeout},
		server: server,
	}
}

// Server returns the nameserver address queried.
func (r *NameserverResolver) Server() string { return r.server }

// LookupHost returns the first A record of host.
func (r *NameserverResolver) LookupHost(ctx context.Context, host string) (string, error) {
	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(host), dns.TypeA)
	query.RecursionDesired = true

	reply, _, err := r.client.ExchangeContext(ctx, query, r.server)
	if err != nil {
		return "", err
	}
	return firstA(reply)
}

func firstA(reply *dns.Msg) (string, error) {
	switch reply.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return "", fmt.Errorf("dnscache: no such host")
	default:
		return "", fmt.Errorf("dnscache: server replied %s", dns.RcodeToString[reply.Rcode])
	}
	for _, answer := range reply.Answer {
		if rr, ok := answer.(*dns.A); ok {
			return rr.A.String(), nil
		}
	}
	return "", ErrNoAnswer
}
