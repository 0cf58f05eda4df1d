package dnscache

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startNameserver serves A records from records on a loopback UDP port.
func startNameserver(t *testing.T, records map[string]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		reply := new(dns.Msg)
		reply.SetReply(req)
		q := req.Question[0]
		ip, ok := records[q.Name]
		if !ok {
			reply.Rcode = dns.RcodeNameError
		} else {
			reply.Answer = append(reply.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.ParseIP(ip),
			})
		}
		_ = w.WriteMsg(reply)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestNameserverResolverLookupHost(t *testing.T) {
	addr := startNameserver(t, map[string]string{"api.example.com.": "10.9.8.7"})
	r := NewNameserverResolver(addr, time.Second)

	ip, err := r.LookupHost(context.Background(), "api.example.com")
	require.NoError(t, err)
	assert.Equal(t, "10.9.8.7", ip)

	_, err = r.LookupHost(context.Background(), "unknown.example.com")
	assert.Error(t, err)
}

func TestNameserverResolverDefaultPort(t *testing.T) {
	r := NewNameserverResolver("10.0.0.53", 0)
	assert.Equal(t, "10.0.0.53:53", r.Server())
}

func TestFirstA(t *testing.T) {
	t.Run("skips non A records", func(t *testing.T) {
		reply := new(dns.Msg)
		reply.Answer = []dns.RR{
			&dns.CNAME{Hdr: dns.RR_Header{Name: "a.", Rrtype: dns.TypeCNAME, Class: dns.ClassINET}, Target: "b."},
			&dns.A{Hdr: dns.RR_Header{Name: "b.", Rrtype: dns.TypeA, Class: dns.ClassINET}, A: net.ParseIP("1.2.3.4")},
		}
		ip, err := firstA(reply)
		require.NoError(t, err)
		assert.Equal(t, "1.2.3.4", ip)
	})

	t.Run("empty answer", func(t *testing.T) {
		_, err := firstA(new(dns.Msg))
		assert.ErrorIs(t, err, ErrNoAnswer)
	})

	t.Run("server failure", func(t *testing.T) {
		reply := new(dns.Msg)
		reply.Rcode = dns.RcodeServerFailure
		_, err := firstA(reply)
		assert.ErrorContains(t, err, "SERVFAIL")
	})
}

func TestCacheWithNameserverResolver(t *testing.T) {
	addr := startNameserver(t, map[string]string{"svc.internal.": "172.16.0.4"})
	cache := New(NewNameserverResolver(addr, time.Second))

	got, err := cache.Resolve(context.Background(), "http://svc.internal:8443/health")
	require.NoError(t, err)
	assert.Equal(t, "http://172.16.0.4:8443/health", got.URI)
	assert.Equal(t, "svc.internal", got.Host)
}
