// Package tracking records OpenTelemetry metrics for outbound requests.
package tracking

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "think-request/httpclient"

	// Following the OTel HTTP client semantic conventions
	metricRequestDuration = "http.client.request.duration" // Histogram in seconds

	metricAttempts          = "httpclient.attempts"
	metricDNSCacheHit       = "httpclient.dns.cache.hit"
	metricDNSCacheMiss      = "httpclient.dns.cache.miss"
	metricDNSLookupFailures = "httpclient.dns.lookup.failures"

	attrHTTPMethod    = "http.request.method"
	attrHTTPStatus    = "http.response.status_code"
	attrErrorType     = "error.type"
	attrServerAddress = "server.address"
	attrRetried       = "httpclient.retried"
)

var (
	meter       metric.Meter
	meterOnce   sync.Once
	meterInitMu sync.Mutex

	requestDuration   metric.Float64Histogram
	attemptCounter    metric.Int64Counter
	dnsHitCounter     metric.Int64Counter
	dnsMissCounter    metric.Int64Counter
	dnsFailureCounter metric.Int64Counter
)

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize httpclient metric %s: %v\n", metricName, err)
	}
}

func initMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if meter != nil {
		return
	}
	meter = otel.Meter(meterName)

	var err error
	requestDuration, err = meter.Float64Histogram(
		metricRequestDuration,
		metric.WithDescription("Duration of outbound HTTP calls including retries"),
		metric.WithUnit("s"),
	)
	logMetricError(metricRequestDuration, err)

	attemptCounter, err = meter.Int64Counter(
		metricAttempts,
		metric.WithDescription("Number of HTTP attempts sent"),
		metric.WithUnit("{attempt}"),
	)
	logMetricError(metricAttempts, err)

	dnsHitCounter, err = meter.Int64Counter(
		metricDNSCacheHit,
		metric.WithDescription("Number of DNS cache hits"),
		metric.WithUnit("{hit}"),
	)
	logMetricError(metricDNSCacheHit, err)

	dnsMissCounter, err = meter.Int64Counter(
		metricDNSCacheMiss,
		metric.WithDescription("Number of DNS cache misses"),
		metric.WithUnit("{miss}"),
	)
	logMetricError(metricDNSCacheMiss, err)

	dnsFailureCounter, err = meter.Int64Counter(
		metricDNSLookupFailures,
		metric.WithDescription("Number of failed DNS lookups"),
		metric.WithUnit("{failure}"),
	)
	logMetricError(metricDNSLookupFailures, err)
}

func ensureInitialized() {
	meterOnce.Do(initMeter)
}

// RecordRequest records the duration of a whole call. status is zero when
// no response arrived; errorType is empty on success.
func RecordRequest(ctx context.Context, method string, status int, errorType string, duration time.Duration) {
	ensureInitialized()
	if requestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{attribute.String(attrHTTPMethod, method)}
	if status > 0 {
		attrs = append(attrs, attribute.Int(attrHTTPStatus, status))
	}
	if errorType != "" {
		attrs = append(attrs, attribute.String(attrErrorType, errorType))
	}
	requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordAttempt counts one sent attempt. retried is true for every attempt
// after the first.
func RecordAttempt(ctx context.Context, method string, retried bool) {
	ensureInitialized()
	if attemptCounter == nil {
		return
	}
	attemptCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrHTTPMethod, method),
		attribute.Bool(attrRetried, retried),
	))
}

// DNS cache outcomes.
const (
	DNSHit    = "hit"
	DNSMiss   = "miss"
	DNSFailed = "failed"
)

// RecordDNS counts a DNS cache outcome for host. Unknown outcomes are ignored.
func RecordDNS(ctx context.Context, host, outcome string) {
	ensureInitialized()

	var counter metric.Int64Counter
	switch outcome {
	case DNSHit:
		counter = dnsHitCounter
	case DNSMiss:
		counter = dnsMissCounter
	case DNSFailed:
		counter = dnsFailureCounter
	}
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String(attrServerAddress, host)))
}

// ResetForTesting resets the metric state for testing purposes.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	meter = nil
	requestDuration = nil
	attemptCounter = nil
	dnsHitCounter = nil
	dnsMissCounter = nil
	dnsFailureCounter = nil
	meterOnce = sync.Once{}
}
