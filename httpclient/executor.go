package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/thinkkoa/request/dnscache"
	"github.com/thinkkoa/request/httpclient/internal/tracking"
	"github.com/thinkkoa/request/logger"
	"github.com/thinkkoa/request/retry"
	"github.com/thinkkoa/request/trace"
)

const (
	tracerName = "github.com/thinkkoa/request/httpclient"
	spanName   = "httpclient.execute"

	// DefaultMaxPayloadLogBytes caps logged body previews.
	DefaultMaxPayloadLogBytes = 1024
)

// Response is a successful (2xx) reply.
type Response struct {
	StatusCode int
	Headers    nethttp.Header
	Body       []byte
	// Value is the decoded JSON document when JSON is on and the body
	// parses, otherwise the body as a string.
	Value any
	Stats Stats
}

// Stats contains call execution statistics
type Stats struct {
	ElapsedTime time.Duration
	Attempts    int
}

// requestDescriptor is the assembled request. It is also the "options"
// object of the failure record.
type requestDescriptor struct {
	URI      string            `json:"uri"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
	Timeout  int64             `json:"timeout"`
	JSON     bool              `json:"json"`
	Encoding Encoding          `json:"encoding,omitempty"`
	Payload  map[string]any    `json:"payload,omitempty"`

	requestID string
	timeout   time.Duration
	maxTries  int
	body      []byte
}

// Executor runs calls against a shared connection pool, DNS cache and
// failure log.
type Executor struct {
	client     *nethttp.Client
	log        logger.Logger
	failureLog logger.Logger
	closers    []io.Closer

	dns     *dnscache.Cache
	limiter *rate.Limiter
	retry   retry.Policy

	defaults    defaults
	traceHeader string
	tracer      oteltrace.Tracer
	validate    *validator.Validate

	logPayloads        bool
	maxPayloadLogBytes int
}

// Builder provides a fluent interface for configuring an Executor
type Builder struct {
	ex        *Executor
	transport TransportConfig
}

// NewBuilder creates a builder with the default transport, a fresh DNS
// cache on the system resolver and failure records going to log.
func NewBuilder(log logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{
		ex: &Executor{
			log:                log,
			retry:              retry.Policy{Interval: retry.DefaultInterval, Timeout: retry.DefaultTimeout},
			defaults:           newDefaults(),
			traceHeader:        trace.HeaderXRequestID,
			maxPayloadLogBytes: DefaultMaxPayloadLogBytes,
		},
		transport: DefaultTransportConfig(),
	}
}

// WithHTTPClient dispatches through c instead of a client built from the
// transport config.
func (b *Builder) WithHTTPClient(c *nethttp.Client) *Builder {
	b.ex.client = c
	return b
}

// WithTransport sets the connection pool configuration
func (b *Builder) WithTransport(cfg TransportConfig) *Builder {
	b.transport = cfg
	return b
}

// WithDNSCache sets the cache used by calls with UseDNSCache.
func (b *Builder) WithDNSCache(c *dnscache.Cache) *Builder {
	b.ex.dns = c
	return b
}

// WithRetry sets the wait between attempts and the overall retry budget.
func (b *Builder) WithRetry(interval, budget time.Duration) *Builder {
	b.ex.retry.Interval = interval
	b.ex.retry.Timeout = budget
	return b
}

// WithRateLimit waits on a token bucket before every attempt.
func (b *Builder) WithRateLimit(limit rate.Limit, burst int) *Builder {
	if burst < 1 {
		burst = 1
	}
	b.ex.limiter = rate.NewLimiter(limit, burst)
	return b
}

// WithFailureLog sends failure records to l instead of the process logger.
func (b *Builder) WithFailureLog(l logger.Logger) *Builder {
	b.ex.failureLog = l
	return b
}

// WithDefaultHeader adds a header sent with every call unless overridden.
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.ex.defaults.headers = mergeHeaders(b.ex.defaults.headers, map[string]string{key: value})
	return b
}

// WithTimeout sets the default per-attempt timeout
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	if timeout > 0 {
		b.ex.defaults.timeout = timeout
	}
	return b
}

// WithMaxTries sets the default attempt count
func (b *Builder) WithMaxTries(n int) *Builder {
	if n > 0 {
		b.ex.defaults.maxTries = n
	}
	return b
}

// WithTraceHeader sets the header carrying the request id.
func (b *Builder) WithTraceHeader(header string) *Builder {
	if header != "" {
		b.ex.traceHeader = header
	}
	return b
}

// WithTracerProvider sets the provider of the execute span. The global
// provider is used otherwise.
func (b *Builder) WithTracerProvider(tp oteltrace.TracerProvider) *Builder {
	if tp != nil {
		b.ex.tracer = tp.Tracer(tracerName)
	}
	return b
}

// WithPayloadLogging adds headers and a body preview of up to maxBytes to
// the debug attempt log.
func (b *Builder) WithPayloadLogging(maxBytes int) *Builder {
	b.ex.logPayloads = true
	if maxBytes > 0 {
		b.ex.maxPayloadLogBytes = maxBytes
	}
	return b
}

// withOwnedFailureLog makes Close release l.
func (b *Builder) withOwnedFailureLog(l *logger.Channel) *Builder {
	b.ex.failureLog = l
	return b.withCloser(l)
}

// withCloser makes Close release c, in reverse registration order.
func (b *Builder) withCloser(c io.Closer) *Builder {
	b.ex.closers = append(b.ex.closers, c)
	return b
}

// Build creates the Executor with the configured options
func (b *Builder) Build() *Executor {
	ex := *b.ex
	ex.closers = append([]io.Closer(nil), b.ex.closers...)
	if ex.client == nil {
		ex.client = NewTransport(b.transport)
	}
	if ex.dns == nil {
		ex.dns = dnscache.New(nil)
	}
	if ex.failureLog == nil {
		ex.failureLog = ex.log
	}
	if ex.tracer == nil {
		ex.tracer = otel.Tracer(tracerName)
	}
	ex.validate = newValidator()
	return &ex
}

// Close releases what the executor opened itself: the failure log file and
// the telemetry exporters.
func (e *Executor) Close() error {
	if e == nil {
		return nil
	}
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Execute sends one call, retrying it when opts.MaxTries is above one.
// Every failure is returned as a *NormalizedError.
func (e *Executor) Execute(ctx context.Context, opts Options) (*Response, error) {
	start := time.Now()
	opts = e.defaults.apply(opts)

	ctx, span := e.tracer.Start(ctx, spanName,
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String("http.request.method", opts.Method),
			attribute.String("url.full", opts.URI),
			attribute.Bool("httpclient.dns_cache", opts.UseDNSCache),
		),
	)
	defer span.End()

	desc, err := e.prepare(ctx, opts)
	if err != nil {
		return nil, e.fail(ctx, span, desc, err, start)
	}

	attempts := 0
	call := func(ctx context.Context) (*Response, error) {
		attempts++
		return e.attempt(ctx, desc, attempts)
	}

	var resp *Response
	if desc.maxTries <= 1 {
		resp, err = call(ctx)
	} else {
		policy := e.retry
		policy.MaxTries = desc.maxTries
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			e.log.Warn().
				Err(err).
				Str("url", desc.URI).
				Str("request_id", desc.requestID).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("Retrying HTTP request")
		}
		resp, err = retry.Do(ctx, policy, call)
	}
	span.SetAttributes(attribute.Int("httpclient.attempts", attempts))
	if err != nil {
		return nil, e.fail(ctx, span, desc, err, start)
	}

	elapsed := time.Since(start)
	resp.Stats = Stats{ElapsedTime: elapsed, Attempts: attempts}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	tracking.RecordRequest(ctx, desc.Method, resp.StatusCode, "", elapsed)
	return resp, nil
}

// prepare validates opts and assembles the descriptor. The descriptor is
// returned even on error so the failure record can carry it.
func (e *Executor) prepare(ctx context.Context, opts Options) (*requestDescriptor, error) {
	desc := &requestDescriptor{
		URI:      opts.URI,
		Method:   opts.Method,
		Headers:  opts.Headers,
		Timeout:  opts.Timeout.Milliseconds(),
		JSON:     *opts.JSON,
		Payload:  opts.Form,
		timeout:  opts.Timeout,
		maxTries: opts.MaxTries,
	}
	if err := validateOptions(e.validate, &opts); err != nil {
		return desc, err
	}

	e.injectRequestID(ctx, desc)

	if opts.UseDNSCache {
		e.resolve(ctx, desc)
	}

	desc.Encoding = selectEncoding(desc.Method, desc.Headers, desc.JSON)
	if desc.Encoding == EncodingQuery {
		uri, err := encodeQuery(desc.URI, desc.Payload)
		if err != nil {
			return desc, NewValidationError(err.Error(), "form")
		}
		desc.URI = uri
		desc.Method = nethttp.MethodGet
		return desc, nil
	}

	body, contentType, err := encodeBody(desc.Encoding, desc.Payload)
	if err != nil {
		return desc, NewValidationError(err.Error(), "form")
	}
	desc.body = body

	switch desc.Encoding {
	case EncodingMultipart:
		deleteHeader(desc.Headers, headerFormData)
		desc.Headers = mergeHeaders(desc.Headers, map[string]string{headerContentType: contentType})
	case EncodingForm:
		if _, ok := headerValue(desc.Headers, headerContentType); !ok {
			desc.Headers[headerContentType] = contentType
		}
	}
	return desc, nil
}

func (e *Executor) injectRequestID(ctx context.Context, desc *requestDescriptor) {
	h := make(nethttp.Header, len(desc.Headers))
	for k, v := range desc.Headers {
		h.Set(k, v)
	}
	desc.requestID = trace.Inject(ctx, h, e.traceHeader)
	for k := range h {
		if _, ok := headerValue(desc.Headers, k); !ok {
			desc.Headers[k] = h.Get(k)
		}
	}
}

// resolve points desc at the cached address of its host. Lookup failures
// leave the URI unchanged.
func (e *Executor) resolve(ctx context.Context, desc *requestDescriptor) {
	if e.dns == nil {
		return
	}
	res, err := e.dns.Resolve(ctx, desc.URI)

	host := desc.URI
	if u, perr := url.Parse(desc.URI); perr == nil {
		host = u.Hostname()
	}
	switch res.Outcome {
	case dnscache.OutcomeHit:
		tracking.RecordDNS(ctx, host, tracking.DNSHit)
	case dnscache.OutcomeMiss:
		tracking.RecordDNS(ctx, host, tracking.DNSMiss)
	case dnscache.OutcomeFailed:
		tracking.RecordDNS(ctx, host, tracking.DNSFailed)
	}
	if err != nil {
		e.log.Debug().Err(err).Str("url", desc.URI).Msg("DNS cache lookup failed, using original URI")
	}

	if res.Rewritten() {
		desc.URI = res.URI
		desc.Headers = mergeHeaders(desc.Headers, map[string]string{headerHost: res.Host})
	}
}

// attempt sends the request once.
func (e *Executor) attempt(ctx context.Context, desc *requestDescriptor, n int) (*Response, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, NewNetworkError("rate limiter wait failed", err)
		}
	}
	tracking.RecordAttempt(ctx, desc.Method, n > 1)

	attemptCtx, cancel := context.WithTimeout(ctx, desc.timeout)
	defer cancel()

	req, err := buildRequest(attemptCtx, desc)
	if err != nil {
		return nil, err
	}
	e.logRequest(req, desc, n)

	start := time.Now()
	httpResp, err := e.client.Do(req)
	if err != nil {
		return nil, transportError(err, desc.timeout, "request execution failed")
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, transportError(err, desc.timeout, "failed to read response body")
	}
	e.logResponse(desc, httpResp.StatusCode, len(raw), time.Since(start))

	if !IsSuccessStatus(httpResp.StatusCode) {
		return nil, NewHTTPError("", httpResp.StatusCode, raw)
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       raw,
		Value:      decodeValue(raw, desc.JSON),
	}, nil
}

func transportError(err error, timeout time.Duration, message string) error {
	if isTimeout(err) {
		return &timeoutError{message: message, timeout: timeout, wrapped: err}
	}
	return NewNetworkError(message, err)
}

func buildRequest(ctx context.Context, desc *requestDescriptor) (*nethttp.Request, error) {
	var body io.Reader
	if len(desc.body) > 0 {
		body = bytes.NewReader(desc.body)
	}
	req, err := nethttp.NewRequestWithContext(ctx, desc.Method, desc.URI, body)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("failed to create HTTP request: %v", err), "uri")
	}
	for k, v := range desc.Headers {
		if strings.EqualFold(k, headerHost) {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}
	return req, nil
}

func decodeValue(raw []byte, jsonOn bool) any {
	if jsonOn && len(bytes.TrimSpace(raw)) > 0 {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

// fail normalizes err, writes the failure record and closes out telemetry.
func (e *Executor) fail(ctx context.Context, span oteltrace.Span, desc *requestDescriptor, err error, start time.Time) error {
	ne := Normalize(err)
	e.recordFailure(desc, ne)

	span.RecordError(err)
	span.SetStatus(codes.Error, ne.Message)
	span.SetAttributes(attribute.Int("httpclient.code", ne.Code))
	tracking.RecordRequest(ctx, desc.Method, ne.Status, string(ne.Kind), time.Since(start))
	return ne
}

// recordFailure writes {options, code, message} to the failure log. It must
// never affect the call result, so panics from the sink are swallowed.
func (e *Executor) recordFailure(desc *requestDescriptor, ne *NormalizedError) {
	defer func() { _ = recover() }()

	ev := e.failureLog.Error().Interface("options", desc)
	if ne.Status > 0 {
		ev = ev.Int("code", ne.Status)
	} else {
		ev = ev.Str("code", "")
	}
	ev.Str("kind", string(ne.Kind)).Msg(ne.Message)
}

func (e *Executor) logRequest(req *nethttp.Request, desc *requestDescriptor, attempt int) {
	ev := e.log.Debug().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("request_id", desc.requestID).
		Int("attempt", attempt)

	if n := len(req.Header); n > 0 {
		ev = ev.Int("header_count", n)
	}
	if n := len(desc.body); n > 0 {
		ev = ev.Int("body_size", n)
	}
	if e.logPayloads {
		preview, truncated := previewBody(desc.body, e.maxPayloadLogBytes)
		ev = ev.Interface("headers", desc.Headers).
			Bool("body_truncated", truncated).
			Bytes("body_preview", preview)
	}
	ev.Msg("HTTP client request")
}

func (e *Executor) logResponse(desc *requestDescriptor, status, size int, elapsed time.Duration) {
	e.log.Debug().
		Str("direction", "inbound").
		Str("request_id", desc.requestID).
		Int("status", status).
		Int("body_size", size).
		Dur("elapsed", elapsed).
		Msg("HTTP client response")
}

func previewBody(body []byte, limit int) ([]byte, bool) {
	if limit <= 0 || len(body) <= limit {
		return body, false
	}
	return body[:limit], true
}
