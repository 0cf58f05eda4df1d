package httpclient

import (
	"errors"
	"fmt"
	"maps"
	nethttp "net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxTries disables retries.
	DefaultMaxTries = 1
	// DefaultUserAgent is sent unless the caller overrides it.
	DefaultUserAgent = "request/2.88.2"
	// DefaultAccept is sent unless the caller overrides it.
	DefaultAccept = "*/*"

	headerContentType = "Content-Type"
	headerFormData    = "Form-data"
	headerHost        = "Host"
)

// Options describes one call. The zero value of every field except URI
// selects its default.
type Options struct {
	// URI is the absolute request target.
	URI string `validate:"required,url"`
	// Method defaults to GET.
	Method string `validate:"omitempty,http_method"`
	// Form is sent as query string, JSON, multipart or urlencoded body.
	Form map[string]any
	// Headers are merged over the executor defaults. A non-empty Form-data
	// header selects a multipart body and is not sent.
	Headers map[string]string
	// JSON decodes JSON responses. Defaults to true.
	JSON *bool
	// Timeout bounds each attempt. Defaults to DefaultTimeout.
	Timeout time.Duration `validate:"gte=0"`
	// MaxTries above one retries every failure. Zero selects the executor
	// default and negative values send a single attempt.
	MaxTries int
	// UseDNSCache resolves the host once per TTL and dials the address directly.
	UseDNSCache bool
}

// Bool returns a pointer to v, for Options.JSON.
func Bool(v bool) *bool { return &v }

// defaults are the executor wide values applied to every call.
type defaults struct {
	headers  map[string]string
	timeout  time.Duration
	maxTries int
}

func newDefaults() defaults {
	return defaults{
		headers: map[string]string{
			"User-Agent": DefaultUserAgent,
			"Accept":     DefaultAccept,
		},
		timeout:  DefaultTimeout,
		maxTries: DefaultMaxTries,
	}
}

func (d defaults) apply(o Options) Options {
	if o.Method == "" {
		o.Method = nethttp.MethodGet
	}
	if o.Form == nil {
		o.Form = map[string]any{}
	}
	if o.JSON == nil {
		o.JSON = Bool(true)
	}
	if o.Timeout == 0 {
		o.Timeout = d.timeout
	}
	switch {
	case o.MaxTries == 0:
		o.MaxTries = d.maxTries
	case o.MaxTries < 0:
		o.MaxTries = 1
	}
	o.Headers = mergeHeaders(d.headers, o.Headers)
	return o
}

// mergeHeaders overlays override on base. Keys match case-insensitively and
// the override's spelling wins.
func mergeHeaders(base, override map[string]string) map[string]string {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]string, len(override))
	}
	for k, v := range override {
		for existing := range out {
			if strings.EqualFold(existing, k) {
				delete(out, existing)
			}
		}
		out[k] = v
	}
	return out
}

// headerValue looks up key case-insensitively.
func headerValue(headers map[string]string, key string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func deleteHeader(headers map[string]string, key string) {
	for k := range headers {
		if strings.EqualFold(k, key) {
			delete(headers, k)
		}
	}
}

var methodPattern = regexp.MustCompile("^[!#$%&'*+.^_`|~0-9A-Za-z-]+$")

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("http_method", validateMethod); err != nil {
		panic(fmt.Sprintf("httpclient: register http_method validation: %v", err))
	}
	return v
}

// validateMethod accepts any RFC 9110 token.
func validateMethod(fl validator.FieldLevel) bool {
	return methodPattern.MatchString(fl.Field().String())
}

// validateOptions returns a ValidationError naming the first invalid field.
func validateOptions(v *validator.Validate, o *Options) error {
	err := v.Struct(o)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewValidationError(err.Error(), "")
	}
	fe := verrs[0]
	return NewValidationError(fieldMessage(fe), strings.ToLower(fe.Field()))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	case "http_method":
		return fmt.Sprintf("%s must be a valid HTTP method", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must not be negative", fe.Field())
	default:
		return fmt.Sprintf("%s failed validation", fe.Field())
	}
}
