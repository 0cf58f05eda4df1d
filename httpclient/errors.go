package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/thinkkoa/request/retry"
)

// ClientError represents the failures a single attempt can produce.
type ClientError interface {
	error
	Type() ErrorType
}

// ErrorType defines the category of client error
type ErrorType string

const (
	NetworkError    ErrorType = "network"
	TimeoutError    ErrorType = "timeout"
	HTTPError       ErrorType = "http"
	ValidationError ErrorType = "validation"
)

type networkError struct {
	message string
	wrapped error
}

func (e *networkError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("network error: %s: %v", e.message, e.wrapped)
	}
	return fmt.Sprintf("network error: %s", e.message)
}

func (e *networkError) Type() ErrorType { return NetworkError }

func (e *networkError) Unwrap() error { return e.wrapped }

type timeoutError struct {
	message string
	timeout time.Duration
	wrapped error
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("timeout error: %s (timeout: %v)", e.message, e.timeout)
}

func (e *timeoutError) Type() ErrorType { return TimeoutError }

func (e *timeoutError) Unwrap() error { return e.wrapped }

// httpError is a non-2xx response. Its message is "<status> - <body>".
type httpError struct {
	message    string
	statusCode int
	body       []byte
}

func (e *httpError) Error() string { return e.message }

func (e *httpError) Type() ErrorType { return HTTPError }

func (e *httpError) StatusCode() int { return e.statusCode }

func (e *httpError) Body() []byte { return e.body }

type validationError struct {
	message string
	field   string
}

func (e *validationError) Error() string {
	if e.field != "" {
		return fmt.Sprintf("validation error: %s (field: %s)", e.message, e.field)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

func (e *validationError) Type() ErrorType { return ValidationError }

// NewNetworkError creates a new network error
func NewNetworkError(message string, wrapped error) ClientError {
	return &networkError{message: message, wrapped: wrapped}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, timeout time.Duration) ClientError {
	return &timeoutError{message: message, timeout: timeout}
}

// NewHTTPError creates a new HTTP error. An empty message selects
// "<status> - <body>".
func NewHTTPError(message string, statusCode int, body []byte) ClientError {
	if message == "" {
		message = fmt.Sprintf("%d - %s", statusCode, body)
	}
	return &httpError{message: message, statusCode: statusCode, body: body}
}

// NewValidationError creates a new validation error
func NewValidationError(message, field string) ClientError {
	return &validationError{message: message, field: field}
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType ErrorType) bool {
	if err == nil {
		return false
	}
	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type() == errorType
	}
	return false
}

// IsHTTPStatusError checks if an error is an HTTP error with a specific status code
func IsHTTPStatusError(err error, statusCode int) bool {
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode() == statusCode
	}
	return false
}

// IsSuccessStatus checks if a status code represents success (2xx)
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// FailureKind tags the origin of a NormalizedError.
type FailureKind string

const (
	// NetworkFailure covers transport errors and invalid options.
	NetworkFailure FailureKind = "network"
	// RemoteError is a non-2xx response.
	RemoteError FailureKind = "remote"
	// TimeoutFailure is an attempt that ran out of time.
	TimeoutFailure FailureKind = "timeout"
)

const (
	// StatusTimeout is the code of every timed out call.
	StatusTimeout = 504
	// StatusUnavailable is the code of failures that carry no status.
	StatusUnavailable = 503

	timeoutMarker = "TIMEDOUT"
)

// NormalizedError is the only error Execute returns.
type NormalizedError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    FailureKind `json:"kind"`

	// Status is the response status before code mapping, zero if none.
	Status int `json:"-"`

	cause error
}

func (e *NormalizedError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.Code, e.Message)
}

func (e *NormalizedError) Unwrap() error { return e.cause }

// AsNormalized extracts a NormalizedError from err.
func AsNormalized(err error) (*NormalizedError, bool) {
	var ne *NormalizedError
	if errors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}

// Normalize maps any failure to a NormalizedError. The last attempt of a
// retried call stands in for the whole call. A RemoteError whose message ends
// with a JSON object takes its code and message from that object.
func Normalize(err error) *NormalizedError {
	if err == nil {
		return nil
	}
	if ne, ok := AsNormalized(err); ok {
		return ne
	}

	cause := retry.Cause(err)
	ne := &NormalizedError{Kind: NetworkFailure, Message: cause.Error(), cause: err}

	var (
		httpErr    *httpError
		timeoutErr *timeoutError
	)
	switch {
	case errors.As(cause, &httpErr):
		ne.Kind = RemoteError
		ne.Status = httpErr.statusCode
		ne.Status, ne.Message = unwrapEmbedded(ne.Status, ne.Message)
	case errors.As(cause, &timeoutErr), isTimeout(cause):
		ne.Kind = TimeoutFailure
	}

	switch {
	case ne.Kind == TimeoutFailure || strings.Contains(ne.Message, timeoutMarker):
		ne.Code = StatusTimeout
	case ne.Status > 0:
		ne.Code = ne.Status
	default:
		ne.Code = StatusUnavailable
	}
	return ne
}

// unwrapEmbedded reads a trailing "{...}" object out of message. Fields the
// object does not carry keep their previous values; parse failures leave
// both untouched.
func unwrapEmbedded(status int, message string) (int, string) {
	start := strings.Index(message, "{")
	if start < 0 || !strings.HasSuffix(strings.TrimSpace(message), "}") {
		return status, message
	}

	var embedded map[string]any
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(message[start:])))
	dec.UseNumber()
	if err := dec.Decode(&embedded); err != nil || dec.More() {
		return status, message
	}

	for _, key := range []string{"statusCode", "code"} {
		if v, ok := statusValue(embedded[key]); ok {
			status = v
		}
	}
	if m, ok := embedded["message"].(string); ok {
		message = m
	}
	return status, message
}

func statusValue(v any) (int, bool) {
	var s string
	switch n := v.(type) {
	case json.Number:
		s = n.String()
	case string:
		s = n
	default:
		return 0, false
	}
	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 {
		return 0, false
	}
	return code, true
}
