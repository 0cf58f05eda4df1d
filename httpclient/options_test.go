package httpclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsApply(t *testing.T) {
	opts := newDefaults().apply(Options{URI: "http://example.com"})

	assert.Equal(t, "GET", opts.Method)
	assert.NotNil(t, opts.Form)
	require.NotNil(t, opts.JSON)
	assert.True(t, *opts.JSON)
	assert.Equal(t, DefaultTimeout, opts.Timeout)
	assert.Equal(t, DefaultMaxTries, opts.MaxTries)
	assert.Equal(t, map[string]string{
		"User-Agent": DefaultUserAgent,
		"Accept":     DefaultAccept,
	}, opts.Headers)
}

func TestDefaultsApplyKeepsExplicitValues(t *testing.T) {
	opts := newDefaults().apply(Options{
		URI:      "http://example.com",
		Method:   "post",
		JSON:     Bool(false),
		Timeout:  time.Second,
		MaxTries: 3,
		Headers:  map[string]string{"accept": "application/xml"},
	})

	assert.Equal(t, "post", opts.Method)
	assert.False(t, *opts.JSON)
	assert.Equal(t, time.Second, opts.Timeout)
	assert.Equal(t, 3, opts.MaxTries)
	assert.Equal(t, map[string]string{
		"User-Agent": DefaultUserAgent,
		"accept":     "application/xml",
	}, opts.Headers)
}

func TestDefaultsApplyNegativeMaxTries(t *testing.T) {
	d := newDefaults()
	d.maxTries = 4

	assert.Equal(t, 1, d.apply(Options{URI: "http://example.com", MaxTries: -1}).MaxTries)
	assert.Equal(t, 4, d.apply(Options{URI: "http://example.com"}).MaxTries)
}

func TestMergeHeadersDoesNotMutateInputs(t *testing.T) {
	base := map[string]string{"A": "1"}
	override := map[string]string{"a": "2", "B": "3"}

	merged := mergeHeaders(base, override)

	assert.Equal(t, map[string]string{"a": "2", "B": "3"}, merged)
	assert.Equal(t, map[string]string{"A": "1"}, base)
}

func TestHeaderHelpers(t *testing.T) {
	headers := map[string]string{"Content-Type": "application/json", "form-data": "true"}

	v, ok := headerValue(headers, "content-type")
	assert.True(t, ok)
	assert.Equal(t, "application/json", v)

	_, ok = headerValue(headers, "Accept")
	assert.False(t, ok)

	deleteHeader(headers, headerFormData)
	assert.Equal(t, map[string]string{"Content-Type": "application/json"}, headers)
}

func TestValidateOptions(t *testing.T) {
	v := newValidator()

	tests := []struct {
		name    string
		opts    Options
		field   string
		wantErr bool
	}{
		{name: "valid", opts: Options{URI: "http://example.com/a?b=c", Method: "PATCH"}},
		{name: "custom method token", opts: Options{URI: "http://example.com", Method: "PURGE"}},
		{name: "missing uri", opts: Options{}, field: "uri", wantErr: true},
		{name: "relative uri", opts: Options{URI: "/relative"}, field: "uri", wantErr: true},
		{name: "method with space", opts: Options{URI: "http://example.com", Method: "GE T"}, field: "method", wantErr: true},
		{name: "negative timeout", opts: Options{URI: "http://example.com", Timeout: -time.Second}, field: "timeout", wantErr: true},
		{name: "negative max tries", opts: Options{URI: "http://example.com", MaxTries: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateOptions(v, &tt.opts)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsErrorType(err, ValidationError))

			var verr *validationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.field)
		})
	}
}
