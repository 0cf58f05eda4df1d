package httpclient

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectEncoding(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		headers map[string]string
		jsonOn  bool
		want    Encoding
	}{
		{name: "get", method: "GET", headers: map[string]string{"Content-Type": "application/json"}, jsonOn: true, want: EncodingQuery},
		{name: "lowercase get", method: "get", jsonOn: true, want: EncodingQuery},
		{name: "json", method: "POST", headers: map[string]string{"content-type": "Application/JSON"}, jsonOn: true, want: EncodingJSON},
		{name: "json string", method: "POST", headers: map[string]string{"Content-Type": "application/json"}, jsonOn: false, want: EncodingJSONString},
		{name: "vendor json", method: "PUT", headers: map[string]string{"Content-Type": "application/vnd.api+json"}, jsonOn: true, want: EncodingJSON},
		{name: "multipart content type", method: "POST", headers: map[string]string{"Content-Type": "multipart/form-data"}, want: EncodingMultipart},
		{name: "form-data marker", method: "POST", headers: map[string]string{"Form-data": "true"}, want: EncodingMultipart},
		{name: "form-data marker any value", method: "POST", headers: map[string]string{"Form-data": "false"}, want: EncodingMultipart},
		{name: "form-data marker empty", method: "POST", headers: map[string]string{"Form-data": ""}, want: EncodingForm},
		{name: "default form", method: "DELETE", want: EncodingForm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectEncoding(tt.method, tt.headers, tt.jsonOn))
		})
	}
}

func TestEncodeQuery(t *testing.T) {
	uri, err := encodeQuery("http://example.com/search?q=x", map[string]any{
		"page": 2,
		"tags": []string{"a", "b"},
		"f":    map[string]any{"k": "v"},
	})
	require.NoError(t, err)

	u, err := url.Parse(uri)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "x", q.Get("q"))
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, []string{"a", "b"}, q["tags"])
	assert.JSONEq(t, `{"k":"v"}`, q.Get("f"))
	assert.Equal(t, "/search", u.Path)

	same, err := encodeQuery("http://example.com/?q=x", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/?q=x", same)
}

func TestEncodeBodyJSON(t *testing.T) {
	payload := map[string]any{"id": 1, "name": "a"}

	body, contentType, err := encodeBody(EncodingJSON, payload)
	require.NoError(t, err)
	assert.Empty(t, contentType)
	assert.JSONEq(t, `{"id":1,"name":"a"}`, string(body))

	body, _, err = encodeBody(EncodingJSONString, payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"name":"a"}`, string(body))
	assert.Equal(t, byte('{'), body[0])
}

func TestEncodeBodyForm(t *testing.T) {
	body, contentType, err := encodeBody(EncodingForm, map[string]any{
		"a":    "x y",
		"n":    1.5,
		"ok":   true,
		"list": []int{1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, contentTypeForm, contentType)

	values, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	assert.Equal(t, "x y", values.Get("a"))
	assert.Equal(t, "1.5", values.Get("n"))
	assert.Equal(t, "true", values.Get("ok"))
	assert.Equal(t, []string{"1", "2"}, values["list"])
}

func TestEncodeBodyMultipart(t *testing.T) {
	body, contentType, err := encodeBody(EncodingMultipart, map[string]any{
		"name":   "report",
		"tags":   []string{"a", "b"},
		"raw":    []byte("raw-bytes"),
		"upload": FormFile{Filename: "data.csv", ContentType: "text/csv", Content: strings.NewReader("a,b\n")},
		"stream": io.Reader(bytes.NewBufferString("streamed")),
	})
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)

	form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(1 << 20)
	require.NoError(t, err)

	assert.Equal(t, []string{"report"}, form.Value["name"])
	assert.Equal(t, []string{"a", "b"}, form.Value["tags"])

	require.Len(t, form.File["upload"], 1)
	upload := form.File["upload"][0]
	assert.Equal(t, "data.csv", upload.Filename)
	assert.Equal(t, "text/csv", upload.Header.Get("Content-Type"))
	assert.Equal(t, "a,b\n", readPart(t, upload))

	require.Len(t, form.File["raw"], 1)
	assert.Equal(t, "raw", form.File["raw"][0].Filename)
	assert.Equal(t, "raw-bytes", readPart(t, form.File["raw"][0]))

	require.Len(t, form.File["stream"], 1)
	assert.Equal(t, "streamed", readPart(t, form.File["stream"][0]))
}

func readPart(t *testing.T, fh *multipart.FileHeader) string {
	t.Helper()
	f, err := fh.Open()
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{in: nil, want: ""},
		{in: "s", want: "s"},
		{in: 42, want: "42"},
		{in: int64(-7), want: "-7"},
		{in: uint(3), want: "3"},
		{in: 2.50, want: "2.5"},
		{in: false, want: "false"},
		{in: json.Number("12"), want: "12"},
		{in: struct {
			A int `json:"a"`
		}{A: 1}, want: `{"a":1}`},
	}

	for _, tt := range tests {
		got, err := stringify(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := stringify(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
