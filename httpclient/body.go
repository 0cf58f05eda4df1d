package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Encoding is how the payload travels.
type Encoding string

const (
	EncodingQuery      Encoding = "query"
	EncodingJSON       Encoding = "json"
	EncodingJSONString Encoding = "jsonString"
	EncodingMultipart  Encoding = "multipart"
	EncodingForm       Encoding = "form"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// FormFile is a file part of a multipart payload.
type FormFile struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// selectEncoding picks the payload encoding from the method and headers.
func selectEncoding(method string, headers map[string]string, jsonOn bool) Encoding {
	if strings.EqualFold(method, "GET") {
		return EncodingQuery
	}
	contentType, _ := headerValue(headers, headerContentType)
	contentType = strings.ToLower(contentType)
	switch {
	case strings.Contains(contentType, "json"):
		if jsonOn {
			return EncodingJSON
		}
		return EncodingJSONString
	case strings.Contains(contentType, "form-data") || hasFormDataMarker(headers):
		return EncodingMultipart
	default:
		return EncodingForm
	}
}

func hasFormDataMarker(headers map[string]string) bool {
	v, ok := headerValue(headers, headerFormData)
	return ok && v != ""
}

// encodeQuery merges payload into the query string of rawURI.
func encodeQuery(rawURI string, payload map[string]any) (string, error) {
	if len(payload) == 0 {
		return rawURI, nil
	}
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("parse uri: %w", err)
	}
	q := u.Query()
	if err := appendValues(q, payload); err != nil {
		return "", err
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// encodeBody renders payload for a non-GET request. The returned content
// type is empty when the caller's Content-Type header should be kept.
func encodeBody(enc Encoding, payload map[string]any) (body []byte, contentType string, err error) {
	switch enc {
	case EncodingJSON:
		body, err = json.Marshal(payload)
		return body, "", err
	case EncodingJSONString:
		// Same wire bytes as EncodingJSON; only response decoding differs.
		body, err = json.Marshal(payload)
		return body, "", err
	case EncodingMultipart:
		return encodeMultipart(payload)
	case EncodingForm:
		values := url.Values{}
		if err := appendValues(values, payload); err != nil {
			return nil, "", err
		}
		return []byte(values.Encode()), contentTypeForm, nil
	default:
		return nil, "", nil
	}
}

func encodeMultipart(payload map[string]any) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, key := range sortedKeys(payload) {
		if err := writePart(w, key, payload[key]); err != nil {
			return nil, "", fmt.Errorf("multipart field %s: %w", key, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writePart(w *multipart.Writer, key string, value any) error {
	switch v := value.(type) {
	case FormFile:
		return writeFile(w, key, v)
	case *FormFile:
		return writeFile(w, key, *v)
	case []byte:
		return writeFile(w, key, FormFile{Content: bytes.NewReader(v)})
	case io.Reader:
		return writeFile(w, key, FormFile{Content: v})
	}

	if items, ok := sliceItems(value); ok {
		for _, item := range items {
			if err := writePart(w, key, item); err != nil {
				return err
			}
		}
		return nil
	}

	s, err := stringify(value)
	if err != nil {
		return err
	}
	return w.WriteField(key, s)
}

func writeFile(w *multipart.Writer, key string, f FormFile) error {
	name := f.Filename
	if name == "" {
		if named, ok := f.Content.(interface{ Name() string }); ok {
			name = filepath.Base(named.Name())
		} else {
			name = key
		}
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, key, name))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if f.Content == nil {
		return nil
	}
	_, err = io.Copy(part, f.Content)
	return err
}

// appendValues flattens payload into values; slices repeat the key.
func appendValues(values url.Values, payload map[string]any) error {
	for _, key := range sortedKeys(payload) {
		value := payload[key]
		if items, ok := sliceItems(value); ok {
			for _, item := range items {
				s, err := stringify(item)
				if err != nil {
					return fmt.Errorf("field %s: %w", key, err)
				}
				values.Add(key, s)
			}
			continue
		}
		s, err := stringify(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		values.Add(key, s)
	}
	return nil
}

// sliceItems returns the elements of slices and arrays other than []byte.
func sliceItems(value any) ([]any, bool) {
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range rv.Len() {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// stringify renders scalars as text and anything else as JSON.
func stringify(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case json.Number:
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
