package testclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

// Response is a fully read response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// JSONField looks up a gjson path in the body, e.g. "items.0.id".
func (r *Response) JSONField(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// AssertStatus fails t unless the status is want.
func (r *Response) AssertStatus(t testing.TB, want int) *Response {
	t.Helper()
	if r.Status != want {
		t.Errorf("status = %d, want %d; body: %s", r.Status, want, truncate(r.Body))
	}
	return r
}

// AssertHeader fails t unless the first value of name is want.
func (r *Response) AssertHeader(t testing.TB, name, want string) *Response {
	t.Helper()
	if got := r.Header.Get(name); got != want {
		t.Errorf("header %s = %q, want %q", name, got, want)
	}
	return r
}

// AssertBodyContains fails t unless the body contains substr.
func (r *Response) AssertBodyContains(t testing.TB, substr string) *Response {
	t.Helper()
	if !bytes.Contains(r.Body, []byte(substr)) {
		t.Errorf("body does not contain %q; body: %s", substr, truncate(r.Body))
	}
	return r
}

// AssertJSON fails t unless the body is JSON equal to want, ignoring
// formatting and key order.
func (r *Response) AssertJSON(t testing.TB, want string) *Response {
	t.Helper()
	var got, exp any
	if err := json.Unmarshal(r.Body, &got); err != nil {
		t.Errorf("body is not JSON: %v; body: %s", err, truncate(r.Body))
		return r
	}
	if err := json.Unmarshal([]byte(want), &exp); err != nil {
		t.Errorf("expected value is not JSON: %v", err)
		return r
	}
	if !reflect.DeepEqual(got, exp) {
		t.Errorf("body = %s, want %s", strings.TrimSpace(string(r.Body)), want)
	}
	return r
}

// AssertJSONField fails t unless the gjson path resolves to want.
func (r *Response) AssertJSONField(t testing.TB, path, want string) *Response {
	t.Helper()
	res := r.JSONField(path)
	if !res.Exists() {
		t.Errorf("JSON path %q not found; body: %s", path, truncate(r.Body))
		return r
	}
	if res.String() != want {
		t.Errorf("JSON path %q = %q, want %q", path, res.String(), want)
	}
	return r
}

func truncate(b []byte) string {
	const limit = 512
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
