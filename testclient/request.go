package testclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// Request is a request under construction. Builder methods return the
// receiver; the first error is kept and reported by Send.
type Request struct {
	client *Client
	method string
	path   string
	header http.Header
	query  url.Values
	body   []byte
	err    error
}

// Header adds a header value.
func (r *Request) Header(name, value string) *Request {
	r.header.Add(name, value)
	return r
}

// Query adds a query parameter.
func (r *Request) Query(name, value string) *Request {
	if r.query == nil {
		r.query = make(url.Values)
	}
	r.query.Add(name, value)
	return r
}

// Body sets the raw body.
func (r *Request) Body(b []byte) *Request {
	r.body = b
	return r
}

// BodyString sets the body from a string.
func (r *Request) BodyString(s string) *Request {
	r.body = []byte(s)
	return r
}

// ContentType sets the Content-Type header.
func (r *Request) ContentType(ct string) *Request {
	r.header.Set("Content-Type", ct)
	return r
}

// JSON marshals v as the body and sets Content-Type to application/json.
func (r *Request) JSON(v any) *Request {
	b, err := json.Marshal(v)
	if err != nil {
		if r.err == nil {
			r.err = err
		}
		return r
	}
	r.body = b
	return r.ContentType("application/json")
}

// Send issues the request through the client that created it.
func (r *Request) Send(ctx context.Context) (*Response, error) {
	return r.client.Send(ctx, r)
}

func (r *Request) target() string {
	path := r.path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(r.query) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + r.query.Encode()
}
