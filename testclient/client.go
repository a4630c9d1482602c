// Package testclient sends requests to a server under test and wraps the
// answers in assertion helpers. A Client talks either to a real address over
// TCP or straight to an http.Handler without a socket.
package testclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Client sends Requests. It holds no per-request state and is safe for
// concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	handler    http.Handler
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each Send, including reading the body. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the http.Client used in network mode.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the server at baseURL, e.g. "http://127.0.0.1:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewForHandler creates a Client that calls h directly.
func NewForHandler(h http.Handler, opts ...Option) *Client {
	c := New("http://testclient.local", opts...)
	c.handler = h
	return c
}

// Send issues req. Failures to get a response come back as *ClientError;
// any status code, 5xx included, is a successful Send.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	if req.err != nil {
		return nil, &ClientError{Kind: KindTransport, Method: req.method, URL: req.path, Err: req.err}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.baseURL + req.target()
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, bytes.NewReader(req.body))
	if err != nil {
		return nil, &ClientError{Kind: KindTransport, Method: req.method, URL: target, Err: err}
	}
	httpReq.Header = req.header.Clone()

	var resp *Response
	if c.handler != nil {
		resp, err = c.serveInProcess(ctx, httpReq)
	} else {
		resp, err = c.roundTrip(httpReq)
	}
	if err != nil {
		return nil, &ClientError{Kind: classify(err), Method: req.method, URL: target, Err: err}
	}
	return resp, nil
}

func (c *Client) roundTrip(httpReq *http.Request) (*Response, error) {
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: body}, nil
}

// serveInProcess runs the handler on its own goroutine so a stuck handler
// still honors the timeout.
func (c *Client) serveInProcess(ctx context.Context, httpReq *http.Request) (*Response, error) {
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	panicked := make(chan any, 1)

	go func() {
		defer close(done)
		defer func() {
			if p := recover(); p != nil {
				panicked <- p
			}
		}()
		c.handler.ServeHTTP(rec, httpReq)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case p := <-panicked:
		return nil, fmt.Errorf("handler panicked: %v", p)
	default:
	}

	result := rec.Result()
	return &Response{Status: result.StatusCode, Header: result.Header, Body: rec.Body.Bytes()}, nil
}

// NewRequest starts a request bound to c.
func (c *Client) NewRequest(method, path string) *Request {
	return &Request{
		client: c,
		method: method,
		path:   path,
		header: make(http.Header),
	}
}

func (c *Client) Get(path string) *Request    { return c.NewRequest(http.MethodGet, path) }
func (c *Client) Post(path string) *Request   { return c.NewRequest(http.MethodPost, path) }
func (c *Client) Put(path string) *Request    { return c.NewRequest(http.MethodPut, path) }
func (c *Client) Patch(path string) *Request  { return c.NewRequest(http.MethodPatch, path) }
func (c *Client) Delete(path string) *Request { return c.NewRequest(http.MethodDelete, path) }
