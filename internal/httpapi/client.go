// Package httpapi is the outbound HTTP client the session core and page
// code share. It attaches the bearer token to every request unless a call
// opts out, turns non-2xx responses into typed errors, and reports 401s
// to a single unauthorized handler so an expired or revoked token forces
// a logout no matter which call observed it.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Error is the typed error for any non-2xx response. Status and Body
// carry the raw outcome for callers that branch on them; Message is a
// generic user-facing string chosen by status class.
type Error struct {
	Status  int
	Body    []byte
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// Options configures a single request.
type Options struct {
	// Method defaults to GET.
	Method string

	// Body is JSON-serialized unless it is an io.Reader, which is sent
	// as-is (the multipart/form-data escape hatch).
	Body any

	// Header holds extra request headers. Content-Type is only set by
	// the client when the caller has not set one.
	Header http.Header

	// SkipAuth suppresses both the bearer header and the unauthorized
	// callback. The login call sets it: that request authenticates itself.
	SkipAuth bool
}

// TokenSource supplies the current access token, if any. Wired to the
// durable keyring tier at composition time.
type TokenSource func() (string, bool)

// Client wraps outbound calls to the auth API. The unauthorized handler
// is a constructor dependency rather than a mutable global so the
// 401-forces-logout link is visible in the dependency graph.
type Client struct {
	baseURL        string
	hc             *http.Client
	tokens         TokenSource
	onUnauthorized func()
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client (tests, transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithUnauthorizedHandler sets the callback invoked when an authenticated
// call returns 401. The session store passes its forced-logout entry
// point here.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// New creates a client for the API at baseURL. tokens may be nil when the
// client is only used for skip-auth calls.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		hc:      http.DefaultClient,
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs a request and returns the raw response body. On any non-2xx
// status it returns a *Error; on 401 (unless SkipAuth) it first invokes
// the unauthorized handler. There are no retries: callers decide.
func (c *Client) Do(ctx context.Context, path string, opts Options) ([]byte, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	header := make(http.Header)
	for k, vs := range opts.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	body, err := serializeBody(opts.Body, header)
	if err != nil {
		return nil, fmt.Errorf("serializing request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header = header

	if !opts.SkipAuth && c.tokens != nil {
		if token, ok := c.tokens(); ok && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	// The unauthorized handler fires before the error returns so the
	// forced logout is already underway when the caller sees the failure.
	if resp.StatusCode == http.StatusUnauthorized && !opts.SkipAuth && c.onUnauthorized != nil {
		c.onUnauthorized()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Status:  resp.StatusCode,
			Body:    data,
			Message: messageForStatus(resp.StatusCode),
		}
	}

	return data, nil
}

// Fetch performs a request and decodes the JSON response into T. An empty
// response body yields the zero value.
func Fetch[T any](ctx context.Context, c *Client, path string, opts Options) (T, error) {
	var out T

	data, err := c.Do(ctx, path, opts)
	if err != nil {
		return out, err
	}
	if len(data) == 0 {
		return out, nil
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding response: %w", err)
	}
	return out, nil
}

// buildURL resolves path against the configured base URL. An empty base
// leaves the path untouched.
func (c *Client) buildURL(path string) string {
	if c.baseURL == "" {
		return path
	}
	if u, err := url.Parse(c.baseURL + path); err == nil {
		return u.String()
	}
	return c.baseURL + path
}

// serializeBody prepares the request body. io.Reader bodies pass through
// unchanged; anything else is JSON, with Content-Type set only when the
// caller has not chosen one.
func serializeBody(body any, header http.Header) (io.Reader, error) {
	if body == nil {
		return nil, nil
	}

	if r, ok := body.(io.Reader); ok {
		return r, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}
	return bytes.NewReader(data), nil
}

// messageForStatus picks the generic user-facing message for a failed
// request: server-class failures read as transient, everything else as a
// processing failure.
func messageForStatus(status int) string {
	if status >= 500 {
		return "Internal error. Please try again shortly."
	}
	return "The request could not be processed."
}
