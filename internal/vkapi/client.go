package vkapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "vknotify/pkg/logx"
)

// DefaultEndpoint is the production API URL.
const DefaultEndpoint = "http://api.vkontakte.ru/api.php"

// maxBodyBytes bounds how much of a reply we are willing to buffer.
const maxBodyBytes = 1 << 20

// HTTPDoer executes HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends signed parameter sets to the API endpoint.
type Client struct {
	endpoint *url.URL
	http     HTTPDoer
	log      logx.Logger
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(d HTTPDoer) ClientOption {
	return func(c *Client) {
		if d != nil {
			c.http = d
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
// Zero disables the timeout. Ignored when WithHTTPClient is also given.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if hc, ok := c.http.(*http.Client); ok {
			cp := *hc
			cp.Timeout = d
			c.http = &cp
		}
	}
}

func WithLogger(log logx.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient parses endpoint (DefaultEndpoint when empty) and applies opts.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("api endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("api endpoint %q: missing host", endpoint)
	}
	c := &Client{
		endpoint: u,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c, nil
}

// Endpoint returns the endpoint URL without query.
func (c *Client) Endpoint() string { return c.endpoint.String() }

// Send issues one GET with params as the query string and parses the reply.
//
// The returned error is always a *TransportError; API-level failures come
// back as a Response whose Error is set.
func (c *Client) Send(ctx context.Context, params Params) (*Response, error) {
	u := *c.endpoint
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Op: "read", Status: resp.StatusCode, Err: err}
	}
	if c.log.Enabled(logx.LevelTrace) {
		c.log.Trace("api reply",
			logx.Int("status", resp.StatusCode),
			logx.Int("bytes", len(body)),
			logx.Duration("took", time.Since(start)),
		)
	}

	out, err := ParseResponse(body)
	if err != nil {
		status := 0
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			status = resp.StatusCode
		}
		return nil, &TransportError{Op: "decode", Status: status, Err: err}
	}
	if out.Error == nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, &TransportError{Op: "status", Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	return out, nil
}

// ParseResponse decodes an API reply body. A top-level "error" member yields
// the error variant; any other JSON object is the success variant.
func ParseResponse(body []byte) (*Response, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if top == nil {
		return nil, errors.New("reply is not a json object")
	}
	raw := json.RawMessage(append([]byte(nil), body...))
	errRaw, ok := top["error"]
	if !ok {
		return &Response{Raw: raw}, nil
	}
	var ep ErrorPayload
	if err := json.Unmarshal(errRaw, &ep); err != nil {
		return nil, fmt.Errorf("invalid error member: %w", err)
	}
	return &Response{Raw: raw, Error: &ep}, nil
}
