package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

// maxBodySize limits the response body read per call. A search page of 100
// repositories with the selected fields stays well below 1MB.
const maxBodySize = 16 * 1024 * 1024

// Response is a successful GraphQL response.
type Response struct {
	// Data is the raw "data" member of the response.
	Data json.RawMessage

	// Headers are the HTTP response headers. GitHub reports the primary
	// rate limit in X-RateLimit-* headers.
	Headers http.Header

	// StatusCode is the HTTP status of the response.
	StatusCode int
}

// Client executes GraphQL queries against a single endpoint.
// It is safe for concurrent use.
type Client struct {
	endpoint   string
	token      string
	userAgent  string
	timeout    time.Duration
	proxyAddr  string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The client's transport is still
// wrapped to inject the credentials. Useful for tests with httptest servers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRequestsPerSecond paces outgoing requests with a token bucket.
// A non-positive value disables pacing.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithProxy routes all requests through a SOCKS5 proxy at "host:port".
func WithProxy(addr string) Option {
	return func(c *Client) {
		c.proxyAddr = addr
	}
}

// NewClient creates a GraphQL client for endpoint authenticated with token.
//
// No request is made here; a bad token surfaces as a KindHTTP QueryError on
// the first call.
func NewClient(endpoint, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}

	c := &Client{
		endpoint: endpoint,
		token:    token,
		timeout:  60 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		transport, err := c.newTransport()
		if err != nil {
			return nil, err
		}
		c.httpClient = &http.Client{
			Transport: transport,
			Timeout:   c.timeout,
		}
	}

	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *c.httpClient
	wrapped.Transport = &authTransport{
		base:      base,
		token:     c.token,
		userAgent: c.userAgent,
	}
	c.httpClient = &wrapped

	return c, nil
}

// newTransport builds the HTTP transport, dialing through the SOCKS5 proxy
// when one is configured.
func (c *Client) newTransport() (*http.Transport, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if c.proxyAddr == "" {
		return transport, nil
	}

	if !isValidProxyAddress(c.proxyAddr) {
		return nil, ErrInvalidProxyAddress
	}

	dialer, err := proxy.SOCKS5("tcp", c.proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	transport.Proxy = nil
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}

	return transport, nil
}

// isValidProxyAddress checks if the address is in valid "host:port" format.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// request is the GraphQL request body.
type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// envelope is the GraphQL response body.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Errors  []GraphQLError  `json:"errors"`
	Message string          `json:"message"`
}

// Query executes query with variables. The call is bound to ctx: cancelling
// ctx aborts the round trip and yields a KindTransport QueryError wrapping
// the context error.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &QueryError{Kind: KindTransport, Message: "request pacing interrupted", Err: err}
		}
	}

	body, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to encode GraphQL request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &QueryError{Kind: KindTransport, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &QueryError{
			Kind:       KindTransport,
			StatusCode: resp.StatusCode,
			Message:    "failed to read response body",
			Headers:    resp.Header.Clone(),
			Err:        err,
		}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		qe := &QueryError{
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
			Headers:    resp.Header.Clone(),
			RetryAfter: parseRetryAfter(resp.Header, c.now()),
		}
		if decodeErr == nil {
			if env.Message != "" {
				qe.Message = env.Message
			}
			qe.Errors = env.Errors
			if !isNullJSON(env.Data) {
				qe.Data = env.Data
			}
		}
		return nil, qe
	}

	if decodeErr != nil {
		return nil, &QueryError{
			Kind:       KindDecode,
			StatusCode: resp.StatusCode,
			Message:    "response is not a GraphQL envelope",
			Headers:    resp.Header.Clone(),
			Err:        decodeErr,
		}
	}

	if len(env.Errors) > 0 {
		qe := &QueryError{
			Kind:       KindGraphQL,
			StatusCode: resp.StatusCode,
			Message:    joinMessages(env.Errors),
			Headers:    resp.Header.Clone(),
			Errors:     env.Errors,
			RetryAfter: parseRetryAfter(resp.Header, c.now()),
		}
		if !isNullJSON(env.Data) {
			qe.Data = env.Data
		}
		return nil, qe
	}

	return &Response{
		Data:       env.Data,
		Headers:    resp.Header.Clone(),
		StatusCode: resp.StatusCode,
	}, nil
}

// joinMessages joins GraphQL error messages into one line.
func joinMessages(errs []GraphQLError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// authTransport wraps an http.RoundTripper to inject the bearer token and
// User-Agent into every request.
type authTransport struct {
	base      http.RoundTripper
	token     string
	userAgent string
}

// RoundTrip implements http.RoundTripper.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.token != "" {
		clone.Header.Set("Authorization", "bearer "+t.token)
	}
	if t.userAgent != "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}

	return t.base.RoundTrip(clone)
}
