package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client construction errors.
var (
	// ErrInvalidEndpoint is returned when the endpoint is not an absolute URL.
	ErrInvalidEndpoint = errors.New("invalid GraphQL endpoint")

	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrEmptyQuery is returned when Query is called with an empty query text.
	ErrEmptyQuery = errors.New("empty GraphQL query")
)

// ErrorKind classifies a failed GraphQL call.
type ErrorKind int

const (
	// KindTransport indicates that no usable HTTP response was received:
	// connection failures, timeouts and context cancellation.
	KindTransport ErrorKind = iota

	// KindHTTP indicates a non-2xx HTTP status.
	KindHTTP

	// KindGraphQL indicates a 2xx response carrying a GraphQL errors array.
	KindGraphQL

	// KindDecode indicates a 2xx response whose body is not a GraphQL envelope.
	KindDecode
)

// String returns a human-readable name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTP:
		return "http"
	case KindGraphQL:
		return "graphql"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// GraphQLError is one entry of the GraphQL errors array.
type GraphQLError struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// QueryError is the structured failure returned by Client.Query.
type QueryError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// StatusCode is the HTTP status, zero for transport failures.
	StatusCode int

	// Message is the primary diagnostic message.
	Message string

	// Headers are the response headers. Nil when no response was received.
	Headers http.Header

	// Errors holds the GraphQL errors array, if any.
	Errors []GraphQLError

	// Data is the partial data payload returned next to the errors.
	// Nil when the response carried no data or "data": null.
	Data json.RawMessage

	// RetryAfter is the parsed Retry-After directive, nil when absent.
	// A present but unparsable header yields zero.
	RetryAfter *time.Duration

	// Err is the underlying error for transport and decode failures.
	Err error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "graphql %s error", e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Unwrap returns the underlying error so that errors.Is works with
// context.Canceled and context.DeadlineExceeded.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// HasResponse reports whether response metadata (headers) is available.
func (e *QueryError) HasResponse() bool {
	return e.Headers != nil
}

// HasPartialData reports whether a partial data payload is available.
func (e *QueryError) HasPartialData() bool {
	return len(e.Data) > 0
}

// HasRetryAfter reports whether the server sent a retry directive.
func (e *QueryError) HasRetryAfter() bool {
	return e.RetryAfter != nil
}

// parseRetryAfter parses a Retry-After header given either as delay seconds
// or as an HTTP date. It returns nil only when the header is absent; a
// present header that cannot be parsed still signals a retry directive and
// yields a zero delay.
func parseRetryAfter(h http.Header, now time.Time) *time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return nil
	}

	if seconds, err := strconv.Atoi(v); err == nil {
		if seconds < 0 {
			seconds = 0
		}
		d := time.Duration(seconds) * time.Second
		return &d
	}

	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}

	var zero time.Duration
	return &zero
}

// isNullJSON reports whether raw is empty or the JSON literal null.
func isNullJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
