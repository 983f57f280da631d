// Package github provides a GraphQL client for the GitHub API.
//
// The client is deliberately thin: it posts a query with its variables and
// returns either the raw data payload or a *QueryError describing what went
// wrong. A QueryError keeps everything the caller needs to classify the
// failure without probing ad hoc fields:
//   - Kind: transport, HTTP status, GraphQL errors, or undecodable body
//   - Headers: the response headers, nil when no response was received
//   - Data: the partial payload GitHub sometimes returns next to errors
//   - RetryAfter: the retry directive sent with secondary rate limits
//
// Classification (abort, record, keep the partial payload) belongs to the
// crawl tasks, not to this package.
//
// Requests can be paced with a token bucket (golang.org/x/time/rate) and
// routed through a SOCKS5 proxy (golang.org/x/net/proxy).
package github
