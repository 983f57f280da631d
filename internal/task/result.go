package task

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// RateLimit is the primary rate-limit telemetry of a call.
type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Cost      int       `json:"cost"`
	ResetAt   time.Time `json:"resetAt"`
}

// PageInfo is the pagination state of a connection.
type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

// Item is one emitted search node.
type Item struct {
	// ID is the GraphQL node id.
	ID string `json:"id"`

	// Data is the node as returned by the API.
	Data json.RawMessage `json:"data"`
}

// Result is the decoded outcome of one page.
type Result struct {
	// RateLimit is nil when the response carried no telemetry at all.
	RateLimit  *RateLimit `json:"rateLimit"`
	PageInfo   PageInfo   `json:"pageInfo"`
	TotalCount int        `json:"totalCount"`

	// Items holds the nodes not seen before in the run.
	Items []Item `json:"items"`
}

// rateLimitFromHeaders reads the X-RateLimit-* headers. It returns nil
// unless both the limit and the remaining count are present.
func rateLimitFromHeaders(h http.Header) *RateLimit {
	if h == nil {
		return nil
	}

	limit, err := strconv.Atoi(h.Get("X-RateLimit-Limit"))
	if err != nil {
		return nil
	}
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return nil
	}

	rl := &RateLimit{Limit: limit, Remaining: remaining}
	if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		rl.ResetAt = time.Unix(reset, 0).UTC()
	}
	return rl
}
