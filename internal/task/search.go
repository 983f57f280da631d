package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// searchPayload is the data member shared by the search queries.
type searchPayload struct {
	RateLimit *RateLimit `json:"rateLimit"`
	Search    *struct {
		RepositoryCount int               `json:"repositoryCount"`
		UserCount       int               `json:"userCount"`
		PageInfo        PageInfo          `json:"pageInfo"`
		Nodes           []json.RawMessage `json:"nodes"`
	} `json:"search"`
}

// nodeIDFunc extracts the node id of a search node. An empty id means the
// node does not match the selection (for example an Organization in a user
// search) and is skipped.
type nodeIDFunc func(raw json.RawMessage) (string, error)

// searchParams returns the variables of a search query.
func searchParams(spec Spec, searchQuery string) map[string]any {
	params := map[string]any{
		"searchQuery": searchQuery,
		"first":       spec.PageSize,
		"after":       nil,
	}
	if spec.StartCursor != nil {
		params["after"] = *spec.StartCursor
	}
	return params
}

// newSearchDecoder returns a decodeFunc for a search query. Nodes already in
// the context's seen set are dropped.
func newSearchDecoder(nodeID nodeIDFunc) decodeFunc {
	return func(tc *Context, data json.RawMessage, headers http.Header) (*Result, error) {
		var payload searchPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResult, err)
		}

		result := &Result{
			RateLimit: payload.RateLimit,
			Items:     make([]Item, 0),
		}
		if result.RateLimit == nil {
			result.RateLimit = rateLimitFromHeaders(headers)
		}

		if payload.Search == nil {
			return result, nil
		}

		result.PageInfo = payload.Search.PageInfo
		result.TotalCount = max(payload.Search.RepositoryCount, payload.Search.UserCount)

		// Seen is only updated once the whole page has decoded.
		type decoded struct {
			id  string
			raw json.RawMessage
		}
		nodes := make([]decoded, 0, len(payload.Search.Nodes))
		for _, raw := range payload.Search.Nodes {
			if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
				continue
			}
			id, err := nodeID(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMalformedResult, err)
			}
			if id == "" {
				continue
			}
			nodes = append(nodes, decoded{id: id, raw: raw})
		}

		for _, n := range nodes {
			if !tc.Seen.Add(n.id) {
				continue
			}
			result.Items = append(result.Items, Item{ID: n.id, Data: n.raw})
		}

		return result, nil
	}
}
