package task

import (
	"encoding/json"
	"fmt"

	"github.com/nao1215/ghcrawl/internal/model"
)

const usersQuery = `query SearchUsers($searchQuery: String!, $first: Int!, $after: String) {
  rateLimit { limit remaining cost resetAt }
  search(type: USER, query: $searchQuery, first: $first, after: $after) {
    userCount
    pageInfo { hasNextPage endCursor }
    nodes {
      ... on User {
        id
        login
        name
        url
        location
        company
        createdAt
        followers { totalCount }
        repositories { totalCount }
      }
    }
  }
}`

// newUsersTask builds the user search of one window page.
func newUsersTask(spec Spec) Task {
	b := &base{spec: spec}
	b.query = func(*Context) string { return usersQuery }
	b.params = func(*Context) map[string]any {
		return searchParams(spec, usersSearchQuery(spec))
	}
	b.decode = newSearchDecoder(func(raw json.RawMessage) (string, error) {
		var user model.User
		if err := json.Unmarshal(raw, &user); err != nil {
			return "", err
		}
		return user.ID, nil
	})
	return b
}

func usersSearchQuery(spec Spec) string {
	return fmt.Sprintf("created:%s repos:>=1", spec.Window)
}
