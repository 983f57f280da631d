package task

import (
	"encoding/json"
	"fmt"

	"github.com/nao1215/ghcrawl/internal/model"
)

const repositoriesQuery = `query SearchRepositories($searchQuery: String!, $first: Int!, $after: String) {
  rateLimit { limit remaining cost resetAt }
  search(type: REPOSITORY, query: $searchQuery, first: $first, after: $after) {
    repositoryCount
    pageInfo { hasNextPage endCursor }
    nodes {
      ... on Repository {
        id
        nameWithOwner
        url
        description
        createdAt
        pushedAt
        stargazerCount
        forkCount
        diskUsage
        primaryLanguage { name }
        licenseInfo { spdxId }
        isArchived
        isFork
      }
    }
  }
}`

// newRepositoriesTask builds the repository search of one window page.
func newRepositoriesTask(spec Spec) Task {
	b := &base{spec: spec}
	b.query = func(*Context) string { return repositoriesQuery }
	b.params = func(*Context) map[string]any {
		return searchParams(spec, repositoriesSearchQuery(spec))
	}
	b.decode = newSearchDecoder(func(raw json.RawMessage) (string, error) {
		var repo model.Repository
		if err := json.Unmarshal(raw, &repo); err != nil {
			return "", err
		}
		return repo.ID, nil
	})
	return b
}

// repositoriesSearchQuery builds the search qualifiers. A repository counts
// as active when it was pushed within MaxInactivityDays of the run's upper
// bound.
func repositoriesSearchQuery(spec Spec) string {
	pushedAfter := spec.Window.HasActivityAfter.AddDate(0, 0, -spec.Filters.MaxInactivityDays)
	return fmt.Sprintf("stars:>=%d forks:>=%d size:>=%d pushed:>=%s created:%s archived:false fork:false",
		spec.Filters.MinStars,
		spec.Filters.MinForks,
		spec.Filters.MinSizeInKb,
		pushedAfter.Format(DateLayout),
		spec.Window,
	)
}
