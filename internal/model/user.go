package model

import "time"

// User is a user node of a USER search.
type User struct {
	// ID is the GraphQL node id.
	ID string `json:"id"`

	Login     string    `json:"login"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Location  string    `json:"location"`
	Company   string    `json:"company"`
	CreatedAt time.Time `json:"createdAt"`

	Followers    Count `json:"followers"`
	Repositories Count `json:"repositories"`
}

// Count is a GraphQL connection reduced to its total count.
type Count struct {
	TotalCount int `json:"totalCount"`
}
