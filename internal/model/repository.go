package model

import (
	"time"
)

// Repository is a repository node of a REPOSITORY search.
type Repository struct {
	// ID is the GraphQL node id. It is stable across renames and transfers.
	ID string `json:"id"`

	// NameWithOwner is the "owner/name" slug.
	NameWithOwner string `json:"nameWithOwner"`

	// URL is the HTML URL of the repository.
	URL string `json:"url"`

	// Description may be empty.
	Description string `json:"description"`

	CreatedAt time.Time  `json:"createdAt"`
	PushedAt  *time.Time `json:"pushedAt"`

	StargazerCount int `json:"stargazerCount"`
	ForkCount      int `json:"forkCount"`

	// DiskUsage is the repository size in kilobytes.
	DiskUsage int `json:"diskUsage"`

	PrimaryLanguage *Language `json:"primaryLanguage"`
	LicenseInfo     *License  `json:"licenseInfo"`

	IsArchived bool `json:"isArchived"`
	IsFork     bool `json:"isFork"`
}

// Language is a programming language detected by GitHub.
type Language struct {
	Name string `json:"name"`
}

// License is the detected license of a repository.
type License struct {
	SPDXID string `json:"spdxId"` //nolint:tagliatelle // GraphQL field name
}

// Language returns the primary language name, or an empty string.
func (r *Repository) Language() string {
	if r.PrimaryLanguage == nil {
		return ""
	}
	return r.PrimaryLanguage.Name
}

// License returns the SPDX id of the license, or an empty string.
func (r *Repository) License() string {
	if r.LicenseInfo == nil {
		return ""
	}
	return r.LicenseInfo.SPDXID
}
