package api

import (
	"github.com/starford/ansuz/internal/store"
)

// SaveRequest is the body for POST /articles/{id}/save.
type SaveRequest struct {
	Saved bool `json:"saved"`
}

// TagsRequest is the body for PUT /articles/{id}/tags; it replaces the
// article's whole tag set.
type TagsRequest struct {
	Tags []string `json:"tags"`
}

// RefreshRequest is the body for POST /refresh. Full selects the larger
// result cap and ignores the recency cutoff; Force bypasses the staleness
// policy.
type RefreshRequest struct {
	Full  bool `json:"full"`
	Force bool `json:"force"`
}

// ArticleListResponse wraps article listings.
type ArticleListResponse struct {
	Articles []store.Article `json:"articles"`
	Count    int             `json:"count"`
}

// TagListResponse wraps the tag listing.
type TagListResponse struct {
	Tags []store.TagCount `json:"tags"`
}

// FetchListResponse wraps fetch-history inspection.
type FetchListResponse struct {
	Fetches []store.FetchRecord `json:"fetches"`
}

// CountsResponse carries the sidebar counters: totals plus unread counts
// keyed by fetch unit and by tag.
type CountsResponse struct {
	Total        int            `json:"total"`
	Saved        int            `json:"saved"`
	UnreadBySpec map[string]int `json:"unread_by_spec"`
	UnreadByTag  map[string]int `json:"unread_by_tag"`
}

// NoteResponse is returned after creating or linking a note.
type NoteResponse struct {
	ArticleID string `json:"article_id"`
	Path      string `json:"path"`
}

// RefreshAccepted acknowledges an asynchronous refresh trigger.
type RefreshAccepted struct {
	Status string `json:"status"`
}
