package arxiv

import (
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/store"
)

// Normalize converts a raw feed entry into a store candidate. Entries
// without a usable identifier are rejected; everything downstream operates
// on the canonical shape only.
func Normalize(e Entry) (store.Candidate, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return store.Candidate{}, fmt.Errorf("arxiv: entry %q: %w", e.Title, apperr.ErrMissingID)
	}

	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}

	cats := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}

	return store.Candidate{
		ID:         id,
		EntryURL:   e.EntryURL,
		Title:      collapseWhitespace(e.Title),
		Authors:    authors,
		Abstract:   strings.TrimSpace(e.Summary),
		Categories: cats,
		Published:  e.Published,
		PDFURL:     e.PDFURL,
	}, nil
}

// collapseWhitespace flattens the newline-wrapped titles the export API
// returns into single-line text.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
