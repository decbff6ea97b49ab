// Package arxiv provides a minimal client for the arXiv Atom export API and
// the normalizer that converts raw feed entries into store candidates.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public arXiv query endpoint.
const DefaultBaseURL = "https://export.arxiv.org/api/query"

// FetchRequest describes one fetch unit: optional category codes, an
// optional free-text query, and a result cap.
type FetchRequest struct {
	Categories []string
	Query      string
	MaxResults int
}

// Entry is a raw item from the Atom feed, before normalization.
type Entry struct {
	ID         string
	EntryURL   string
	Title      string
	Authors    []string
	Summary    string
	Categories []string
	Published  time.Time
	PDFURL     string
}

// Client fetches article metadata from the arXiv export API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client against baseURL (DefaultBaseURL when empty).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Fetch runs one query against the export API, newest submissions first.
// A request with neither categories nor query text is rejected before any
// network activity.
func (c *Client) Fetch(ctx context.Context, req FetchRequest) ([]Entry, error) {
	query := BuildQuery(req.Categories, req.Query)
	if query == "" {
		return nil, fmt.Errorf("arxiv: empty fetch request")
	}
	max := req.MaxResults
	if max <= 0 {
		max = 100
	}

	q := url.Values{}
	q.Set("search_query", query)
	q.Set("max_results", fmt.Sprintf("%d", max))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv: build request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("arxiv: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv: http %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("arxiv: read body: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv: parse feed: %w", err)
	}

	entries := make([]Entry, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		entries = append(entries, parseAtomEntry(e))
	}
	return entries, nil
}

// BuildQuery assembles an export-API search expression. Top-level category
// codes expand to all their subcategories (cat:cs.*); q-bio and q-fin carry
// a hyphen but are still top-level archives. Free text becomes an all:"..."
// term ANDed with the category clause.
func BuildQuery(codes []string, text string) string {
	var terms []string

	if text != "" {
		terms = append(terms, fmt.Sprintf("all:%q", text))
	}

	var catTerms []string
	for _, code := range codes {
		if code == "" {
			continue
		}
		catTerms = append(catTerms, categoryTerm(code))
	}
	switch len(catTerms) {
	case 0:
	case 1:
		terms = append(terms, catTerms[0])
	default:
		terms = append(terms, "("+strings.Join(catTerms, " OR ")+")")
	}

	return strings.Join(terms, " AND ")
}

func categoryTerm(code string) string {
	if code == "q-bio" || code == "q-fin" {
		return "cat:" + code + ".*"
	}
	if !strings.Contains(code, ".") && !strings.Contains(code, "-") {
		return "cat:" + code + ".*"
	}
	return "cat:" + code
}

// Atom feed structures for the arXiv export API.

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Authors    []atomAuthor   `xml:"author"`
	Categories []atomCategory `xml:"category"`
	Published  string         `xml:"published"`
	Links      []atomLink     `xml:"link"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

func parseAtomEntry(e atomEntry) Entry {
	entry := Entry{
		EntryURL: e.ID,
		Title:    strings.TrimSpace(e.Title),
		Summary:  strings.TrimSpace(e.Summary),
	}

	// The entry ID is a URL like http://arxiv.org/abs/2507.13213v1; the
	// short identifier (version suffix included) is everything after /abs/.
	if idx := strings.LastIndex(e.ID, "/abs/"); idx >= 0 {
		entry.ID = e.ID[idx+len("/abs/"):]
	}

	for _, a := range e.Authors {
		entry.Authors = append(entry.Authors, a.Name)
	}
	for _, c := range e.Categories {
		entry.Categories = append(entry.Categories, c.Term)
	}
	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			entry.PDFURL = l.Href
		}
	}

	entry.Published, _ = time.Parse(time.RFC3339, e.Published)
	return entry
}
