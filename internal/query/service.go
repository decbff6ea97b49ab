// Package query is the read facade the foreground consumes: it clamps
// result limits and composes compound filters by intersecting identifier
// sets, keeping the store's own query surface small.
package query

import (
	"context"

	"github.com/starford/ansuz/internal/store"
)

// Result size bounds enforced on every listing.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ListRequest describes one foreground listing. Criteria compose: category
// AND tag, category AND text, saved AND tag, and so on.
type ListRequest struct {
	Category string
	Tag      string
	Text     string
	Saved    bool
	Unread   bool
	Limit    int
	Offset   int
}

// Service translates foreground requests into store reads.
type Service struct {
	db store.ArticleStore
}

// NewService creates a query service over db.
func NewService(db store.ArticleStore) *Service {
	return &Service{db: db}
}

// Get returns a single article with its status.
func (s *Service) Get(_ context.Context, id string) (*store.Article, error) {
	return s.db.GetByID(id)
}

// Tags returns all tags with article counts.
func (s *Service) Tags(_ context.Context) ([]store.TagCount, error) {
	return s.db.AllTags()
}

// List runs a listing with any combination of criteria. The most selective
// criterion drives the primary store read; remaining criteria are applied
// as identifier-set filters, then paging.
func (s *Service) List(_ context.Context, req ListRequest) ([]store.Article, error) {
	limit := clampLimit(req.Limit)
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	primary, used, err := s.primaryRead(req, limit, offset)
	if err != nil {
		return nil, err
	}

	filters, err := s.secondaryFilters(req, used)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 && used.paged {
		return primary, nil
	}

	out := make([]store.Article, 0, limit)
	skipped := 0
	for _, art := range primary {
		if !matchesAll(art.ID, filters) {
			continue
		}
		if !used.paged && skipped < offset {
			skipped++
			continue
		}
		out = append(out, art)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// usedCriteria tracks which criteria the primary read already satisfied.
type usedCriteria struct {
	category bool
	tag      bool
	text     bool
	saved    bool
	unread   bool
	paged    bool
}

func (s *Service) primaryRead(req ListRequest, limit, offset int) ([]store.Article, usedCriteria, error) {
	compound := countCriteria(req) > 1

	switch {
	case req.Text != "":
		var codes []string
		if req.Category != "" {
			codes = []string{req.Category}
		}
		arts, err := s.db.SearchInCategories(req.Text, codes, searchCap(compound, limit, offset))
		return arts, usedCriteria{text: true, category: req.Category != ""}, err

	case req.Saved:
		arts, err := s.db.GetSaved()
		return arts, usedCriteria{saved: true}, err

	case req.Tag != "":
		arts, err := s.db.GetByTag(req.Tag)
		return arts, usedCriteria{tag: true}, err

	case req.Unread:
		arts, err := s.db.GetUnread(-1)
		return arts, usedCriteria{unread: true}, err

	case req.Category != "":
		arts, err := s.db.GetByCategory(req.Category, limit, offset)
		return arts, usedCriteria{category: true, paged: true}, err

	default:
		arts, err := s.db.GetRecent(limit, offset)
		return arts, usedCriteria{paged: true}, err
	}
}

func (s *Service) secondaryFilters(req ListRequest, used usedCriteria) ([]map[string]struct{}, error) {
	var filters []map[string]struct{}

	if req.Category != "" && !used.category {
		arts, err := s.db.GetByCategory(req.Category, -1, 0)
		if err != nil {
			return nil, err
		}
		filters = append(filters, idSet(arts))
	}
	if req.Tag != "" && !used.tag {
		arts, err := s.db.GetByTag(req.Tag)
		if err != nil {
			return nil, err
		}
		filters = append(filters, idSet(arts))
	}
	if req.Saved && !used.saved {
		arts, err := s.db.GetSaved()
		if err != nil {
			return nil, err
		}
		filters = append(filters, idSet(arts))
	}
	if req.Unread && !used.unread {
		arts, err := s.db.GetUnread(-1)
		if err != nil {
			return nil, err
		}
		filters = append(filters, idSet(arts))
	}
	return filters, nil
}

func idSet(arts []store.Article) map[string]struct{} {
	set := make(map[string]struct{}, len(arts))
	for _, a := range arts {
		set[a.ID] = struct{}{}
	}
	return set
}

func matchesAll(id string, filters []map[string]struct{}) bool {
	for _, f := range filters {
		if _, ok := f[id]; !ok {
			return false
		}
	}
	return true
}

func countCriteria(req ListRequest) int {
	n := 0
	for _, set := range []bool{req.Category != "", req.Tag != "", req.Text != "", req.Saved, req.Unread} {
		if set {
			n++
		}
	}
	return n
}

// searchCap widens the primary search read when further filters will shrink
// it, so paging still sees enough rows.
func searchCap(compound bool, limit, offset int) int {
	if compound {
		return MaxLimit + offset
	}
	return limit + offset
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
