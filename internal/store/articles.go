package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

// Candidate is a normalized article ready for ingestion.
type Candidate struct {
	ID         string
	EntryURL   string
	Title      string
	Authors    []string
	Abstract   string
	Categories []string
	Published  time.Time
	PDFURL     string
}

// Article is a stored article row joined with its user status.
type Article struct {
	ID         string     `json:"id"`
	EntryURL   string     `json:"entry_url"`
	Title      string     `json:"title"`
	Authors    []string   `json:"authors"`
	Abstract   string     `json:"abstract"`
	Categories []string   `json:"categories"`
	Published  time.Time  `json:"published_at"`
	PDFURL     string     `json:"pdf_url"`
	FirstSeen  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	IsSaved    bool       `json:"is_saved"`
	IsViewed   bool       `json:"is_viewed"`
	SavedAt    *time.Time `json:"saved_at,omitempty"`
	ViewedAt   *time.Time `json:"viewed_at,omitempty"`
	NotePath   string     `json:"note_path,omitempty"`
	HasTags    bool       `json:"has_tags"`
}

// UpsertOutcome reports which branch an upsert took.
type UpsertOutcome string

const (
	OutcomeInserted UpsertOutcome = "inserted"
	OutcomeMerged   UpsertOutcome = "merged"
)

// BatchResult summarizes a batch upsert. Dropped counts candidates rejected
// per-item (missing identifier); Errors carries one error per dropped item.
type BatchResult struct {
	Inserted int
	Merged   int
	Dropped  int
	Errors   []error
}

// UpsertArticle inserts a new article or merges the candidate into an
// existing row with the same identifier. On merge the category set becomes
// the union of stored and candidate categories, descriptive fields are
// overwritten with the candidate's values, and updated_at is refreshed.
// The first-seen timestamp is never touched after insert.
func (db *DB) UpsertArticle(c Candidate) (UpsertOutcome, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	outcome, err := upsertArticleTx(tx, c, db.now())
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit: %w", err)
	}
	return outcome, nil
}

// UpsertBatch applies UpsertArticle semantics to every candidate inside one
// transaction. Candidates without an identifier are dropped and reported in
// the result; storage failures abort the whole batch.
func (db *DB) UpsertBatch(cands []Candidate) (BatchResult, error) {
	var res BatchResult
	if len(cands) == 0 {
		return res, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return res, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := db.now()
	for _, c := range cands {
		if strings.TrimSpace(c.ID) == "" {
			res.Dropped++
			res.Errors = append(res.Errors, fmt.Errorf("store: candidate %q: %w", c.Title, apperr.ErrMissingID))
			continue
		}
		outcome, err := upsertArticleTx(tx, c, now)
		if err != nil {
			return BatchResult{}, err
		}
		if outcome == OutcomeInserted {
			res.Inserted++
		} else {
			res.Merged++
		}
	}

	if err := tx.Commit(); err != nil {
		return BatchResult{}, fmt.Errorf("store: commit batch: %w", err)
	}
	return res, nil
}

func upsertArticleTx(tx *sql.Tx, c Candidate, now time.Time) (UpsertOutcome, error) {
	if strings.TrimSpace(c.ID) == "" {
		return "", apperr.ErrMissingID
	}

	var existing string
	err := tx.QueryRow(`SELECT categories FROM articles WHERE id = ?`, c.ID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(`
			INSERT INTO articles (id, entry_url, title, authors, abstract, categories, published_at, pdf_url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.EntryURL, c.Title, marshalList(c.Authors), c.Abstract, marshalList(c.Categories), c.Published, c.PDFURL, now, now)
		if err != nil {
			return "", fmt.Errorf("store: insert article %s: %w", c.ID, err)
		}
		return OutcomeInserted, nil

	case err != nil:
		return "", fmt.Errorf("store: lookup article %s: %w", c.ID, err)
	}

	merged := unionCategories(unmarshalList(existing), c.Categories)
	_, err = tx.Exec(`
		UPDATE articles
		SET entry_url = ?, title = ?, authors = ?, abstract = ?, categories = ?, published_at = ?, pdf_url = ?, updated_at = ?
		WHERE id = ?
	`, c.EntryURL, c.Title, marshalList(c.Authors), c.Abstract, marshalList(merged), c.Published, c.PDFURL, now, c.ID)
	if err != nil {
		return "", fmt.Errorf("store: merge article %s: %w", c.ID, err)
	}
	return OutcomeMerged, nil
}

// unionCategories appends categories from add that are not already present,
// preserving the stored order so the set never shrinks on refetch.
func unionCategories(existing, add []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := make([]string, 0, len(existing)+len(add))
	for _, c := range existing {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	for _, c := range add {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

func marshalList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func unmarshalList(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// articleColumns is the shared SELECT list for article reads; every query
// joining status must keep this order for scanArticle.
const articleColumns = `
	a.id, a.entry_url, a.title, a.authors, a.abstract, a.categories,
	a.published_at, a.pdf_url, a.created_at, a.updated_at,
	COALESCE(s.is_saved, 0), COALESCE(s.is_viewed, 0),
	s.saved_at, s.viewed_at, COALESCE(s.note_path, ''),
	CASE WHEN at.article_id IS NOT NULL THEN 1 ELSE 0 END`

const articleJoins = `
	FROM articles a
	LEFT JOIN article_status s ON a.id = s.article_id
	LEFT JOIN (SELECT DISTINCT article_id FROM article_tags) at ON a.id = at.article_id`

func scanArticle(rows *sql.Rows) (Article, error) {
	var (
		art               Article
		authors, cats     string
		savedAt, viewedAt sql.NullTime
	)
	err := rows.Scan(
		&art.ID, &art.EntryURL, &art.Title, &authors, &art.Abstract, &cats,
		&art.Published, &art.PDFURL, &art.FirstSeen, &art.UpdatedAt,
		&art.IsSaved, &art.IsViewed, &savedAt, &viewedAt, &art.NotePath, &art.HasTags,
	)
	if err != nil {
		return Article{}, err
	}
	art.Authors = unmarshalList(authors)
	art.Categories = unmarshalList(cats)
	if savedAt.Valid {
		t := savedAt.Time
		art.SavedAt = &t
	}
	if viewedAt.Valid {
		t := viewedAt.Time
		art.ViewedAt = &t
	}
	return art, nil
}

func (db *DB) queryArticles(query string, args ...any) ([]Article, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query articles: %w", err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		art, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan article: %w", err)
		}
		out = append(out, art)
	}
	return out, rows.Err()
}

// GetByID returns a single article, or apperr.ErrNotFound.
func (db *DB) GetByID(id string) (*Article, error) {
	arts, err := db.queryArticles(
		`SELECT `+articleColumns+articleJoins+` WHERE a.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(arts) == 0 {
		return nil, apperr.ErrNotFound
	}
	return &arts[0], nil
}

// GetByIDs returns articles for the given identifiers, newest first.
func (db *DB) GetByIDs(ids []string) ([]Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return db.queryArticles(
		`SELECT `+articleColumns+articleJoins+
			` WHERE a.id IN (`+placeholders+`) ORDER BY a.published_at DESC`, args...)
}

// GetByCategory returns articles whose category set contains code,
// newest first.
func (db *DB) GetByCategory(code string, limit, offset int) ([]Article, error) {
	return db.queryArticles(
		`SELECT `+articleColumns+articleJoins+
			` WHERE a.categories LIKE ? ORDER BY a.published_at DESC LIMIT ? OFFSET ?`,
		categoryPattern(code), limit, offset)
}

// categoryPattern matches a JSON-encoded category list containing code.
func categoryPattern(code string) string {
	return `%"` + code + `"%`
}

// Search matches text case-insensitively against title, authors, and
// abstract, newest first.
func (db *DB) Search(text string, limit int) ([]Article, error) {
	like := "%" + strings.ToLower(text) + "%"
	return db.queryArticles(
		`SELECT `+articleColumns+articleJoins+`
		 WHERE LOWER(a.title) LIKE ? OR LOWER(a.authors) LIKE ? OR LOWER(a.abstract) LIKE ?
		 ORDER BY a.published_at DESC LIMIT ?`,
		like, like, like, limit)
}

// SearchInCategories restricts Search to articles carrying at least one of
// the given category codes.
func (db *DB) SearchInCategories(text string, codes []string, limit int) ([]Article, error) {
	if len(codes) == 0 {
		return db.Search(text, limit)
	}
	conds := make([]string, len(codes))
	args := make([]any, 0, len(codes)+4)
	for i, code := range codes {
		conds[i] = "a.categories LIKE ?"
		args = append(args, categoryPattern(code))
	}
	like := "%" + strings.ToLower(text) + "%"
	args = append(args, like, like, like, limit)
	return db.queryArticles(
		`SELECT `+articleColumns+articleJoins+`
		 WHERE (`+strings.Join(conds, " OR ")+`)
		   AND (LOWER(a.title) LIKE ? OR LOWER(a.authors) LIKE ? OR LOWER(a.abstract) LIKE ?)
		 ORDER BY a.published_at DESC LIMIT ?`, args...)
}

// GetSaved returns saved articles, most recently saved first.
func (db *DB) GetSaved() ([]Article, error) {
	return db.queryArticles(
		`SELECT ` + articleColumns + `
		 FROM articles a
		 INNER JOIN article_status s ON a.id = s.article_id
		 LEFT JOIN (SELECT DISTINCT article_id FROM article_tags) at ON a.id = at.article_id
		 WHERE s.is_saved = 1
		 ORDER BY s.saved_at DESC`)
}

// GetByTag returns articles carrying the given tag, newest first.
func (db *DB) GetByTag(tag string) ([]Article, error) {
	return db.queryArticles(
		`SELECT `+articleColumns+`
		 FROM articles a
		 LEFT JOIN article_status s ON a.id = s.article_id
		 INNER JOIN article_tags att ON a.id = att.article_id
		 INNER JOIN tags t ON att.tag_id = t.id
		 LEFT JOIN (SELECT DISTINCT article_id FROM article_tags) at ON a.id = at.article_id
		 WHERE t.name = ?
		 ORDER BY a.published_at DESC`, normalizeTag(tag))
}

// GetRecent returns all articles newest first. A negative limit means no
// limit.
func (db *DB) GetRecent(limit, offset int) ([]Article, error) {
	return db.queryArticles(
		`SELECT `+articleColumns+articleJoins+
			` ORDER BY a.published_at DESC LIMIT ? OFFSET ?`, limit, offset)
}

// GetUnread returns articles not yet viewed, newest first.
func (db *DB) GetUnread(limit int) ([]Article, error) {
	return db.queryArticles(
		`SELECT `+articleColumns+articleJoins+`
		 WHERE s.is_viewed IS NULL OR s.is_viewed = 0
		 ORDER BY a.published_at DESC LIMIT ?`, limit)
}

// CountAll returns the total number of stored articles.
func (db *DB) CountAll() (int, error) {
	return db.countRow(`SELECT COUNT(*) FROM articles`)
}

// CountSaved returns the number of saved articles.
func (db *DB) CountSaved() (int, error) {
	return db.countRow(`SELECT COUNT(*) FROM article_status WHERE is_saved = 1`)
}

// CountUnreadByCategory returns the unread count for one category code.
func (db *DB) CountUnreadByCategory(code string) (int, error) {
	return db.countRow(`
		SELECT COUNT(*) FROM articles a
		LEFT JOIN article_status s ON a.id = s.article_id
		WHERE a.categories LIKE ? AND (s.is_viewed IS NULL OR s.is_viewed = 0)`,
		categoryPattern(code))
}

// CountUnreadByTag returns the unread count for one tag.
func (db *DB) CountUnreadByTag(tag string) (int, error) {
	return db.countRow(`
		SELECT COUNT(*) FROM articles a
		LEFT JOIN article_status s ON a.id = s.article_id
		INNER JOIN article_tags att ON a.id = att.article_id
		INNER JOIN tags t ON att.tag_id = t.id
		WHERE t.name = ? AND (s.is_viewed IS NULL OR s.is_viewed = 0)`,
		normalizeTag(tag))
}

// CountUnreadByFilter returns the unread count for a filter spec: articles
// in any of the codes (all articles when codes is empty) matching text
// (any when text is empty).
func (db *DB) CountUnreadByFilter(codes []string, text string) (int, error) {
	var conds []string
	var args []any
	if len(codes) > 0 {
		catConds := make([]string, len(codes))
		for i, code := range codes {
			catConds[i] = "a.categories LIKE ?"
			args = append(args, categoryPattern(code))
		}
		conds = append(conds, "("+strings.Join(catConds, " OR ")+")")
	}
	if text != "" {
		like := "%" + strings.ToLower(text) + "%"
		conds = append(conds, "(LOWER(a.title) LIKE ? OR LOWER(a.authors) LIKE ? OR LOWER(a.abstract) LIKE ?)")
		args = append(args, like, like, like)
	}
	conds = append(conds, "(s.is_viewed IS NULL OR s.is_viewed = 0)")

	return db.countRow(`
		SELECT COUNT(*) FROM articles a
		LEFT JOIN article_status s ON a.id = s.article_id
		WHERE `+strings.Join(conds, " AND "), args...)
}

func (db *DB) countRow(query string, args ...any) (int, error) {
	var n int
	if err := db.conn.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}
