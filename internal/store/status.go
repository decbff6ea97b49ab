package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Status is the per-article user state. A missing row reads as the zero
// value: not saved, not viewed, no note.
type Status struct {
	IsSaved  bool       `json:"is_saved"`
	IsViewed bool       `json:"is_viewed"`
	SavedAt  *time.Time `json:"saved_at,omitempty"`
	ViewedAt *time.Time `json:"viewed_at,omitempty"`
	NotePath string     `json:"note_path,omitempty"`
}

// TagCount is a tag name with the number of articles carrying it.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SetSaved marks or unmarks an article as saved. Repeated application
// leaves the state unchanged, including the saved timestamp; unsaving
// clears the timestamp.
func (db *DB) SetSaved(id string, saved bool) error {
	var savedAt any
	flag := 0
	if saved {
		flag = 1
		savedAt = db.now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO article_status (article_id, is_saved, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(article_id) DO UPDATE SET
			is_saved = excluded.is_saved,
			saved_at = CASE
				WHEN article_status.is_saved = excluded.is_saved THEN article_status.saved_at
				ELSE excluded.saved_at
			END
	`, id, flag, savedAt)
	if err != nil {
		return fmt.Errorf("store: set saved %s: %w", id, err)
	}
	return nil
}

// MarkViewed marks an article as viewed. The viewed timestamp records the
// first view and is not bumped by repeat calls.
func (db *DB) MarkViewed(id string) error {
	_, err := db.conn.Exec(`
		INSERT INTO article_status (article_id, is_viewed, viewed_at)
		VALUES (?, 1, ?)
		ON CONFLICT(article_id) DO UPDATE SET
			is_viewed = 1,
			viewed_at = COALESCE(article_status.viewed_at, excluded.viewed_at)
	`, id, db.now())
	if err != nil {
		return fmt.Errorf("store: mark viewed %s: %w", id, err)
	}
	return nil
}

// MarkUnread clears the viewed flag and timestamp. A no-op for articles
// without a status row.
func (db *DB) MarkUnread(id string) error {
	_, err := db.conn.Exec(`
		UPDATE article_status SET is_viewed = 0, viewed_at = NULL WHERE article_id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("store: mark unread %s: %w", id, err)
	}
	return nil
}

// LinkNote records the note file path for an article.
func (db *DB) LinkNote(id, path string) error {
	_, err := db.conn.Exec(`
		INSERT INTO article_status (article_id, note_path)
		VALUES (?, ?)
		ON CONFLICT(article_id) DO UPDATE SET note_path = excluded.note_path
	`, id, path)
	if err != nil {
		return fmt.Errorf("store: link note %s: %w", id, err)
	}
	return nil
}

// UnlinkNote clears the note file path for an article.
func (db *DB) UnlinkNote(id string) error {
	_, err := db.conn.Exec(`
		UPDATE article_status SET note_path = NULL WHERE article_id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("store: unlink note %s: %w", id, err)
	}
	return nil
}

// AllNoteLinks returns every linked note as a map of article ID to note
// path. Used by the notes watcher to reconcile links against disk.
func (db *DB) AllNoteLinks() (map[string]string, error) {
	rows, err := db.conn.Query(`
		SELECT article_id, note_path FROM article_status
		WHERE note_path IS NOT NULL AND note_path != ''
	`)
	if err != nil {
		return nil, fmt.Errorf("store: all note links: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, err
		}
		out[id] = path
	}
	return out, rows.Err()
}

// GetStatus returns the user status for an article, zero-valued when no
// status row exists.
func (db *DB) GetStatus(id string) (Status, error) {
	var (
		st                Status
		savedAt, viewedAt sql.NullTime
		notePath          sql.NullString
	)
	err := db.conn.QueryRow(`
		SELECT is_saved, is_viewed, saved_at, viewed_at, note_path
		FROM article_status WHERE article_id = ?
	`, id).Scan(&st.IsSaved, &st.IsViewed, &savedAt, &viewedAt, &notePath)
	if err == sql.ErrNoRows {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("store: get status %s: %w", id, err)
	}
	if savedAt.Valid {
		t := savedAt.Time
		st.SavedAt = &t
	}
	if viewedAt.Valid {
		t := viewedAt.Time
		st.ViewedAt = &t
	}
	st.NotePath = notePath.String
	return st, nil
}

// SetTags replaces the article's tag set with names (case-normalized,
// deduplicated). Tags left without any article are pruned.
func (db *DB) SetTags(id string, names []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM article_tags WHERE article_id = ?`, id); err != nil {
		return fmt.Errorf("store: clear tags %s: %w", id, err)
	}

	now := db.now()
	for _, name := range normalizeTags(names) {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO tags (name, created_at) VALUES (?, ?)`, name, now); err != nil {
			return fmt.Errorf("store: insert tag %q: %w", name, err)
		}
		var tagID int64
		if err := tx.QueryRow(`SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID); err != nil {
			return fmt.Errorf("store: lookup tag %q: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO article_tags (article_id, tag_id, created_at) VALUES (?, ?, ?)`, id, tagID, now); err != nil {
			return fmt.Errorf("store: tag article %s: %w", id, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM article_tags)`); err != nil {
		return fmt.Errorf("store: prune orphan tags: %w", err)
	}

	return tx.Commit()
}

// GetTags returns the article's tags sorted by name.
func (db *DB) GetTags(id string) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT t.name FROM tags t
		INNER JOIN article_tags at ON t.id = at.tag_id
		WHERE at.article_id = ?
		ORDER BY t.name
	`, id)
	if err != nil {
		return nil, fmt.Errorf("store: get tags %s: %w", id, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// AllTags returns every tag with its article count, sorted by name.
func (db *DB) AllTags() ([]TagCount, error) {
	rows, err := db.conn.Query(`
		SELECT t.name, COUNT(at.article_id)
		FROM tags t
		LEFT JOIN article_tags at ON t.id = at.tag_id
		GROUP BY t.id, t.name
		ORDER BY t.name
	`)
	if err != nil {
		return nil, fmt.Errorf("store: all tags: %w", err)
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func normalizeTag(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeTags(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = normalizeTag(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
