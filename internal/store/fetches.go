package store

import (
	"database/sql"
	"fmt"
	"time"
)

// FetchRecord tracks when a fetch unit (category code or filter key) was
// last synchronized and how many new articles that fetch added.
type FetchRecord struct {
	Key          string    `json:"key"`
	Label        string    `json:"label"`
	LastFetched  time.Time `json:"last_fetched"`
	ArticleCount int       `json:"article_count"`
}

// RecordFetch upserts the fetch record for key to now. Only the sync
// controller writes fetch records.
func (db *DB) RecordFetch(key, label string, articleCount int) error {
	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO fetched_categories (category_code, category_name, last_fetched, article_count)
		VALUES (?, ?, ?, ?)
	`, key, label, db.now(), articleCount)
	if err != nil {
		return fmt.Errorf("store: record fetch %s: %w", key, err)
	}
	return nil
}

// GetFetchRecord returns the fetch record for key, or nil when the unit has
// never been fetched.
func (db *DB) GetFetchRecord(key string) (*FetchRecord, error) {
	rec := FetchRecord{Key: key}
	err := db.conn.QueryRow(`
		SELECT category_name, last_fetched, article_count
		FROM fetched_categories WHERE category_code = ?
	`, key).Scan(&rec.Label, &rec.LastFetched, &rec.ArticleCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get fetch record %s: %w", key, err)
	}
	return &rec, nil
}

// AllFetchRecords returns every fetch record, most recent first.
func (db *DB) AllFetchRecords() ([]FetchRecord, error) {
	rows, err := db.conn.Query(`
		SELECT category_code, category_name, last_fetched, article_count
		FROM fetched_categories ORDER BY last_fetched DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: all fetch records: %w", err)
	}
	defer rows.Close()

	var out []FetchRecord
	for rows.Next() {
		var rec FetchRecord
		if err := rows.Scan(&rec.Key, &rec.Label, &rec.LastFetched, &rec.ArticleCount); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
