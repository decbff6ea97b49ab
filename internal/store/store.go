// Package store provides the SQLite-backed article library: durable,
// deduplicated article rows, per-article user status, tags, and per-source
// fetch history.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS articles (
	id           TEXT PRIMARY KEY,
	entry_url    TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	authors      TEXT NOT NULL DEFAULT '[]',
	abstract     TEXT NOT NULL DEFAULT '',
	categories   TEXT NOT NULL DEFAULT '[]',
	published_at DATETIME NOT NULL,
	pdf_url      TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS article_status (
	article_id TEXT PRIMARY KEY,
	is_saved   INTEGER NOT NULL DEFAULT 0,
	is_viewed  INTEGER NOT NULL DEFAULT 0,
	saved_at   DATETIME,
	viewed_at  DATETIME,
	note_path  TEXT
);

CREATE TABLE IF NOT EXISTS fetched_categories (
	category_code TEXT PRIMARY KEY,
	category_name TEXT NOT NULL DEFAULT '',
	last_fetched  DATETIME NOT NULL,
	article_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tags (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT UNIQUE NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS article_tags (
	article_id TEXT NOT NULL,
	tag_id     INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (article_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at);
CREATE INDEX IF NOT EXISTS idx_articles_categories ON articles(categories);
CREATE INDEX IF NOT EXISTS idx_status_saved ON article_status(is_saved);
CREATE INDEX IF NOT EXISTS idx_status_viewed ON article_status(is_viewed);
CREATE INDEX IF NOT EXISTS idx_article_tags_tag ON article_tags(tag_id);
`

// ArticleStore defines the operations the sync controller, query service,
// and status handlers depend on. Consumers should accept this interface
// rather than the concrete *DB type.
type ArticleStore interface {
	UpsertArticle(c Candidate) (UpsertOutcome, error)
	UpsertBatch(cands []Candidate) (BatchResult, error)

	GetByID(id string) (*Article, error)
	GetByIDs(ids []string) ([]Article, error)
	GetByCategory(code string, limit, offset int) ([]Article, error)
	GetRecent(limit, offset int) ([]Article, error)
	Search(text string, limit int) ([]Article, error)
	SearchInCategories(text string, codes []string, limit int) ([]Article, error)
	GetSaved() ([]Article, error)
	GetByTag(tag string) ([]Article, error)
	GetUnread(limit int) ([]Article, error)

	SetSaved(id string, saved bool) error
	MarkViewed(id string) error
	MarkUnread(id string) error
	SetTags(id string, names []string) error
	GetTags(id string) ([]string, error)
	AllTags() ([]TagCount, error)
	LinkNote(id, path string) error
	UnlinkNote(id string) error
	AllNoteLinks() (map[string]string, error)
	GetStatus(id string) (Status, error)

	RecordFetch(key, label string, articleCount int) error
	GetFetchRecord(key string) (*FetchRecord, error)
	AllFetchRecords() ([]FetchRecord, error)

	CountAll() (int, error)
	CountSaved() (int, error)
	CountUnreadByCategory(code string) (int, error)
	CountUnreadByTag(tag string) (int, error)
	CountUnreadByFilter(codes []string, text string) (int, error)

	Close() error
}

// Verify *DB satisfies ArticleStore at compile time.
var _ ArticleStore = (*DB)(nil)

// DB wraps a sql.DB with article-store operations. Every mutator runs as a
// single SQLite transaction, so concurrent readers and the background sync
// writer only ever observe complete before/after states.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
