// Package testutil provides shared test helpers for setting up stores and note directories.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/notes"
	"github.com/starford/ansuz/internal/store"
)

// TestStore creates a temporary SQLite store that is automatically cleaned up.
func TestStore(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestNotesDir creates a temporary notes directory.
func TestNotesDir(t *testing.T) (string, *notes.Dir) {
	t.Helper()
	root := t.TempDir()
	dir, err := notes.NewDir(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, dir
}

// Candidate builds a minimal upsert candidate for tests.
func Candidate(id string, categories ...string) store.Candidate {
	return store.Candidate{
		ID:         id,
		Title:      "Title of " + id,
		Authors:    []string{"A. Author"},
		Abstract:   "Abstract of " + id,
		Categories: categories,
		Published:  time.Date(2026, 7, 18, 12, 0, 0, 0, time.UTC),
		EntryURL:   "https://arxiv.org/abs/" + id,
		PDFURL:     "https://arxiv.org/pdf/" + id,
	}
}
