// Package notes manages the per-article Markdown notes directory: file
// naming, templated creation, and a watcher that keeps the store's note
// links consistent with what is actually on disk.
package notes

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/store"
)

// Meta describes one note file on disk.
type Meta struct {
	Path      string // relative to the notes root
	ArticleID string // from frontmatter; empty when unparseable
	UpdatedAt time.Time
}

// Dir is the notes directory. Note files are flat, one per article, named
// after the article identifier.
type Dir struct {
	root string // absolute path
}

// NewDir creates the notes directory if needed and returns a handle.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("notes: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("notes: create root: %w", err)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute notes directory path.
func (d *Dir) Root() string {
	return d.root
}

// FileName returns the note file name for an article identifier. Old-style
// identifiers carry a slash (hep-th/9901001) which is not usable in a flat
// file name.
func FileName(articleID string) string {
	return strings.ReplaceAll(articleID, "/", "_") + ".md"
}

// safePath resolves a relative path against the notes root and rejects any
// result that escapes it.
func (d *Dir) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if cleaned == "" || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("notes: invalid path: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(d.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("notes: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, d.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("notes: path escapes notes root: %s", rel)
	}
	return abs, nil
}

// Create writes a templated note for the article and returns its relative
// path. An existing note is left untouched and its path returned.
func (d *Dir) Create(art *store.Article) (string, error) {
	rel := FileName(art.ID)
	abs, err := d.safePath(rel)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err == nil {
		return rel, nil
	}

	content := noteTemplate(art)

	// Atomic write: temp file in the same directory, then rename.
	tmp, err := os.CreateTemp(d.root, ".note-*")
	if err != nil {
		return "", fmt.Errorf("notes: create temp: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("notes: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("notes: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("notes: rename temp: %w", err)
	}
	return rel, nil
}

// Read returns the raw bytes of the note at rel.
func (d *Dir) Read(rel string) ([]byte, error) {
	abs, err := d.safePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("notes: read %s: %w", rel, err)
	}
	return data, nil
}

// List returns metadata for every .md file in the notes directory.
func (d *Dir) List() ([]Meta, error) {
	var out []Meta
	err := filepath.WalkDir(d.root, func(p string, e fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(d.root, p)
		out = append(out, Meta{
			Path:      rel,
			ArticleID: ArticleID(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("notes: list: %w", err)
	}
	return out, nil
}

func noteTemplate(art *store.Article) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "article: %q\n", art.ID)
	fmt.Fprintf(&b, "title: %q\n", art.Title)
	fmt.Fprintf(&b, "url: %q\n", art.EntryURL)
	fmt.Fprintf(&b, "created: %s\n", time.Now().Format("2006-01-02"))
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", art.Title)
	if len(art.Authors) > 0 {
		fmt.Fprintf(&b, "*%s*\n\n", strings.Join(art.Authors, ", "))
	}
	b.WriteString("## Notes\n\n")
	return b.String()
}
