package notes

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/store"
)

// EventCallback is called after a watcher-driven link change.
// kind is "linked" or "unlinked".
type EventCallback func(kind, articleID, path string)

// Watch starts an fsnotify watcher on the notes directory and keeps the
// store's note links consistent with disk until ctx is cancelled: a note
// file appearing (with an article frontmatter field) links it, a file
// disappearing unlinks it. Rename events trigger a debounced reconciliation
// pass because fsnotify only reports the old path.
func Watch(ctx context.Context, db store.ArticleStore, dir *Dir, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir.Root()); err != nil {
		return err
	}

	logger.Info("notes watcher: started", slog.String("root", dir.Root()))

	// Reconcile once at startup so links survive offline edits.
	reconcile(db, dir, logger, cb)

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("notes watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, dir, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			rel, relErr := filepath.Rel(dir.Root(), ev.Name)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				linkFile(db, dir, rel, logger, cb)

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("notes watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func linkFile(db store.ArticleStore, dir *Dir, rel string, logger *slog.Logger, cb EventCallback) {
	data, err := dir.Read(rel)
	if err != nil {
		logger.Warn("notes watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	id := ArticleID(data)
	if id == "" {
		logger.Debug("notes watcher: no article id", slog.String("path", rel))
		return
	}
	if err := db.LinkNote(id, rel); err != nil {
		logger.Warn("notes watcher: link failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	logger.Debug("notes watcher: linked", slog.String("id", id), slog.String("path", rel))
	if cb != nil {
		cb("linked", id, rel)
	}
}

// reconcile compares the store's note links to the files on disk: links
// whose file vanished are cleared, files with an article id that are not
// linked get linked.
func reconcile(db store.ArticleStore, dir *Dir, logger *slog.Logger, cb EventCallback) {
	links, err := db.AllNoteLinks()
	if err != nil {
		logger.Warn("notes reconcile: links failed", slog.String("error", err.Error()))
		return
	}
	metas, err := dir.List()
	if err != nil {
		logger.Warn("notes reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas)) // article id -> path
	for _, m := range metas {
		if m.ArticleID != "" {
			disk[m.ArticleID] = m.Path
		}
	}

	for id, path := range links {
		if _, ok := disk[id]; ok {
			continue
		}
		if err := db.UnlinkNote(id); err != nil {
			logger.Warn("notes reconcile: unlink failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("notes reconcile: unlinked", slog.String("id", id))
		if cb != nil {
			cb("unlinked", id, path)
		}
	}

	for id, path := range disk {
		if links[id] == path {
			continue
		}
		if err := db.LinkNote(id, path); err != nil {
			logger.Warn("notes reconcile: link failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("notes reconcile: linked", slog.String("id", id), slog.String("path", path))
		if cb != nil {
			cb("linked", id, path)
		}
	}
}
