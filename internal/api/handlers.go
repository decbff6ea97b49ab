package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/notes"
	"github.com/starford/ansuz/internal/query"
	"github.com/starford/ansuz/internal/store"
	syncpkg "github.com/starford/ansuz/internal/sync"
)

// Notifier receives article/note change notifications for the SSE stream.
// Implemented by the sse.Broker; nil disables publishing.
type Notifier interface {
	PublishArticleUpdated(id string)
	PublishNoteEvent(kind, articleID, path string)
}

// PassBuilder assembles pass options for a refresh trigger; wired from
// config in entry.go so handlers stay free of config knowledge.
type PassBuilder func(full, forced bool) syncpkg.PassOptions

// Handler holds API route handlers.
type Handler struct {
	queries  *query.Service
	db       store.ArticleStore
	notes    *notes.Dir
	runner   *syncpkg.Runner
	passOpts PassBuilder
	notify   Notifier
}

// NewHandler creates a Handler. notesDir and notify may be nil.
func NewHandler(q *query.Service, db store.ArticleStore, notesDir *notes.Dir, runner *syncpkg.Runner, passOpts PassBuilder, notify Notifier) *Handler {
	return &Handler{queries: q, db: db, notes: notesDir, runner: runner, passOpts: passOpts, notify: notify}
}

// articleID extracts and unescapes the {id} route parameter.
func articleID(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListArticles handles GET /api/articles with optional category, tag, q,
// saved, unread, limit, and offset query parameters.
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	req := query.ListRequest{
		Category: q.Get("category"),
		Tag:      q.Get("tag"),
		Text:     q.Get("q"),
		Saved:    q.Get("saved") == "true",
		Unread:   q.Get("unread") == "true",
		Limit:    limit,
		Offset:   offset,
	}

	arts, err := h.queries.List(r.Context(), req)
	if err != nil {
		slog.Error("list articles failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if arts == nil {
		arts = []store.Article{}
	}
	writeJSON(w, http.StatusOK, ArticleListResponse{Articles: arts, Count: len(arts)})
}

// GetArticle handles GET /api/articles/{id}.
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	id := articleID(r)
	art, err := h.queries.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get article failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, art)
}

// SaveArticle handles POST /api/articles/{id}/save.
func (h *Handler) SaveArticle(w http.ResponseWriter, r *http.Request) {
	id := articleID(r)
	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.db.SetSaved(id, req.Saved); err != nil {
		slog.Error("save article failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.articleUpdated(id)
	st, err := h.db.GetStatus(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// MarkViewed handles POST /api/articles/{id}/viewed.
func (h *Handler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	id := articleID(r)
	if err := h.db.MarkViewed(id); err != nil {
		slog.Error("mark viewed failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.articleUpdated(id)
	w.WriteHeader(http.StatusNoContent)
}

// MarkUnread handles DELETE /api/articles/{id}/viewed.
func (h *Handler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	id := articleID(r)
	if err := h.db.MarkUnread(id); err != nil {
		slog.Error("mark unread failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.articleUpdated(id)
	w.WriteHeader(http.StatusNoContent)
}

// SetTags handles PUT /api/articles/{id}/tags.
func (h *Handler) SetTags(w http.ResponseWriter, r *http.Request) {
	id := articleID(r)
	var req TagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.db.SetTags(id, req.Tags); err != nil {
		slog.Error("set tags failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.articleUpdated(id)
	tags, err := h.db.GetTags(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}

// CreateNote handles POST /api/articles/{id}/note: it writes a templated
// note file (when absent) and links it to the article.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	if h.notes == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody("notes directory not configured"))
		return
	}
	id := articleID(r)
	art, err := h.queries.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	path, err := h.notes.Create(art)
	if err != nil {
		slog.Error("create note failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if err := h.db.LinkNote(id, path); err != nil {
		slog.Error("link note failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if h.notify != nil {
		h.notify.PublishNoteEvent("linked", id, path)
	}
	writeJSON(w, http.StatusCreated, NoteResponse{ArticleID: id, Path: path})
}

// ListTags handles GET /api/tags.
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.queries.Tags(r.Context())
	if err != nil {
		slog.Error("list tags failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if tags == nil {
		tags = []store.TagCount{}
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: tags})
}

// Counts handles GET /api/counts: total and saved article counts plus
// unread counts per configured fetch unit and per tag.
func (h *Handler) Counts(w http.ResponseWriter, _ *http.Request) {
	resp, err := h.buildCounts()
	if err != nil {
		slog.Error("counts failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) buildCounts() (CountsResponse, error) {
	resp := CountsResponse{
		UnreadBySpec: map[string]int{},
		UnreadByTag:  map[string]int{},
	}

	var err error
	if resp.Total, err = h.db.CountAll(); err != nil {
		return resp, err
	}
	if resp.Saved, err = h.db.CountSaved(); err != nil {
		return resp, err
	}

	for _, spec := range h.passOpts(false, false).Specs {
		var n int
		if spec.Query == "" && len(spec.Categories) == 1 {
			n, err = h.db.CountUnreadByCategory(spec.Categories[0])
		} else {
			n, err = h.db.CountUnreadByFilter(spec.Categories, spec.Query)
		}
		if err != nil {
			return resp, err
		}
		resp.UnreadBySpec[spec.Key] = n
	}

	tags, err := h.db.AllTags()
	if err != nil {
		return resp, err
	}
	for _, tc := range tags {
		n, err := h.db.CountUnreadByTag(tc.Name)
		if err != nil {
			return resp, err
		}
		resp.UnreadByTag[tc.Name] = n
	}

	return resp, nil
}

// ListFetches handles GET /api/fetches: fetch-history inspection.
func (h *Handler) ListFetches(w http.ResponseWriter, _ *http.Request) {
	fetches, err := h.db.AllFetchRecords()
	if err != nil {
		slog.Error("list fetches failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if fetches == nil {
		fetches = []store.FetchRecord{}
	}
	writeJSON(w, http.StatusOK, FetchListResponse{Fetches: fetches})
}

// Refresh handles POST /api/refresh: it starts a background pass and
// returns immediately. The summary arrives on the SSE stream and via
// GET /api/refresh/last.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	// Detached from the request context: the pass outlives this response.
	h.runner.TriggerAsync(context.WithoutCancel(r.Context()), h.passOpts(req.Full, req.Force))
	writeJSON(w, http.StatusAccepted, RefreshAccepted{Status: "started"})
}

// LastRefresh handles GET /api/refresh/last.
func (h *Handler) LastRefresh(w http.ResponseWriter, _ *http.Request) {
	sum := h.runner.LastSummary()
	if sum == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) articleUpdated(id string) {
	if h.notify != nil {
		h.notify.PublishArticleUpdated(id)
	}
}
