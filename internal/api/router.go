package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Article reads.
	r.Get("/articles", h.ListArticles)
	r.Get("/articles/{id}", h.GetArticle)

	// Status mutators.
	r.Post("/articles/{id}/save", h.SaveArticle)
	r.Post("/articles/{id}/viewed", h.MarkViewed)
	r.Delete("/articles/{id}/viewed", h.MarkUnread)
	r.Put("/articles/{id}/tags", h.SetTags)
	r.Post("/articles/{id}/note", h.CreateNote)

	// Tags, counts, and fetch history.
	r.Get("/tags", h.ListTags)
	r.Get("/counts", h.Counts)
	r.Get("/fetches", h.ListFetches)

	// Background refresh.
	r.Post("/refresh", h.Refresh)
	r.Get("/refresh/last", h.LastRefresh)

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
