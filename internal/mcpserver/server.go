// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the article library as tools for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/query"
	"github.com/starford/ansuz/internal/store"
	syncpkg "github.com/starford/ansuz/internal/sync"
)

// PassBuilder translates a refresh request into pass options.
type PassBuilder func(full, forced bool) syncpkg.PassOptions

// Server wraps the MCP server with article library tools.
type Server struct {
	mcp      *server.MCPServer
	queries  *query.Service
	db       store.ArticleStore
	runner   *syncpkg.Runner
	passOpts PassBuilder
	logger   *slog.Logger
}

// New creates a new MCP server with all tools registered.
func New(queries *query.Service, db store.ArticleStore, runner *syncpkg.Runner, passOpts PassBuilder, logger *slog.Logger) *Server {
	s := &Server{queries: queries, db: db, runner: runner, passOpts: passOpts, logger: logger}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_articles",
		mcp.WithDescription("Full-text search through stored article titles, abstracts, and authors."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("category", mcp.Description("Optional arXiv category code to restrict the search (e.g. hep-ex)")),
	), s.searchArticles)

	s.mcp.AddTool(mcp.NewTool("get_article",
		mcp.WithDescription("Read a stored article with its abstract, status, and tags."),
		mcp.WithString("id", mcp.Required(), mcp.Description("arXiv article identifier (e.g. 2507.13213v1)")),
	), s.getArticle)

	s.mcp.AddTool(mcp.NewTool("list_saved",
		mcp.WithDescription("List saved articles, most recently saved first."),
	), s.listSaved)

	s.mcp.AddTool(mcp.NewTool("save_article",
		mcp.WithDescription("Save an article to the reading list, or unsave it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("arXiv article identifier")),
		mcp.WithBoolean("saved", mcp.Description("Saved state to set (default true)")),
	), s.saveArticle)

	s.mcp.AddTool(mcp.NewTool("tag_article",
		mcp.WithDescription("Replace the tag set of an article. Tags are lowercased and deduplicated."),
		mcp.WithString("id", mcp.Required(), mcp.Description("arXiv article identifier")),
		mcp.WithString("tags", mcp.Required(), mcp.Description("Comma-separated tags; an empty string clears all tags")),
	), s.tagArticle)

	s.mcp.AddTool(mcp.NewTool("mark_viewed",
		mcp.WithDescription("Mark an article as viewed."),
		mcp.WithString("id", mcp.Required(), mcp.Description("arXiv article identifier")),
	), s.markViewed)

	s.mcp.AddTool(mcp.NewTool("trigger_refresh",
		mcp.WithDescription("Run a synchronization pass against arXiv and return its summary. "+
			"Sources fetched recently are skipped unless force is set."),
		mcp.WithBoolean("full", mcp.Description("Use the full result cap with no recency cutoff")),
		mcp.WithBoolean("force", mcp.Description("Bypass the staleness policy")),
	), s.triggerRefresh)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchArticles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	listReq := query.ListRequest{Text: text}
	if c, err := req.RequireString("category"); err == nil {
		listReq.Category = c
	}
	articles, err := s.queries.List(ctx, listReq)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(articles, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	article, err := s.queries.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	out, _ := json.MarshalIndent(article, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listSaved(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	articles, err := s.queries.List(ctx, query.ListRequest{Saved: true})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(articles) == 0 {
		return mcp.NewToolResultText("no saved articles"), nil
	}
	out, _ := json.MarshalIndent(articles, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) saveArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	saved := true
	if v, err := req.RequireBool("saved"); err == nil {
		saved = v
	}
	if err := s.db.SetSaved(id, saved); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if saved {
		return mcp.NewToolResultText(fmt.Sprintf("saved: %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("unsaved: %s", id)), nil
}

func (s *Server) tagArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("tags")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	if err := s.db.SetTags(id, tags); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("tagged %s: %s", id, strings.Join(tags, ", "))), nil
}

func (s *Server) markViewed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.db.MarkViewed(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("viewed: %s", id)), nil
}

func (s *Server) triggerRefresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var full, force bool
	if v, err := req.RequireBool("full"); err == nil {
		full = v
	}
	if v, err := req.RequireBool("force"); err == nil {
		force = v
	}
	summary, err := s.runner.Run(ctx, s.passOpts(full, force))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
