// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/arxiv"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/notes"
	"github.com/starford/ansuz/internal/query"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/store"
	syncpkg "github.com/starford/ansuz/internal/sync"
)

type application struct {
	cfg    *Config
	forced bool
	full   bool
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (app *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: app.cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// passBuilder translates a refresh request into pass options. A full pass
// uses the larger result cap and no recency cutoff.
func (app *application) passBuilder() api.PassBuilder {
	cfg := app.cfg
	return func(full, forced bool) syncpkg.PassOptions {
		opts := syncpkg.PassOptions{
			Specs:  cfg.Sources.Specs(),
			Window: cfg.Sync.Freshness.Std(),
			Forced: forced,
		}
		if full {
			opts.MaxResults = cfg.Sync.FullMaxResults
		} else {
			opts.MaxResults = cfg.Sync.RecentMaxResults
			opts.RecentWindow = cfg.Sync.RecentWindow.Std()
		}
		return opts
	}
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.cfg

	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("notes_path", cfg.Notes.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Open the article store.
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	// Notes directory is optional.
	var notesDir *notes.Dir
	if cfg.Notes.Path != "" {
		notesDir, err = notes.NewDir(cfg.Notes.Path)
		if err != nil {
			return fmt.Errorf("init notes dir: %w", err)
		}
	}

	// SSE broker.
	broker := sse.NewBroker()
	defer broker.Close()

	// Sync pipeline: remote source, controller, runner.
	source := arxiv.NewClient(cfg.Arxiv.BaseURL, cfg.Arxiv.Timeout.Std())
	ctrl := syncpkg.NewController(db, source, logger)
	runner := syncpkg.NewRunner(ctrl, broker, logger)

	// Build API service and router.
	queries := query.NewService(db)
	handler := api.NewHandler(queries, db, notesDir, runner, app.passBuilder(), broker)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Startup refresh of the recent window runs in the background; clients
	// learn about completion through the SSE broker.
	g.Go(func() error {
		summary, err := runner.Run(gCtx, app.passBuilder()(false, false))
		if err != nil {
			if !syncpkg.Canceled(err) {
				logger.Warn("startup refresh failed", slog.String("error", err.Error()))
			}
			return nil
		}
		logger.Info("startup refresh finished",
			slog.Int("attempted", summary.Attempted),
			slog.Int("added", summary.Added))
		return nil
	})

	// Watch the notes directory so manually created or deleted note files
	// stay linked to their articles.
	if notesDir != nil {
		g.Go(func() error {
			return notes.Watch(gCtx, db, notesDir, logger, func(kind, articleID, path string) {
				broker.PublishNoteEvent(kind, articleID, path)
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunFetch performs a single synchronization pass and exits.
func RunFetch(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.cfg

	logger := app.logger()

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	source := arxiv.NewClient(cfg.Arxiv.BaseURL, cfg.Arxiv.Timeout.Std())
	ctrl := syncpkg.NewController(db, source, logger)

	summary, err := ctrl.Pass(ctx, app.passBuilder()(app.full, app.forced))
	if err != nil {
		return fmt.Errorf("sync pass: %w", err)
	}

	logger.Info("sync pass finished",
		slog.Int("attempted", summary.Attempted),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Int("fetched", summary.Fetched),
		slog.Int("added", summary.Added),
		slog.Int("merged", summary.Merged),
		slog.Int("dropped", summary.Dropped))
	return nil
}

// RunMCP serves the MCP tools over stdio.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.cfg

	// MCP speaks JSON-RPC on stdout, so logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	source := arxiv.NewClient(cfg.Arxiv.BaseURL, cfg.Arxiv.Timeout.Std())
	ctrl := syncpkg.NewController(db, source, logger)
	runner := syncpkg.NewRunner(ctrl, nil, logger)
	queries := query.NewService(db)

	srv := mcpserver.New(queries, db, runner, mcpserver.PassBuilder(app.passBuilder()), logger)
	return srv.ServeStdio(ctx)
}
