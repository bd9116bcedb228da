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

	"github.com/starford/othala/internal/api"
	"github.com/starford/othala/internal/bookmarks"
	"github.com/starford/othala/internal/browser"
	"github.com/starford/othala/internal/cloud"
	"github.com/starford/othala/internal/external"
	"github.com/starford/othala/internal/mcpserver"
	"github.com/starford/othala/internal/sse"
	"github.com/starford/othala/internal/storage"
)

// Run starts the HTTP service with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
		slog.SetDefault(logger)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("browser_sync", cfg.Browser.Enabled),
		slog.Bool("cloud_sync", cfg.Cloud.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize the node store.
	store, err := storage.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	hub := external.NewHub(logger)
	manager := bookmarks.NewManager(store, hub, logger)

	g, gCtx := errgroup.WithContext(ctx)

	// Browser bookmarks mirror.
	var browserBackend *browser.Backend
	if cfg.Browser.Enabled {
		fileStore, fsErr := browser.NewFileStore(cfg.Browser.BookmarksFile, logger)
		if fsErr != nil {
			return fmt.Errorf("init browser store: %w", fsErr)
		}
		browserBackend = browser.NewBackend(store, fileStore, true, logger)
		hub.Register(ctx, browserBackend)

		if rErr := browserBackend.Reconcile(ctx); rErr != nil {
			logger.Warn("initial browser reconciliation failed", slog.String("error", rErr.Error()))
		}
		g.Go(func() error {
			return fileStore.Watch(gCtx)
		})
	}

	// Cloud shelf synchronization.
	var cloudBackend *cloud.Backend
	if cfg.Cloud.Enabled {
		var provider cloud.Provider
		switch cfg.Cloud.Provider {
		case CloudProviderMemory:
			provider = cloud.NewMemoryProvider()
		default:
			provider = cloud.NewDropbox(cloud.DropboxConfig{
				AppKey:       cfg.Cloud.Dropbox.AppKey,
				AppSecret:    cfg.Cloud.Dropbox.AppSecret,
				RefreshToken: cfg.Cloud.Dropbox.RefreshToken,
			}, nil)
		}
		cloudBackend = cloud.NewBackend(store, provider, true, logger)
		hub.Register(ctx, cloudBackend)

		g.Go(func() error {
			return cloudBackend.Run(gCtx, cfg.Cloud.SyncInterval())
		})
	}

	// SSE broker.
	broker := sse.NewBroker(cfg.App.SSE.ShelvesThrottle())
	defer broker.Close()

	// Build API handler and router. Syncer interfaces stay nil when a
	// backend is disabled so the sync endpoints answer 404.
	var browserSyncer, cloudSyncer api.Syncer
	if browserBackend != nil {
		browserSyncer = browserBackend
	}
	if cloudBackend != nil {
		cloudSyncer = cloudBackend
	}
	handler := api.NewHandler(manager, broker, browserSyncer, cloudSyncer)
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

// RunMCP starts the MCP stdio server. Logs go to stderr so stdout stays
// reserved for the protocol stream.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
		slog.SetDefault(logger)
	}

	store, err := storage.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	hub := external.NewHub(logger)
	manager := bookmarks.NewManager(store, hub, logger)

	srv := mcpserver.New(manager)
	logger.Info("Starting MCP server on stdio")
	return srv.ServeStdio()
}
