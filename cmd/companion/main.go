// DramaRama companion worker: session/state synchronization between UI
// surfaces and the DramaRama backend.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dramarama/companion/internal/auth"
	"github.com/dramarama/companion/internal/backend"
	"github.com/dramarama/companion/internal/config"
	"github.com/dramarama/companion/internal/middleware"
	"github.com/dramarama/companion/internal/registry"
	"github.com/dramarama/companion/internal/router"
	"github.com/dramarama/companion/internal/session"
	"github.com/dramarama/companion/internal/sse"
	"github.com/dramarama/companion/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting companion worker", "port", cfg.Port, "api", cfg.APIBaseURL, "dev", cfg.IsDevelopment())

	// Initialize durable storage.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// A persisted HQ handoff overrides the configured API base.
	apiBase := cfg.APIBaseURL
	if override, err := repo.GetState(context.Background(), store.StateAPIBaseURL); err != nil {
		slog.Warn("Could not read persisted API base override", "error", err)
	} else if override != "" {
		slog.Info("Using persisted API base override", "api", override)
		apiBase = override
	}

	// Wire the core: token store, registry, backend client, controller.
	tokens := auth.NewStore(repo)
	reg := registry.New(repo)
	tokens.SetSessionInvalidator(reg)

	client := backend.NewClient(apiBase, tokens)
	hints := sse.NewClient(&http.Client{Timeout: cfg.HintTimeout})
	controller := session.NewController(client, reg, tokens, hints)

	dispatcher := router.NewDispatcher(tokens, controller, reg, client, repo)
	rpcHandler := router.NewHTTPHandler(dispatcher)
	wsHandler := router.NewWSHandler(dispatcher, cfg.AllowedOrigins)

	// Setup router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	rpcHandler.RegisterRoutes(r)
	r.Get("/ws", wsHandler.ServeHTTP)

	// Hint streams pass through the worker; no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Worker listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Worker stopped successfully")
}
