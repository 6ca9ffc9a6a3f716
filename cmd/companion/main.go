// AsthmaCare Companion - local client for the AsthmaCare service
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

	"github.com/asthmacare/companion/internal/api"
	"github.com/asthmacare/companion/internal/config"
	"github.com/asthmacare/companion/internal/conversation"
	"github.com/asthmacare/companion/internal/gateway"
	"github.com/asthmacare/companion/internal/middleware"
	"github.com/asthmacare/companion/internal/session"
	"github.com/asthmacare/companion/internal/store"
	"github.com/asthmacare/companion/internal/transcript"
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

	slog.Info("Starting companion", "port", cfg.Port, "backend", cfg.BackendURL, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize local cache", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close local cache", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Local cache health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Local cache connected", "path", cfg.DBPath)

	gw, err := gateway.NewHTTPClient(gateway.HTTPClientConfig{
		BaseURL:        cfg.BackendURL,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize backend gateway", "error", err)
		os.Exit(1)
	}

	// Restore the session from the cached hint; the reconciling check
	// against the backend runs in the background and never blocks startup.
	sessions := session.NewManager(gw, repo, logger)
	sessions.Initialize(context.Background())
	defer sessions.Wait()

	engine := conversation.NewEngine(conversation.Config{
		ReplyDelay:      cfg.ReplyDelay,
		FormOpenDelay:   cfg.FormOpenDelay,
		FormTriggerOdds: cfg.FormTriggerOdds,
	}, sessions, gw, logger)

	transcripts, err := transcript.NewLogger(transcript.Config{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Error("Failed to close transcript logger", "error", closeErr)
		}
	}()

	// Mirror appended messages into the transcript log and the local
	// cache. Both are best-effort audit trails behind the in-memory log.
	events, cancelMirror := engine.Subscribe()
	defer cancelMirror()
	go func() {
		for ev := range events {
			if ev.Type != conversation.EventMessageAppended || ev.Message == nil {
				continue
			}
			transcripts.Log(transcript.Entry{
				MessageID: ev.Message.ID,
				Username:  sessions.Current().Username,
				Sender:    string(ev.Message.Sender),
				Content:   ev.Message.Content,
			})

			mirrorCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := repo.AppendMessage(mirrorCtx, *ev.Message); err != nil {
				slog.Warn("Failed to mirror message to local cache", "message_id", ev.Message.ID, "error", err)
			}
			cancel()
		}
	}()

	// Initialize handlers.
	handler := api.NewHandler(sessions, engine, gw, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(allowedOrigins))

	handler.RegisterRoutes(r)

	// Create server.
	// Note: the event-stream WebSocket is long-lived (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Companion listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Shutdown complete")
}
