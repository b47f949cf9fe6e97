package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vincentruan/telegram-spring-bot/internal/command"
	"github.com/vincentruan/telegram-spring-bot/internal/events"
	"github.com/vincentruan/telegram-spring-bot/internal/journal"
	"github.com/vincentruan/telegram-spring-bot/internal/sender"
)

// CommandSender defines the sender operations the API needs
type CommandSender interface {
	Offer(ctx context.Context, cmd command.Command) error
	Stats() sender.Stats
}

// JournalReader defines read access to the command outcome journal
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
	Counts(ctx context.Context) (map[journal.Status]int, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	APIKey string
	// MaxWait caps how long POST /commands may wait for a result.
	MaxWait time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	sender    CommandSender
	journal   JournalReader
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. journal and hub may be nil, which
// disables the endpoints backed by them.
func New(config Config, s CommandSender, j JournalReader, hub *events.Hub, logger *slog.Logger) *Server {
	if config.MaxWait <= 0 {
		config.MaxWait = 30 * time.Second
	}
	return &Server{
		config:    config,
		sender:    s,
		journal:   j,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start runs the HTTP server until ctx is cancelled (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.config.MaxWait + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.requireKey)
		r.Post("/commands/{method}", s.handleSend)
		r.Get("/commands", s.handleListCommands)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
