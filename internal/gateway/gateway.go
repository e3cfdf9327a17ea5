// ABOUTME: Gateway orchestrator that wires the backend, sessions, and webhook
// ABOUTME: Manages the HTTP server and health endpoints lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/OGJRx/intake-gateway/internal/config"
	"github.com/OGJRx/intake-gateway/internal/dedupe"
	"github.com/OGJRx/intake-gateway/internal/intake"
	"github.com/OGJRx/intake-gateway/internal/job"
	"github.com/OGJRx/intake-gateway/internal/metrics"
	"github.com/OGJRx/intake-gateway/internal/session"
	"github.com/OGJRx/intake-gateway/internal/sheets"
	"github.com/OGJRx/intake-gateway/internal/store"
	"github.com/OGJRx/intake-gateway/internal/telegram"
)

const (
	// dedupeTTL covers the Bot API retry window with margin. Deliveries of
	// the same update inside this window are dropped.
	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 100_000
)

// Backend is a persistence layer that stores both job records and sessions.
// Both the SQLite store and the sheets client satisfy it.
type Backend interface {
	job.Sink
	session.Store
	Ping(ctx context.Context) error
}

// Gateway orchestrates the intake-gateway server components.
// It owns the backend, the session store, and the HTTP server.
type Gateway struct {
	config     *config.Config
	backend    Backend
	sessions   session.Store
	service    *intake.Service
	webhook    *telegram.Webhook
	tracker    *dedupe.Tracker
	metrics    *metrics.Metrics
	httpServer *http.Server
	logger     *slog.Logger

	// ownSessions is true when the session store is a separate component
	// from the backend and needs its own Close.
	ownSessions bool
}

// initBackend creates the job/session backend selected by config.
func initBackend(cfg *config.Config, logger *slog.Logger) (Backend, error) {
	switch cfg.Backend.Driver {
	case config.BackendSheets:
		return sheets.NewClient(cfg.Backend.Sheets.URL, cfg.Backend.Sheets.APIKey, logger), nil
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(cfg.Backend.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("initializing sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backend driver %q", cfg.Backend.Driver)
	}
}

// initSessions returns the session store: Redis when configured, otherwise
// the backend doubles as the session store.
func initSessions(cfg *config.Config, backend Backend) (session.Store, bool) {
	if cfg.Sessions.Backend != config.SessionsRedis {
		return backend, false
	}
	opts := []session.RedisOption{}
	if cfg.Sessions.TTL > 0 {
		opts = append(opts, session.WithTTL(cfg.Sessions.TTL))
	}
	rc := cfg.Sessions.Redis
	return session.NewRedisStore(rc.Addr, rc.Password, rc.DB, opts...), true
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	backend, err := initBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	sessions, ownSessions := initSessions(cfg, backend)

	m := metrics.New()
	tracker := dedupe.NewTracker(dedupeTTL, dedupeMaxSize)

	var notifier intake.Notifier
	if cfg.Telegram.StaffChatID != "" {
		tgClient := telegram.NewClient(cfg.Telegram.BotToken, logger)
		if n := telegram.NewStaffNotifier(tgClient, cfg.Telegram.StaffChatID); n != nil {
			notifier = n
		}
	} else {
		logger.Warn("telegram.staff_chat_id not set - staff notifications disabled")
	}

	service := intake.New(intake.Config{
		Sessions: sessions,
		Jobs:     backend,
		Notifier: notifier,
		Metrics:  m,
		Logger:   logger,
	})

	webhook := telegram.NewWebhook(telegram.WebhookConfig{
		Handler: service,
		Tracker: tracker,
		Metrics: m,
		Logger:  logger,
		Secret:  cfg.Telegram.WebhookSecret,
	})

	gw := &Gateway{
		config:      cfg,
		backend:     backend,
		sessions:    sessions,
		service:     service,
		webhook:     webhook,
		tracker:     tracker,
		metrics:     m,
		logger:      logger.With("component", "gateway"),
		ownSessions: ownSessions,
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// buildRouter assembles the HTTP routes.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodPost, "/webhook", g.webhook)
	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	if g.config.Metrics.Enabled {
		r.Method(http.MethodGet, g.config.Metrics.Path, g.metrics.Handler())
	}

	return r
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	if g.ownSessions {
		errs = appendCloseError(errs, "session store close", g.sessions.Close())
	}
	errs = appendCloseError(errs, "backend close", g.backend.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the backend answers a probe.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := g.backend.Ping(ctx); err != nil {
		g.logger.Warn("readiness probe failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("backend unreachable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
