// Package api exposes the session service over HTTP and WebSocket.
package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"trafficpilot/internal/config"
	"trafficpilot/internal/metrics"
	"trafficpilot/internal/models"
	"trafficpilot/internal/status"
)

// SessionService is the part of the orchestrator service the API drives
type SessionService interface {
	StartSession(cfg models.SessionConfig) (string, error)
	GetSessionStatus(ctx context.Context, id string) (models.BotStatusEvent, error)
	StopSession(id string) bool
	Running() int
}

// Server holds dependencies for HTTP handlers
type Server struct {
	config  config.ServerConfig
	service SessionService
	hub     *status.Hub
	metrics *metrics.Metrics
	limiter *ClientLimiter
	logger  zerolog.Logger

	httpServer *http.Server
}

// NewServer creates the API server. Start rate limiting is off when
// cfg.StartRatePerMinute is zero.
func NewServer(cfg config.ServerConfig, service SessionService, hub *status.Hub, m *metrics.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		config:  cfg,
		service: service,
		hub:     hub,
		metrics: m,
		logger:  logger.With().Str("component", "api").Logger(),
	}
	if cfg.StartRatePerMinute > 0 {
		s.limiter = NewClientLimiter(cfg.StartRatePerMinute, cfg.StartBurst)
	}
	return s
}

// Router configures all HTTP routes
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.loggingMiddleware)

	api.Handle("/start-bot", s.rateLimitMiddleware(http.HandlerFunc(s.handleStartBot))).Methods(http.MethodPost, http.MethodOptions)

	api.HandleFunc("/bot-status/{sessionId}", s.handleBotStatus).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/stop-bot", s.handleStopBot).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	if dir := s.config.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.PathPrefix("/").Handler(http.FileServer(http.Dir(dir)))
		} else {
			s.logger.Warn().Str("dir", dir).Msg("Static directory not found, front-end disabled")
		}
	}

	r.Use(corsMiddleware)

	return r
}

// ListenAndServe blocks until the server stops. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("address", s.config.Address).Msg("HTTP server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
