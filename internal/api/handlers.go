package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"trafficpilot/internal/models"
	"trafficpilot/internal/orchestrator"
)

type startResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type stopRequest struct {
	SessionID string `json:"sessionId"`
}

type stopResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Stopped bool   `json:"stopped"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"activeSessions"`
	Observers      int    `json:"observers"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Success: false, Error: message})
}

// handleStartBot handles POST /api/start-bot
func (s *Server) handleStartBot(w http.ResponseWriter, r *http.Request) {
	var cfg models.SessionConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.metrics.StartRejected("bad_request")
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := s.service.StartSession(cfg)
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrMissingTarget):
		s.metrics.StartRejected("missing_target")
		writeError(w, http.StatusBadRequest, "Target is required")
		return
	case errors.Is(err, orchestrator.ErrSessionLimit):
		s.metrics.StartRejected("session_limit")
		writeError(w, http.StatusTooManyRequests, "Too many sessions running, try again later")
		return
	case errors.Is(err, orchestrator.ErrSessionExists):
		s.metrics.StartRejected("duplicate")
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, orchestrator.ErrShuttingDown):
		s.metrics.StartRejected("shutting_down")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		s.logger.Error().Err(err).Msg("Failed to start session")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info().
		Str("sessionId", id).
		Str("target", string(cfg.Target)).
		Msg("Session accepted")

	writeJSON(w, http.StatusOK, startResponse{
		Success:   true,
		Message:   "Bot started successfully",
		SessionID: id,
	})
}

// handleBotStatus handles GET /api/bot-status/{sessionId}
func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]

	event, err := s.service.GetSessionStatus(r.Context(), id)
	if errors.Is(err, orchestrator.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("sessionId", id).Msg("Failed to read session status")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// handleStopBot handles POST /api/stop-bot
func (s *Server) handleStopBot(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	stopped := s.service.StopSession(req.SessionID)
	message := "Bot stopped"
	if !stopped {
		message = "No running session with that id"
	}

	writeJSON(w, http.StatusOK, stopResponse{
		Success: true,
		Message: message,
		Stopped: stopped,
	})
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		ActiveSessions: s.service.Running(),
		Observers:      s.hub.Subscribers(),
	})
}
