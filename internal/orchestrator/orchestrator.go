// Package orchestrator runs browsing sessions: it owns the browser for the
// lifetime of a session, dispatches to the target's strategy and reports
// exactly one terminal status.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trafficpilot/internal/browser"
	"trafficpilot/internal/metrics"
	"trafficpilot/internal/models"
	"trafficpilot/internal/status"
	"trafficpilot/internal/strategy"
)

// Launcher provides one fresh browser per session
type Launcher interface {
	Acquire(ctx context.Context, cfg models.SessionConfig) (browser.Handle, error)
}

// Orchestrator runs single sessions end to end
type Orchestrator struct {
	launcher  Launcher
	registry  *strategy.Registry
	publisher status.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// New creates an orchestrator. A nil publisher discards events.
func New(launcher Launcher, registry *strategy.Registry, publisher status.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Orchestrator {
	if publisher == nil {
		publisher = status.Discard
	}
	return &Orchestrator{
		launcher:  launcher,
		registry:  registry,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Run executes one session. The returned result is always non-nil; the
// error is the strategy or launch failure, if any.
func (o *Orchestrator) Run(ctx context.Context, cfg models.SessionConfig) (*models.SessionResult, error) {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	target := cfg.Target.Normalize()
	logger := o.logger.With().
		Str("sessionId", cfg.SessionID).
		Str("target", string(target)).
		Logger()

	result := &models.SessionResult{
		SessionID: cfg.SessionID,
		Target:    target,
		StartedAt: time.Now(),
	}
	rep := &sessionReporter{sessionID: cfg.SessionID, publisher: o.publisher}

	o.metrics.SessionStarted(target)
	defer func() {
		o.metrics.SessionFinished(target, result.Status, result.Duration())
	}()

	strat, ok := o.registry.Lookup(target)
	if !ok {
		// Unknown targets finish cleanly without touching a browser
		logger.Warn().Msg("No strategy registered for target, nothing to do")
		rep.emit(models.StatusStarting, "Session started")
		o.finish(result, rep, models.StatusCompleted, fmt.Sprintf("No strategy registered for target %q", cfg.Target))
		result.NoOp = true
		return result, nil
	}

	rep.emit(models.StatusStarting, "Launching browser")
	logger.Info().Msg("Session starting")

	handle, err := o.launcher.Acquire(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to acquire browser")
		o.finish(result, rep, models.StatusError, err.Error())
		return result, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := handle.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close browser")
			}
		})
	}
	defer release()

	runErr := strat.Run(ctx, handle.Page(), cfg, rep)
	release()

	if runErr != nil {
		logger.Error().Err(runErr).Msg("Session failed")
		o.finish(result, rep, models.StatusError, runErr.Error())
		return result, runErr
	}

	logger.Info().Msg("Session completed")
	o.finish(result, rep, models.StatusCompleted, "Bot session completed")
	return result, nil
}

func (o *Orchestrator) finish(result *models.SessionResult, rep *sessionReporter, s models.Status, message string) {
	result.Status = s
	result.Message = message
	result.FinishedAt = time.Now()
	rep.emit(s, message)
}

// sessionReporter stamps events with the session id and drops anything
// published after the terminal event
type sessionReporter struct {
	sessionID string
	publisher status.Publisher

	mu       sync.Mutex
	terminal bool
}

func (r *sessionReporter) Progress(message string) {
	r.emit(models.StatusProgress, message)
}

func (r *sessionReporter) emit(s models.Status, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.terminal {
		return
	}
	if s.IsTerminal() {
		r.terminal = true
	}

	r.publisher.Publish(models.BotStatusEvent{
		SessionID: r.sessionID,
		Status:    s,
		Message:   message,
		Timestamp: time.Now(),
	})
}
