package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"trafficpilot/internal/models"
	"trafficpilot/internal/storage"
)

// Service errors surfaced at the request boundary
var (
	ErrMissingTarget   = errors.New("target is required")
	ErrSessionLimit    = errors.New("too many concurrent sessions")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session id already running")
	ErrShuttingDown    = errors.New("service is shutting down")
)

// StatusReader returns the last-known status of a session
type StatusReader interface {
	Get(ctx context.Context, sessionID string) (models.BotStatusEvent, error)
}

// Pruner forgets finished sessions
type Pruner interface {
	PruneFinished(ctx context.Context, cutoff time.Time) (int64, error)
}

// Runner executes one session to completion
type Runner interface {
	Run(ctx context.Context, cfg models.SessionConfig) (*models.SessionResult, error)
}

// Service runs sessions in the background and tracks them by id
type Service struct {
	runner   Runner
	statuses StatusReader
	sem      *semaphore.Weighted
	logger   zerolog.Logger

	baseCtx   context.Context
	cancelAll context.CancelFunc

	mu       sync.Mutex
	running  map[string]context.CancelFunc
	shutdown bool
	wg       sync.WaitGroup
}

// NewService creates a service. maxConcurrent <= 0 means unlimited.
func NewService(runner Runner, statuses StatusReader, maxConcurrent int, logger zerolog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		runner:    runner,
		statuses:  statuses,
		logger:    logger.With().Str("component", "service").Logger(),
		baseCtx:   ctx,
		cancelAll: cancel,
		running:   make(map[string]context.CancelFunc),
	}
	if maxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return s
}

// StartSession validates cfg, assigns an id and runs the session in the
// background. It returns as soon as the session is admitted.
func (s *Service) StartSession(cfg models.SessionConfig) (string, error) {
	if strings.TrimSpace(string(cfg.Target)) == "" {
		return "", ErrMissingTarget
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	if s.sem != nil && !s.sem.TryAcquire(1) {
		return "", ErrSessionLimit
	}
	releaseSlot := func() {
		if s.sem != nil {
			s.sem.Release(1)
		}
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		releaseSlot()
		return "", ErrShuttingDown
	}
	if _, dup := s.running[cfg.SessionID]; dup {
		s.mu.Unlock()
		releaseSlot()
		return "", ErrSessionExists
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.running[cfg.SessionID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer releaseSlot()
		defer s.forget(cfg.SessionID)
		defer cancel()

		result, err := s.runner.Run(ctx, cfg)
		logger := s.logger.With().Str("sessionId", cfg.SessionID).Logger()
		if err != nil {
			logger.Error().Err(err).Msg("Session ended with error")
			return
		}
		logger.Info().
			Str("status", string(result.Status)).
			Dur("duration", result.Duration()).
			Bool("noOp", result.NoOp).
			Msg("Session finished")
	}()

	return cfg.SessionID, nil
}

func (s *Service) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

// GetSessionStatus returns the last-known status of a session
func (s *Service) GetSessionStatus(ctx context.Context, id string) (models.BotStatusEvent, error) {
	event, err := s.statuses.Get(ctx, id)
	if err == nil {
		return event, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.BotStatusEvent{}, err
	}

	// Admitted but the first event has not landed yet
	s.mu.Lock()
	_, running := s.running[id]
	s.mu.Unlock()
	if running {
		return models.BotStatusEvent{
			SessionID: id,
			Status:    models.StatusStarting,
			Message:   "Session admitted",
			Timestamp: time.Now(),
		}, nil
	}

	return models.BotStatusEvent{}, ErrSessionNotFound
}

// StopSession cancels a running session. It reports whether anything was stopped.
func (s *Service) StopSession(id string) bool {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()

	if !ok {
		return false
	}

	s.logger.Info().Str("sessionId", id).Msg("Stopping session")
	cancel()
	return true
}

// Running returns the number of sessions in flight
func (s *Service) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Shutdown cancels every session and waits for them to release their browsers
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	s.cancelAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunPruner periodically forgets sessions that finished more than retention ago.
// It blocks until ctx is done.
func (s *Service) RunPruner(ctx context.Context, p Pruner, retention, every time.Duration) {
	if retention <= 0 || every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PruneFinished(ctx, time.Now().Add(-retention))
			if err != nil {
				s.logger.Warn().Err(err).Msg("Failed to prune finished sessions")
				continue
			}
			if n > 0 {
				s.logger.Debug().Int64("pruned", n).Msg("Pruned finished sessions")
			}
		}
	}
}
