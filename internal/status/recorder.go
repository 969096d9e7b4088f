package status

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trafficpilot/internal/models"
)

// Saver persists the latest event of a session
type Saver interface {
	Save(ctx context.Context, event models.BotStatusEvent) error
}

// Recorder keeps the last-known status of every session. Publish only
// queues; a single writer goroutine saves. Events of one session that are
// still queued collapse to the newest, so a terminal status is never lost
// behind a slow store.
type Recorder struct {
	store   Saver
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	pending map[string]models.BotStatusEvent
	order   []string
	closed  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewRecorder starts the writer goroutine; call Close to flush and stop it
func NewRecorder(store Saver, logger zerolog.Logger) *Recorder {
	r := &Recorder{
		store:   store,
		timeout: time.Second,
		logger:  logger.With().Str("component", "recorder").Logger(),
		pending: make(map[string]models.BotStatusEvent),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// Publish queues event without waiting for the store
func (r *Recorder) Publish(event models.BotStatusEvent) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if _, queued := r.pending[event.SessionID]; !queued {
		r.order = append(r.order, event.SessionID)
	}
	r.pending[event.SessionID] = event
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Close saves whatever is still queued and stops the writer. Safe to call
// more than once.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.done)
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case <-r.wake:
			r.flush()
		case <-r.done:
			r.flush()
			return
		}
	}
}

// flush saves the queued events in first-queued order
func (r *Recorder) flush() {
	r.mu.Lock()
	pending, order := r.pending, r.order
	r.pending = make(map[string]models.BotStatusEvent, len(pending))
	r.order = nil
	r.mu.Unlock()

	for _, id := range order {
		r.save(pending[id])
	}
}

func (r *Recorder) save(event models.BotStatusEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.Save(ctx, event); err != nil {
		r.logger.Warn().
			Err(err).
			Str("sessionId", event.SessionID).
			Str("status", string(event.Status)).
			Msg("Failed to record session status")
	}
}
