// Package stealth - natural scrolling behavior
package stealth

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trafficpilot/internal/models"
)

// Scrollable is anything that can issue a smooth scroll
type Scrollable interface {
	ScrollBy(ctx context.Context, px int, duration time.Duration) error
}

// ScrollObserver is notified of every completed scroll
type ScrollObserver func(px int)

// ScrollController handles human-like scrolling behavior
type ScrollController struct {
	timing   *TimingController
	rng      *Rand
	observer ScrollObserver
	logger   zerolog.Logger
}

// NewScrollController creates a new scroll controller
func NewScrollController(timing *TimingController, rng *Rand, logger zerolog.Logger) *ScrollController {
	return &ScrollController{
		timing: timing,
		rng:    rng,
		logger: logger.With().Str("module", "scroll").Logger(),
	}
}

// Observe registers fn to receive each scroll distance
func (s *ScrollController) Observe(fn ScrollObserver) {
	s.observer = fn
}

// Scroll performs one smooth scroll with a distance drawn from r, then
// waits for the animation plus up to a second of jitter. It returns the
// distance scrolled.
func (s *ScrollController) Scroll(ctx context.Context, page Scrollable, r models.ScrollRange) (int, error) {
	distance := s.rng.Between(r.Min, r.Max)
	duration := time.Duration(s.rng.Between(500, 1500)) * time.Millisecond

	s.logger.Debug().
		Str("pattern", r.Name).
		Int("distance", distance).
		Dur("duration", duration).
		Msg("Scrolling")

	if err := page.ScrollBy(ctx, distance, duration); err != nil {
		return 0, err
	}

	if s.observer != nil {
		s.observer(distance)
	}

	jitter := time.Duration(s.rng.Intn(1000)) * time.Millisecond
	if err := s.timing.Sleep(ctx, duration+jitter); err != nil {
		return distance, err
	}

	return distance, nil
}

// ScrollPattern scrolls once using the named preset
func (s *ScrollController) ScrollPattern(ctx context.Context, page Scrollable, pattern string) (int, error) {
	return s.Scroll(ctx, page, models.ScrollRangeFor(pattern))
}
