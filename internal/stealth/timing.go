// Package stealth - randomized timing patterns
package stealth

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TimingController handles delays between page actions
type TimingController struct {
	sleep  Sleeper
	rng    *Rand
	logger zerolog.Logger
}

// NewTimingController creates a new timing controller
func NewTimingController(sleep Sleeper, rng *Rand, logger zerolog.Logger) *TimingController {
	return &TimingController{
		sleep:  sleep,
		rng:    rng,
		logger: logger.With().Str("module", "timing").Logger(),
	}
}

// Pause waits a fixed settle time, e.g. after submitting a search
func (t *TimingController) Pause(ctx context.Context, d time.Duration) error {
	t.logger.Debug().Dur("delay", d).Msg("Pause")
	return t.sleep(ctx, d)
}

// RandomDelay waits a uniformly random duration in [min, max]
func (t *TimingController) RandomDelay(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(t.rng.Float64() * float64(max-min))
	}

	t.logger.Debug().Dur("delay", d).Msg("Random delay")
	return t.sleep(ctx, d)
}

// ShortDelay adds a brief pause (100-500ms)
func (t *TimingController) ShortDelay(ctx context.Context) error {
	return t.sleep(ctx, time.Duration(t.rng.Between(100, 500))*time.Millisecond)
}

// Sleep waits d without logging, for tight loops like keystrokes
func (t *TimingController) Sleep(ctx context.Context, d time.Duration) error {
	return t.sleep(ctx, d)
}
