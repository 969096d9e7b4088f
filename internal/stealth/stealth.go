// Package stealth provides human-like pacing for scripted browsing.
// It randomizes scroll distances, keystroke timing and pauses so that
// sessions do not move at machine speed.
package stealth

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Rand is a goroutine-safe random source shared by the controllers
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewRand(seed int64) *Rand {
	return &Rand{r: rand.New(rand.NewSource(seed))}
}

// Intn returns a value in [0, n)
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Intn(n)
}

func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}

// Between returns a value in [min, max]
func (r *Rand) Between(min, max int) int {
	if max <= min {
		return min
	}
	return min + r.Intn(max-min+1)
}

// Options configures a Controller
type Options struct {
	Sleeper Sleeper
	Rand    *Rand

	// Zero speeds fall back to 0.5-2.0
	MouseSpeedMin float64
	MouseSpeedMax float64
	Overshoot     bool
}

// Controller bundles the pacing sub-controllers
type Controller struct {
	logger zerolog.Logger
	rng    *Rand
	mouse  *MouseController
	typing *TypingController
	scroll *ScrollController
	timing *TimingController
}

// NewController creates a new stealth controller with all sub-modules
func NewController(opts Options, logger zerolog.Logger) *Controller {
	if opts.Sleeper == nil {
		opts.Sleeper = Sleep
	}
	if opts.Rand == nil {
		opts.Rand = NewRand(time.Now().UnixNano())
	}

	timing := NewTimingController(opts.Sleeper, opts.Rand, logger)

	return &Controller{
		logger: logger.With().Str("component", "stealth").Logger(),
		rng:    opts.Rand,
		mouse:  NewMouseController(timing, opts.Rand, opts.MouseSpeedMin, opts.MouseSpeedMax, opts.Overshoot, logger),
		typing: NewTypingController(timing, opts.Rand, logger),
		scroll: NewScrollController(timing, opts.Rand, logger),
		timing: timing,
	}
}

// Mouse returns the mouse controller for Bézier cursor movement
func (c *Controller) Mouse() *MouseController {
	return c.mouse
}

// Rand returns the random source shared by the sub-controllers
func (c *Controller) Rand() *Rand {
	return c.rng
}

// Typing returns the typing controller for human-like text input
func (c *Controller) Typing() *TypingController {
	return c.typing
}

// Scroll returns the scroll controller for natural scrolling
func (c *Controller) Scroll() *ScrollController {
	return c.scroll
}

// Timing returns the timing controller for randomized delays
func (c *Controller) Timing() *TimingController {
	return c.timing
}
