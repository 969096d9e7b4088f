// Package stealth - human-like typing simulation
package stealth

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Keyboard is the page surface needed to type into a field
type Keyboard interface {
	Focus(ctx context.Context, selector string) error
	TypeRune(ctx context.Context, r rune) error
}

var commonPairs = map[string]struct{}{
	"th": {}, "he": {}, "in": {}, "er": {}, "an": {}, "re": {}, "on": {}, "at": {},
	"en": {}, "nd": {}, "ti": {}, "es": {}, "or": {}, "te": {}, "of": {}, "ed": {},
	"is": {}, "it": {}, "al": {}, "ar": {}, "st": {}, "to": {}, "nt": {}, "ng": {},
	"se": {}, "ha": {}, "as": {}, "ou": {}, "io": {}, "le": {}, "ve": {}, "co": {},
}

// TypingController handles human-like text input
type TypingController struct {
	timing *TimingController
	rng    *Rand
	logger zerolog.Logger

	minDelayMs int
	maxDelayMs int
}

// NewTypingController creates a new typing controller
func NewTypingController(timing *TimingController, rng *Rand, logger zerolog.Logger) *TypingController {
	return &TypingController{
		timing:     timing,
		rng:        rng,
		logger:     logger.With().Str("module", "typing").Logger(),
		minDelayMs: 50,
		maxDelayMs: 150,
	}
}

// TypeInto focuses selector and types text one rune at a time
func (t *TypingController) TypeInto(ctx context.Context, kb Keyboard, selector, text string) error {
	t.logger.Debug().
		Str("selector", selector).
		Int("length", len(text)).
		Msg("Typing text with human-like patterns")

	if err := kb.Focus(ctx, selector); err != nil {
		return err
	}

	if err := t.timing.Sleep(ctx, time.Duration(t.rng.Between(100, 300))*time.Millisecond); err != nil {
		return err
	}

	runes := []rune(text)
	for i, char := range runes {
		if err := kb.TypeRune(ctx, char); err != nil {
			return err
		}

		if err := t.timing.Sleep(ctx, t.keystrokeDelay(runes, i)); err != nil {
			return err
		}
	}

	return nil
}

// keystrokeDelay calculates delay based on character context
func (t *TypingController) keystrokeDelay(text []rune, index int) time.Duration {
	base := t.rng.Between(t.minDelayMs, t.maxDelayMs)
	char := text[index]

	multiplier := 1.0

	// Slower after punctuation
	if index > 0 && strings.ContainsRune(".,!?;:", text[index-1]) {
		multiplier = 1.5 + t.rng.Float64()*0.5
	}

	// Slower at word boundaries
	if char == ' ' {
		multiplier = 1.2 + t.rng.Float64()*0.3
	}

	if index > 0 {
		pair := strings.ToLower(string([]rune{text[index-1], char}))
		if _, ok := commonPairs[pair]; ok {
			multiplier = 0.7 + t.rng.Float64()*0.2
		}
	}

	// Occasional mid-word hesitation
	if t.rng.Float64() < 0.02 {
		multiplier = 2.0 + t.rng.Float64()
	}

	return time.Duration(float64(base)*multiplier) * time.Millisecond
}
