// Package strategy holds the per-target navigation scripts run inside a
// browsing session.
package strategy

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"trafficpilot/internal/browser"
	"trafficpilot/internal/config"
	"trafficpilot/internal/metrics"
	"trafficpilot/internal/models"
	"trafficpilot/internal/stealth"
)

// Reporter receives progress messages for the running session
type Reporter interface {
	Progress(message string)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(message string)

func (f ReporterFunc) Progress(message string) { f(message) }

// Strategy is the navigation script for one target
type Strategy interface {
	Target() models.Target
	Run(ctx context.Context, page browser.Page, cfg models.SessionConfig, report Reporter) error
}

// Settings are the timing bounds shared by all strategies
type Settings struct {
	WatchCeiling        time.Duration
	DefaultWatch        time.Duration
	WatchScrollInterval time.Duration
	ResultTimeout       time.Duration
}

// SettingsFrom converts session config into strategy settings
func SettingsFrom(cfg config.SessionConfig) Settings {
	return Settings{
		WatchCeiling:        cfg.WatchCeiling(),
		DefaultWatch:        cfg.DefaultWatch(),
		WatchScrollInterval: cfg.WatchScrollInterval(),
		ResultTimeout:       cfg.ResultTimeout(),
	}
}

// Kit bundles what strategies need besides the page
type Kit struct {
	Stealth  *stealth.Controller
	Rand     *stealth.Rand
	Settings Settings
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Registry maps targets to strategies
type Registry struct {
	strategies map[models.Target]Strategy
}

// NewRegistry indexes strategies by their target
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[models.Target]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Target()] = s
	}
	return r
}

// Default returns a registry with every built-in strategy
func Default(kit *Kit) *Registry {
	return NewRegistry(
		NewVideoStrategy(kit),
		NewWebsiteStrategy(kit),
	)
}

// Lookup returns the strategy for t, accepting wire aliases
func (r *Registry) Lookup(t models.Target) (Strategy, bool) {
	s, ok := r.strategies[t.Normalize()]
	return s, ok
}

// Missing lists known targets with no registered strategy
func (r *Registry) Missing() []models.Target {
	var missing []models.Target
	for _, t := range models.KnownTargets() {
		if _, ok := r.strategies[t]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

// Targets lists registered targets in sorted order
func (r *Registry) Targets() []models.Target {
	targets := make([]models.Target, 0, len(r.strategies))
	for t := range r.strategies {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}

func (k *Kit) pause(ctx context.Context, d time.Duration) error {
	return k.Stealth.Timing().Pause(ctx, d)
}

func (k *Kit) scroll(ctx context.Context, page browser.Page, r models.ScrollRange) error {
	_, err := k.Stealth.Scroll().Scroll(ctx, page, r)
	return err
}

func (k *Kit) typeInto(ctx context.Context, page browser.Page, selector, text string) error {
	return k.Stealth.Typing().TypeInto(ctx, page, selector, text)
}

// bestEffort runs an optional interaction. Failures are logged and counted
// but never end the session; cancellation still does.
func (k *Kit) bestEffort(ctx context.Context, logger zerolog.Logger, action string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	logger.Warn().
		Err(&BestEffortInteractionError{Action: action, Err: err}).
		Msg("Optional interaction failed, continuing")
	k.Metrics.BestEffortFailed(action)
	return nil
}

// searchEngine describes a supported search engine home page
type searchEngine struct {
	name  string
	url   string
	input string
}

var searchEngines = map[string]searchEngine{
	models.SearchEngineGoogle: {name: models.SearchEngineGoogle, url: "https://www.google.com", input: `textarea[name="q"]`},
	models.SearchEngineBing:   {name: models.SearchEngineBing, url: "https://www.bing.com", input: `input[name="q"]`},
}

func lookupEngine(name string) (searchEngine, bool) {
	e, ok := searchEngines[name]
	return e, ok
}

// submitSearch types query into the engine's search box and submits it
func (k *Kit) submitSearch(ctx context.Context, page browser.Page, engine searchEngine, query string, settle time.Duration) error {
	if err := page.Navigate(ctx, engine.url); err != nil {
		return err
	}
	if err := k.typeInto(ctx, page, engine.input, query); err != nil {
		return err
	}
	if err := page.PressEnter(ctx); err != nil {
		return err
	}
	return k.pause(ctx, settle)
}
