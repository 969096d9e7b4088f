package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"trafficpilot/internal/browser"
	"trafficpilot/internal/models"
)

// WebsiteStrategy reaches a site through a search engine, reads it and
// optionally follows one internal link.
type WebsiteStrategy struct {
	kit    *Kit
	logger zerolog.Logger
}

// NewWebsiteStrategy creates the website strategy
func NewWebsiteStrategy(kit *Kit) *WebsiteStrategy {
	return &WebsiteStrategy{
		kit:    kit,
		logger: kit.Logger.With().Str("component", "website-strategy").Logger(),
	}
}

// Target returns the website target
func (s *WebsiteStrategy) Target() models.Target {
	return models.TargetWebsite
}

// Run searches for the site, opens it, reads it and optionally browses one internal link
func (s *WebsiteStrategy) Run(ctx context.Context, page browser.Page, cfg models.SessionConfig, report Reporter) error {
	logger := s.logger.With().Str("sessionId", cfg.SessionID).Logger()

	report.Progress("Heading to target website...")

	engine, ok := lookupEngine(cfg.SearchEngine)
	if !ok {
		engine = searchEngines[models.SearchEngineGoogle]
	}

	query := fmt.Sprintf("%s %s", cfg.WebKeyword, cfg.WebURL)
	if err := s.kit.submitSearch(ctx, page, engine, query, 3*time.Second); err != nil {
		return err
	}

	links, _, err := pageLinks(ctx, page)
	if err != nil {
		return err
	}

	if err := s.open(ctx, page, links, cfg.WebURL, logger); err != nil {
		return err
	}

	if err := s.kit.pause(ctx, 5*time.Second); err != nil {
		return err
	}

	if err := s.kit.scroll(ctx, page, models.ScrollRangeFor(cfg.ScrollPattern)); err != nil {
		return err
	}

	if cfg.ClickLinks {
		return s.followInternalLink(ctx, page, logger)
	}

	return nil
}

// open clicks the matching search result, or navigates straight to target
func (s *WebsiteStrategy) open(ctx context.Context, page browser.Page, links []Link, target string, logger zerolog.Logger) error {
	link, found := FindTargetLink(links, target)
	if !found {
		logger.Debug().Str("url", target).Msg("Target not in results, navigating directly")
		return page.Navigate(ctx, target)
	}

	clicked, err := page.ClickLink(ctx, link.Href)
	if err != nil || !clicked {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Debug().Err(err).Str("href", link.Href).Msg("Result click not dispatched, navigating directly")
		return page.Navigate(ctx, target)
	}

	logger.Debug().Str("href", link.Href).Msg("Clicked search result")
	return nil
}

// followInternalLink clicks a random same-host link found on the page
func (s *WebsiteStrategy) followInternalLink(ctx context.Context, page browser.Page, logger zerolog.Logger) error {
	links, current, err := pageLinks(ctx, page)
	if err != nil {
		return err
	}

	internal := InternalLinks(links, current)
	if len(internal) == 0 {
		logger.Debug().Str("url", current).Msg("No internal links to follow")
		return nil
	}

	next := internal[s.kit.Rand.Intn(len(internal))]
	logger.Debug().Str("href", next.Href).Int("candidates", len(internal)).Msg("Following internal link")

	if err := page.Navigate(ctx, next.Href); err != nil {
		return err
	}
	if err := s.kit.pause(ctx, 3*time.Second); err != nil {
		return err
	}

	return s.kit.scroll(ctx, page, models.ScrollRangeFor(models.ScrollPatternSkimmer))
}
