package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trafficpilot/internal/browser"
	"trafficpilot/internal/models"
)

const (
	videoHomeURL    = "https://www.youtube.com"
	videoDomain     = "youtube.com"
	videoSiteFilter = "site:youtube.com"

	videoSearchInput  = `input[name="search_query"]`
	videoSearchButton = `button#search-icon-legacy`
	videoResults      = "ytd-video-renderer, ytd-rich-item-renderer"
	videoLikeButton   = `button[aria-label="Like this video"]`
	videoOwnerLink    = "ytd-video-owner-renderer #channel-name a"
)

// watchScrollRange is the scroll interval used while a video plays
var watchScrollRange = models.ScrollRange{Name: "watch", Min: 300, Max: 800}

// VideoStrategy finds a video, watches it for a bounded time and
// optionally likes it and visits its channel.
type VideoStrategy struct {
	kit    *Kit
	logger zerolog.Logger
}

// NewVideoStrategy creates the video platform strategy
func NewVideoStrategy(kit *Kit) *VideoStrategy {
	return &VideoStrategy{
		kit:    kit,
		logger: kit.Logger.With().Str("component", "video-strategy").Logger(),
	}
}

// Target returns the video platform target
func (s *VideoStrategy) Target() models.Target {
	return models.TargetVideoPlatform
}

// Run discovers a video, watches it and performs the requested engagement
func (s *VideoStrategy) Run(ctx context.Context, page browser.Page, cfg models.SessionConfig, report Reporter) error {
	logger := s.logger.With().Str("sessionId", cfg.SessionID).Logger()

	report.Progress("Heading to the video platform...")

	if cfg.DirectURL != "" {
		logger.Debug().Str("url", cfg.DirectURL).Msg("Opening direct URL")
		if err := page.Navigate(ctx, cfg.DirectURL); err != nil {
			return err
		}
	} else {
		if err := s.discover(ctx, page, cfg, logger); err != nil {
			return err
		}
		if err := s.search(ctx, page, cfg.VideoKeyword); err != nil {
			return err
		}
	}

	if err := s.kit.scroll(ctx, page, models.DefaultScrollRange()); err != nil {
		return err
	}

	if err := page.WaitForSelector(ctx, videoResults, s.kit.Settings.ResultTimeout); err != nil {
		return err
	}
	if err := page.Click(ctx, videoResults); err != nil {
		return fmt.Errorf("failed to open first result: %w", err)
	}
	if err := s.kit.pause(ctx, 5*time.Second); err != nil {
		return err
	}

	report.Progress("Watching video...")

	if err := s.watch(ctx, page, cfg.WatchDuration, logger); err != nil {
		return err
	}

	if cfg.Like {
		err := s.kit.bestEffort(ctx, logger, "like", func() error {
			if err := page.Click(ctx, videoLikeButton); err != nil {
				return err
			}
			return s.kit.pause(ctx, time.Second)
		})
		if err != nil {
			return err
		}
	}

	if !cfg.SkipChannel {
		err := s.kit.bestEffort(ctx, logger, "channel", func() error {
			if err := page.Click(ctx, videoOwnerLink); err != nil {
				return err
			}
			if err := s.kit.pause(ctx, 3*time.Second); err != nil {
				return err
			}
			return s.kit.scroll(ctx, page, models.DefaultScrollRange())
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// discover reaches the platform, through a search engine when one is configured
func (s *VideoStrategy) discover(ctx context.Context, page browser.Page, cfg models.SessionConfig, logger zerolog.Logger) error {
	engine, ok := lookupEngine(cfg.SearchEngine)
	if !ok {
		return page.Navigate(ctx, videoHomeURL)
	}

	query := fmt.Sprintf("%s %s", cfg.VideoKeyword, videoSiteFilter)
	if err := s.kit.submitSearch(ctx, page, engine, query, 2*time.Second); err != nil {
		return err
	}

	links, _, err := pageLinks(ctx, page)
	if err != nil {
		return err
	}

	link, found := FirstLinkOnDomain(links, videoDomain)
	if !found {
		logger.Debug().Str("engine", engine.name).Msg("No platform result, going to home page")
		return page.Navigate(ctx, videoHomeURL)
	}

	clicked, err := page.ClickLink(ctx, link.Href)
	if err != nil || !clicked {
		logger.Debug().Err(err).Str("href", link.Href).Msg("Result click not dispatched, navigating instead")
		return page.Navigate(ctx, link.Href)
	}
	return nil
}

// search submits keyword into the platform's own search box
func (s *VideoStrategy) search(ctx context.Context, page browser.Page, keyword string) error {
	if err := s.kit.typeInto(ctx, page, videoSearchInput, keyword); err != nil {
		return err
	}

	if err := page.Click(ctx, videoSearchButton); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug().Err(err).Msg("Search button missing, submitting with Enter")
		if err := page.PressEnter(ctx); err != nil {
			return err
		}
	}

	return s.kit.pause(ctx, 3*time.Second)
}

// WatchDuration converts requested minutes into a bounded watch time.
// Zero or negative requests use the default; the ceiling always applies.
func WatchDuration(minutes float64, settings Settings) time.Duration {
	d := settings.DefaultWatch
	if minutes > 0 {
		// Compare before converting; huge requests overflow time.Duration.
		if settings.WatchCeiling > 0 && minutes*float64(time.Minute) >= float64(settings.WatchCeiling) {
			return settings.WatchCeiling
		}
		d = time.Duration(minutes * float64(time.Minute))
	}
	if settings.WatchCeiling > 0 && d > settings.WatchCeiling {
		d = settings.WatchCeiling
	}
	return d
}

// watch waits out the watch time while scrolling on a fixed interval.
// The scroll loop is stopped and joined before watch returns.
func (s *VideoStrategy) watch(ctx context.Context, page browser.Page, minutes float64, logger zerolog.Logger) error {
	d := WatchDuration(minutes, s.kit.Settings)
	logger.Info().Dur("duration", d).Msg("Watching")

	interval := s.kit.Settings.WatchScrollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	watchCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				if err := s.kit.scroll(watchCtx, page, watchScrollRange); err != nil && watchCtx.Err() == nil {
					logger.Debug().Err(err).Msg("Watch scroll failed")
				}
			}
		}
	}()

	err := s.kit.pause(ctx, d)
	cancel()
	wg.Wait()

	return err
}
