package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"

	"trafficpilot/internal/config"
	"trafficpilot/internal/models"
	stealthpkg "trafficpilot/internal/stealth"
)

// Handle is one disposable browser bound to a single session
type Handle interface {
	Page() Page
	// Close releases the browser process. Safe to call more than once.
	Close() error
}

// Controller launches a fresh browser per session
type Controller struct {
	config  *config.BrowserConfig
	stealth *stealthpkg.Controller
	logger  zerolog.Logger
}

// NewController creates a browser factory. Element clicks go through the
// stealth mouse and fingerprint draws use its random source.
func NewController(cfg *config.BrowserConfig, st *stealthpkg.Controller, logger zerolog.Logger) *Controller {
	return &Controller{
		config:  cfg,
		stealth: st,
		logger:  logger.With().Str("component", "browser").Logger(),
	}
}

// Acquire launches a browser configured for sc and opens a single stealth page.
// Any failure is returned as a *LaunchError and leaves no process behind.
func (c *Controller) Acquire(ctx context.Context, sc models.SessionConfig) (Handle, error) {
	logger := c.logger.With().Str("sessionId", sc.SessionID).Logger()
	logger.Info().Msg("Launching browser")

	if err := ctx.Err(); err != nil {
		return nil, &LaunchError{Stage: "launch", Err: err}
	}

	l := c.newLauncher(sc, logger)

	controlURL, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return nil, &LaunchError{Stage: "launch", Err: err}
	}

	// The browser is not bound to ctx so Close still works after cancellation
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, &LaunchError{Stage: "connect", Err: err}
	}

	s := &Session{
		browser:  b,
		launcher: l,
		logger:   logger,
	}

	if sc.HasProxyAuth() {
		armProxyAuth(b, sc.ProxyAuth, logger)
	}

	page, err := c.newPage(b, sc, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.page = newRodPage(page, c.config.NavigationTimeout(), c.stealth.Mouse(), logger)

	if err := ctx.Err(); err != nil {
		_ = s.Close()
		return nil, &LaunchError{Stage: "launch", Err: err}
	}

	logger.Info().Msg("Browser initialized successfully")
	return s, nil
}

func (c *Controller) newLauncher(sc models.SessionConfig, logger zerolog.Logger) *launcher.Launcher {
	l := launcher.New()

	if c.config.BinPath != "" {
		l = l.Bin(c.config.BinPath)
	}

	if c.config.Headless {
		l = l.Headless(true)
		logger.Debug().Msg("Running in headless mode")
	} else {
		l = l.Headless(false)
		logger.Debug().Msg("Running in headed mode (visible browser)")
	}

	l = l.NoSandbox(true)
	l = l.Set("disable-setuid-sandbox")
	l = l.Set("disable-dev-shm-usage")
	l = l.Set("disable-gpu")
	l = l.Set("disable-infobars")
	l = l.Set("disable-notifications")
	l = l.Set("password-store", "basic")
	l = l.Set("disable-save-password-bubble")
	l = l.Set("no-first-run")
	l = l.Set("no-default-browser-check")
	l = l.Set("disable-blink-features", "AutomationControlled")
	l = l.Set("disable-features", "IsolateOrigins,site-per-process")
	l = l.Set("disable-web-security")
	l = l.Set("ignore-certificate-errors")

	if sc.ProxyServer != "" {
		l = l.Proxy(sc.ProxyServer)
		logger.Debug().Str("proxy", sc.ProxyServer).Msg("Routing through proxy")
	}

	return l
}

// newPage creates a page with stealth settings applied
func (c *Controller) newPage(b *rod.Browser, sc models.SessionConfig, logger zerolog.Logger) (*rod.Page, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, &LaunchError{Stage: "page", Err: fmt.Errorf("failed to create stealth page: %w", err)}
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             c.config.ViewportWidth,
		Height:            c.config.ViewportHeight,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return nil, &LaunchError{Stage: "viewport", Err: err}
	}

	if err := (proto.EmulationSetScriptExecutionDisabled{Value: false}).Call(page); err != nil {
		return nil, &LaunchError{Stage: "scripting", Err: err}
	}

	userAgent := sc.UserAgent
	if userAgent == "" && c.config.RandomizeUserAgent {
		userAgent = stealthpkg.GetRandomUserAgent(c.stealth.Rand())
	}
	if userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
			return nil, &LaunchError{Stage: "user-agent", Err: err}
		}
		logger.Debug().Str("userAgent", userAgent).Msg("Set user agent")
	}

	if err := stealthpkg.ApplyFingerprint(page, c.config.ViewportWidth, c.config.ViewportHeight, c.stealth.Rand(), logger); err != nil {
		logger.Warn().Err(err).Msg("Failed to apply stealth settings")
	}

	return page, nil
}

// Session is a launched browser with its single page
type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     Page
	logger   zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (s *Session) Page() Page {
	return s.page
}

// Close closes the browser and removes its profile directory
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info().Msg("Closing browser")
		s.closeErr = s.browser.Close()
		s.launcher.Kill()
		s.launcher.Cleanup()
	})
	return s.closeErr
}

// authHandler is the part of *rod.Browser that answers proxy challenges
type authHandler interface {
	HandleAuth(username, password string) func() error
}

// armProxyAuth enables auth interception before returning, so no page can
// issue a proxied request ahead of the handler. Only the wait runs async.
func armProxyAuth(h authHandler, auth *models.ProxyAuth, logger zerolog.Logger) {
	wait := h.HandleAuth(auth.Username, auth.Password)
	go func() {
		if err := wait(); err != nil {
			logger.Debug().Err(err).Msg("Proxy auth handler stopped")
		}
	}()
}
