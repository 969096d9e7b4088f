package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"trafficpilot/internal/browser"
	"trafficpilot/internal/browser/browsertest"
	"trafficpilot/internal/metrics"
	"trafficpilot/internal/models"
	"trafficpilot/internal/stealth"
)

type pauseLog struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (p *pauseLog) sleep(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.pauses = append(p.pauses, d)
	p.mu.Unlock()
	return ctx.Err()
}

func (p *pauseLog) contains(d time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, got := range p.pauses {
		if got == d {
			return true
		}
	}
	return false
}

func testSettings() Settings {
	return Settings{
		WatchCeiling:        time.Minute,
		DefaultWatch:        10 * time.Minute,
		WatchScrollInterval: 10 * time.Second,
		ResultTimeout:       10 * time.Second,
	}
}

func newTestKit(sleeper stealth.Sleeper) *Kit {
	rng := stealth.NewRand(7)
	return &Kit{
		Stealth:  stealth.NewController(stealth.Options{Sleeper: sleeper, Rand: rng}, zerolog.Nop()),
		Rand:     rng,
		Settings: testSettings(),
		Metrics:  metrics.New(),
		Logger:   zerolog.Nop(),
	}
}

type progressLog struct {
	mu       sync.Mutex
	messages []string
}

func (p *progressLog) Progress(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
}

func TestRegistry(t *testing.T) {
	reg := Default(newTestKit((&pauseLog{}).sleep))

	assert.Empty(t, reg.Missing())
	assert.Equal(t, []models.Target{models.TargetVideoPlatform, models.TargetWebsite}, reg.Targets())

	s, ok := reg.Lookup("youtube")
	require.True(t, ok)
	assert.Equal(t, models.TargetVideoPlatform, s.Target())

	_, ok = reg.Lookup("tiktok")
	assert.False(t, ok)

	partial := NewRegistry(NewWebsiteStrategy(newTestKit((&pauseLog{}).sleep)))
	assert.Equal(t, []models.Target{models.TargetVideoPlatform}, partial.Missing())
}

func TestWatchDuration(t *testing.T) {
	settings := testSettings()

	assert.Equal(t, time.Minute, WatchDuration(0, settings), "default is clamped")
	assert.Equal(t, time.Minute, WatchDuration(10, settings))
	assert.Equal(t, 30*time.Second, WatchDuration(0.5, settings))
	assert.Equal(t, time.Minute, WatchDuration(-3, settings))

	settings.WatchCeiling = 15 * time.Second
	assert.Equal(t, 15*time.Second, WatchDuration(0.5, settings))
}

func TestWatchDuration_HugeRequestIsClamped(t *testing.T) {
	settings := testSettings()

	assert.Equal(t, time.Minute, WatchDuration(1e12, settings))
	assert.Equal(t, time.Minute, WatchDuration(math.MaxFloat64, settings))

	var cfg models.SessionConfig
	require.NoError(t, json.Unmarshal([]byte(`{"target":"youtube","watchDuration":1e12}`), &cfg))
	assert.Equal(t, time.Minute, WatchDuration(cfg.WatchDuration, settings))
}

func TestVideo_NativeSearchFlow(t *testing.T) {
	pauses := &pauseLog{}
	kit := newTestKit(pauses.sleep)
	page := &browsertest.Page{}
	progress := &progressLog{}

	cfg := models.SessionConfig{
		SessionID:    "s1",
		Target:       models.TargetVideoPlatform,
		VideoKeyword: "lofi beats",
		Like:         true,
	}

	err := NewVideoStrategy(kit).Run(context.Background(), page, cfg, progress)
	require.NoError(t, err)

	assert.Equal(t, []string{videoHomeURL}, page.Ops("navigate"))
	assert.Equal(t, []string{videoSearchInput}, page.Ops("focus"))
	assert.Equal(t, []string{videoResults}, page.Ops("wait"))
	assert.Equal(t, []string{videoSearchButton, videoResults, videoLikeButton, videoOwnerLink}, page.Ops("click"))
	assert.Len(t, page.Scrolls(), 2, "result scroll pass and channel scroll pass")
	assert.Equal(t, []string{"Heading to the video platform...", "Watching video..."}, progress.messages)

	assert.True(t, pauses.contains(time.Minute), "watch clamped to ceiling")
	assert.True(t, pauses.contains(5*time.Second))
}

func TestVideo_DirectURLSkipsSearch(t *testing.T) {
	kit := newTestKit((&pauseLog{}).sleep)
	page := &browsertest.Page{}

	cfg := models.SessionConfig{
		Target:       models.TargetVideoPlatform,
		SearchEngine: models.SearchEngineGoogle,
		VideoKeyword: "ignored",
		DirectURL:    "https://www.youtube.com/@channel/videos",
		SkipChannel:  true,
	}

	require.NoError(t, NewVideoStrategy(kit).Run(context.Background(), page, cfg, &progressLog{}))

	assert.Equal(t, []string{cfg.DirectURL}, page.Ops("navigate"))
	assert.Empty(t, page.Ops("focus"))
	assert.Equal(t, []string{videoResults}, page.Ops("click"))
}

func TestVideo_SearchEngineDiscovery(t *testing.T) {
	kit := newTestKit((&pauseLog{}).sleep)
	page := &browsertest.Page{
		HTMLByURL: map[string]string{
			"https://www.google.com": `<a href="https://www.google.com/preferences">Settings</a>
				<a href="https://www.youtube.com/watch?v=abc">Lofi beats to relax</a>`,
		},
		LinkClicks: map[string]bool{"https://www.youtube.com/watch?v=abc": true},
	}

	cfg := models.SessionConfig{
		Target:       models.TargetVideoPlatform,
		SearchEngine: models.SearchEngineGoogle,
		VideoKeyword: "lofi beats",
		SkipChannel:  true,
	}

	require.NoError(t, NewVideoStrategy(kit).Run(context.Background(), page, cfg, &progressLog{}))

	assert.Equal(t, []string{"https://www.google.com"}, page.Ops("navigate"))
	assert.Equal(t, []string{"lofi beats site:youtube.com"}, page.Submitted())
	assert.Equal(t, []string{"https://www.youtube.com/watch?v=abc"}, page.Ops("click-link"))
	assert.Equal(t, []string{`textarea[name="q"]`, videoSearchInput}, page.Ops("focus"))
}

func TestVideo_DiscoveryWithoutPlatformResultGoesHome(t *testing.T) {
	kit := newTestKit((&pauseLog{}).sleep)
	page := &browsertest.Page{}

	cfg := models.SessionConfig{
		Target:       models.TargetVideoPlatform,
		SearchEngine: models.SearchEngineBing,
		VideoKeyword: "lofi",
		SkipChannel:  true,
	}

	require.NoError(t, NewVideoStrategy(kit).Run(context.Background(), page, cfg, &progressLog{}))
	assert.Equal(t, []string{"https://www.bing.com", videoHomeURL}, page.Ops("navigate"))
}

func TestVideo_SearchButtonMissingFallsBackToEnter(t *testing.T) {
	kit := newTestKit((&pauseLog{}).sleep)
	page := &browsertest.Page{MissingSelectors: map[string]bool{videoSearchButton: true}}

	cfg := models.SessionConfig{Target: models.TargetVideoPlatform, VideoKeyword: "jazz", SkipChannel: true}

	require.NoError(t, NewVideoStrategy(kit).Run(context.Background(), page, cfg, &progressLog{}))
	assert.Equal(t, []string{"jazz"}, page.Submitted())
}

func TestVideo_NoResultsIsFatal(t *testing.T) {
	kit := newTestKit((&pauseLog{}).sleep)
	page := &browsertest.Page{MissingSelectors: map[string]bool{videoResults: true}}
	progress := &progressLog{}

	cfg := models.SessionConfig{Target: models.TargetVideoPlatform, VideoKeyword: "nothing", Like: true}

	err := NewVideoStrategy(kit).Run(context.Background(), page, cfg, progress)

	var timeoutErr *browser.SelectorTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, videoResults, timeoutErr.Selector)
	assert.Equal(t, 10*time.Second, timeoutErr.Timeout)
	assert.NotContains(t, page.Ops("click"), videoLikeButton)
	assert.NotContains(t, progress.messages, "Watching video...")
}

func TestVideo_BestEffortFailuresAreSwallowed(t *testing.T) {
	kit := newTestKit((&pauseLog{}).sleep)
	page := &browsertest.Page{MissingSelectors: map[string]bool{
		videoLikeButton: true,
		videoOwnerLink:  true,
	}}

	cfg := models.SessionConfig{Target: models.TargetVideoPlatform, VideoKeyword: "x", Like: true}

	require.NoError(t, NewVideoStrategy(kit).Run(context.Background(), page, cfg, &progressLog{}))

	assert.Contains(t, page.Ops("click"), videoOwnerLink, "channel attempted after like failed")
	series, err := testutil.GatherAndCount(kit.Metrics.Registry(), "trafficpilot_best_effort_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestVideo_CancelledWhileWaitingForResults(t *testing.T) {
	kit := newTestKit((&pauseLog{}).sleep)
	page := &browsertest.Page{Block: true}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := NewVideoStrategy(kit).Run(ctx, page, models.SessionConfig{VideoKeyword: "x"}, &progressLog{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVideo_WatchStopsPeriodicScroll(t *testing.T) {
	defer goleak.VerifyNone(t)

	kit := newTestKit(stealth.Sleep)
	kit.Settings.WatchCeiling = 120 * time.Millisecond
	kit.Settings.WatchScrollInterval = 10 * time.Millisecond
	page := &browsertest.Page{}

	start := time.Now()
	err := NewVideoStrategy(kit).watch(context.Background(), page, 5, zerolog.Nop())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	require.NotEmpty(t, page.Scrolls())
	for _, px := range page.Scrolls() {
		assert.True(t, watchScrollRange.Contains(px))
	}

	// No scroll happens after watch returned
	after := len(page.Scrolls())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, len(page.Scrolls()))
}

func TestVideo_WatchCancelledJoinsTicker(t *testing.T) {
	defer goleak.VerifyNone(t)

	kit := newTestKit(stealth.Sleep)
	kit.Settings.WatchScrollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := NewVideoStrategy(kit).watch(ctx, &browsertest.Page{}, 10, zerolog.Nop())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

const exampleSite = `<html><body>
	<a href="/posts/first-post">Our very first post</a>
	<a href="/posts/second-post">A second longer post</a>
	<a href="#top">Back to the top of page</a>
	<a href="https://twitter.com/example">Follow us on twitter</a>
</body></html>`

func TestWebsite_ClicksMatchingResult(t *testing.T) {
	pauses := &pauseLog{}
	kit := newTestKit(pauses.sleep)
	page := &browsertest.Page{
		HTMLByURL: map[string]string{
			"https://www.google.com": `<a href="https://www.example.com/">Example Domain</a>`,
		},
		LinkClicks: map[string]bool{"https://www.example.com/": true},
	}
	progress := &progressLog{}

	cfg := models.SessionConfig{
		Target:        models.TargetWebsite,
		WebURL:        "https://www.example.com",
		WebKeyword:    "example",
		ScrollPattern: models.ScrollPatternResearcher,
	}

	require.NoError(t, NewWebsiteStrategy(kit).Run(context.Background(), page, cfg, progress))

	assert.Equal(t, []string{"https://www.google.com"}, page.Ops("navigate"))
	assert.Equal(t, []string{`textarea[name="q"]`}, page.Ops("focus"))
	assert.Equal(t, []string{"example https://www.example.com"}, page.Submitted())
	assert.Equal(t, []string{"https://www.example.com/"}, page.Ops("click-link"))

	scrolls := page.Scrolls()
	require.Len(t, scrolls, 1)
	assert.True(t, models.ScrollRangeFor(models.ScrollPatternResearcher).Contains(scrolls[0]))
	assert.True(t, pauses.contains(3*time.Second))
	assert.True(t, pauses.contains(5*time.Second))
	assert.Equal(t, []string{"Heading to target website..."}, progress.messages)
}

func TestWebsite_NoMatchNavigatesDirectly(t *testing.T) {
	kit := newTestKit((&pauseLog{}).sleep)
	page := &browsertest.Page{
		HTMLByURL: map[string]string{
			"https://www.bing.com": `<a href="https://unrelated.org/">Unrelated</a>`,
		},
	}

	cfg := models.SessionConfig{
		Target:       models.TargetWebsite,
		SearchEngine: models.SearchEngineBing,
		WebURL:       "https://www.example.com",
		WebKeyword:   "example",
	}

	require.NoError(t, NewWebsiteStrategy(kit).Run(context.Background(), page, cfg, &progressLog{}))

	assert.Equal(t, []string{"https://www.bing.com", "https://www.example.com"}, page.Ops("navigate"))
	assert.Equal(t, []string{`input[name="q"]`}, page.Ops("focus"))
	assert.Empty(t, page.Ops("click-link"))
	assert.True(t, models.DefaultScrollRange().Contains(page.Scrolls()[0]))
}

func TestWebsite_UndispatchedClickFallsBackToNavigation(t *testing.T) {
	kit := newTestKit((&pauseLog{}).sleep)
	page := &browsertest.Page{
		HTMLByURL: map[string]string{
			"https://www.google.com": `<a href="https://www.example.com/">Example Domain</a>`,
		},
	}

	cfg := models.SessionConfig{Target: models.TargetWebsite, WebURL: "https://www.example.com", WebKeyword: "ex"}

	require.NoError(t, NewWebsiteStrategy(kit).Run(context.Background(), page, cfg, &progressLog{}))

	assert.Equal(t, []string{"https://www.example.com/"}, page.Ops("click-link"))
	assert.Equal(t, []string{"https://www.google.com", "https://www.example.com"}, page.Ops("navigate"))
}

func TestWebsite_FollowsInternalLink(t *testing.T) {
	kit := newTestKit((&pauseLog{}).sleep)
	page := &browsertest.Page{
		HTMLByURL: map[string]string{
			"https://www.google.com":  `<a href="https://www.example.com/">Example Domain</a>`,
			"https://www.example.com": exampleSite,
		},
		LinkClicks: map[string]bool{"https://www.example.com/": true},
	}

	cfg := models.SessionConfig{
		Target:     models.TargetWebsite,
		WebURL:     "https://www.example.com",
		WebKeyword: "example",
		ClickLinks: true,
	}

	require.NoError(t, NewWebsiteStrategy(kit).Run(context.Background(), page, cfg, &progressLog{}))

	navs := page.Ops("navigate")
	require.Len(t, navs, 2)
	assert.Contains(t, []string{
		"https://www.example.com/posts/first-post",
		"https://www.example.com/posts/second-post",
	}, navs[1])

	scrolls := page.Scrolls()
	require.Len(t, scrolls, 2)
	assert.True(t, models.ScrollRangeFor(models.ScrollPatternSkimmer).Contains(scrolls[1]))
}

func TestWebsite_NavigationErrorIsFatal(t *testing.T) {
	kit := newTestKit((&pauseLog{}).sleep)
	boom := errors.New("net::ERR_NAME_NOT_RESOLVED")
	page := &browsertest.Page{NavigateErrs: map[string]error{"https://www.google.com": boom}}

	err := NewWebsiteStrategy(kit).Run(context.Background(), page,
		models.SessionConfig{WebURL: "https://www.example.com"}, &progressLog{})

	var navErr *browser.NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, page.Scrolls())
}

func TestBestEffortInteractionError(t *testing.T) {
	cause := errors.New("detached node")
	err := &BestEffortInteractionError{Action: "like", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "like")
}
