// Package browsertest provides in-memory fakes of the browser package for tests.
package browsertest

import (
	"context"
	"strings"
	"sync"
	"time"

	"trafficpilot/internal/browser"
	"trafficpilot/internal/models"
)

// Call is one recorded page action
type Call struct {
	Op  string
	Arg string
}

// Page is a scripted browser.Page. Zero value is usable.
type Page struct {
	// HTMLByURL maps a URL prefix to the document returned while on it
	HTMLByURL map[string]string
	// MissingSelectors never appear; WaitForSelector times out and Click fails
	MissingSelectors map[string]bool
	// NavigateErrs fails navigation to the given URL
	NavigateErrs map[string]error
	// LinkClicks controls ClickLink results by href; absent hrefs report false
	LinkClicks map[string]bool
	// Block makes WaitForSelector park until ctx is done
	Block bool

	mu      sync.Mutex
	calls   []Call
	scrolls []int
	typed   strings.Builder
	url     string
}

var _ browser.Page = (*Page)(nil)

func (p *Page) record(op, arg string) {
	p.calls = append(p.calls, Call{Op: op, Arg: arg})
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return &browser.NavigationError{URL: url, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record("navigate", url)
	if err := p.NavigateErrs[url]; err != nil {
		return &browser.NavigationError{URL: url, Err: err}
	}
	p.url = url
	return nil
}

func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	p.record("wait", selector)
	block, missing := p.Block, p.MissingSelectors[selector]
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if missing {
		return &browser.SelectorTimeoutError{Selector: selector, Timeout: timeout, Err: context.DeadlineExceeded}
	}
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record("click", selector)
	if p.MissingSelectors[selector] {
		return browser.ErrElementNotFound
	}
	return nil
}

func (p *Page) ClickLink(ctx context.Context, href string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record("click-link", href)
	if p.LinkClicks[href] {
		p.url = href
		return true, nil
	}
	return false, nil
}

func (p *Page) Focus(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record("focus", selector)
	if p.MissingSelectors[selector] {
		return browser.ErrElementNotFound
	}
	return nil
}

func (p *Page) TypeRune(ctx context.Context, r rune) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.typed.WriteRune(r)
	return nil
}

func (p *Page) PressEnter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record("enter", p.typed.String())
	p.typed.Reset()
	return nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for prefix, html := range p.HTMLByURL {
		if strings.HasPrefix(p.url, prefix) {
			return html, nil
		}
	}
	return "<html><body></body></html>", nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) ScrollBy(ctx context.Context, px int, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record("scroll", "")
	p.scrolls = append(p.scrolls, px)
	return nil
}

// Calls returns a copy of every recorded action
func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Ops returns the recorded actions filtered by op
func (p *Page) Ops(op string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var args []string
	for _, c := range p.calls {
		if c.Op == op {
			args = append(args, c.Arg)
		}
	}
	return args
}

// Scrolls returns every scroll distance
func (p *Page) Scrolls() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.scrolls...)
}

// Submitted returns each text typed before an Enter press
func (p *Page) Submitted() []string {
	return p.Ops("enter")
}

// Handle is a fake browser.Handle that counts Close calls
type Handle struct {
	page *Page

	mu     sync.Mutex
	closes int
}

func (h *Handle) Page() browser.Page { return h.page }

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return nil
}

// Closes reports how many times Close was called
func (h *Handle) Closes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

// Launcher hands out fake handles. Set Err to simulate launch failure.
type Launcher struct {
	// NewPage builds the page for each acquire; defaults to an empty Page
	NewPage func(cfg models.SessionConfig) *Page
	Err     error

	mu       sync.Mutex
	handles  []*Handle
	acquired []models.SessionConfig
}

func (l *Launcher) Acquire(ctx context.Context, cfg models.SessionConfig) (browser.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.acquired = append(l.acquired, cfg)
	if l.Err != nil {
		return nil, &browser.LaunchError{Stage: "launch", Err: l.Err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &browser.LaunchError{Stage: "launch", Err: err}
	}

	page := &Page{}
	if l.NewPage != nil {
		page = l.NewPage(cfg)
	}

	h := &Handle{page: page}
	l.handles = append(l.handles, h)
	return h, nil
}

// Handles returns every handle given out so far
func (l *Launcher) Handles() []*Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Handle(nil), l.handles...)
}

// Acquired returns the configs of every acquire attempt
func (l *Launcher) Acquired() []models.SessionConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.SessionConfig(nil), l.acquired...)
}
