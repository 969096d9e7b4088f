// Package browser - page interaction utilities
package browser

import (
	"context"
	"fmt"
	"time"
	"unicode"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"trafficpilot/internal/stealth"
)

// Page is the set of page actions a navigation script needs.
// Every call is a suspension point bounded by ctx and an internal timeout.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	// ClickLink clicks the anchor whose resolved href equals href.
	// It reports false when no such anchor exists.
	ClickLink(ctx context.Context, href string) (bool, error)
	Focus(ctx context.Context, selector string) error
	TypeRune(ctx context.Context, r rune) error
	PressEnter(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	ScrollBy(ctx context.Context, px int, duration time.Duration) error
}

const clickLinkJS = `(href) => {
	const link = Array.from(document.querySelectorAll('a')).find(a => a.href === href);
	if (!link) return false;
	link.click();
	return true;
}`

const scrollByJS = `(amount, duration) => {
	window.scrollBy({ top: amount, left: 0, behavior: 'smooth', duration: duration });
}`

// rodPage implements Page on top of a go-rod page
type rodPage struct {
	page           *rod.Page
	mouse          *stealth.MouseController
	navTimeout     time.Duration
	elementTimeout time.Duration
	logger         zerolog.Logger
}

func newRodPage(page *rod.Page, navTimeout time.Duration, mouse *stealth.MouseController, logger zerolog.Logger) *rodPage {
	return &rodPage{
		page:           page,
		mouse:          mouse,
		navTimeout:     navTimeout,
		elementTimeout: 5 * time.Second,
		logger:         logger.With().Str("component", "page").Logger(),
	}
}

// Navigate navigates to a URL and waits for the page to settle
func (p *rodPage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug().Str("url", url).Msg("Navigating to URL")

	page := p.page.Context(ctx).Timeout(p.navTimeout)
	defer page.CancelTimeout()

	if err := page.Navigate(url); err != nil {
		return &NavigationError{URL: url, Err: err}
	}

	if err := page.WaitLoad(); err != nil {
		if ctx.Err() != nil {
			return &NavigationError{URL: url, Err: ctx.Err()}
		}
		p.logger.Warn().Err(err).Msg("WaitLoad failed, continuing anyway")
	}

	// Additional stability wait
	_ = page.WaitDOMStable(time.Second, 0.1)

	return nil
}

// WaitForSelector waits until an element matching selector exists
func (p *rodPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	p.logger.Debug().
		Str("selector", selector).
		Dur("timeout", timeout).
		Msg("Waiting for element")

	page := p.page.Context(ctx).Timeout(timeout)
	defer page.CancelTimeout()

	if _, err := page.Element(selector); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &SelectorTimeoutError{Selector: selector, Timeout: timeout, Err: err}
	}

	return nil
}

// Click moves the cursor to the first element matching selector and clicks it
func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, page, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	defer page.CancelTimeout()

	if err := el.ScrollIntoView(); err != nil {
		return err
	}

	box, ok := elementBox(el)
	if !ok || p.mouse == nil {
		p.logger.Debug().Str("selector", selector).Msg("No element box, clicking directly")
		return el.Click(proto.InputMouseButtonLeft, 1)
	}

	return p.mouse.ClickBox(ctx, &rodPointer{mouse: p.page.Mouse}, box)
}

// elementBox returns the element's first content quad as a rectangle
func elementBox(el *rod.Element) (stealth.Box, bool) {
	shape, err := el.Shape()
	if err != nil || shape == nil || len(shape.Quads) == 0 {
		return stealth.Box{}, false
	}

	q := shape.Quads[0]
	if len(q) < 8 {
		return stealth.Box{}, false
	}
	return quadBox(q), true
}

// quadBox bounds the four corners of a quad
func quadBox(q proto.DOMQuad) stealth.Box {
	minX, maxX := q[0], q[0]
	minY, maxY := q[1], q[1]
	for i := 2; i+1 < len(q); i += 2 {
		minX, maxX = min(minX, q[i]), max(maxX, q[i])
		minY, maxY = min(minY, q[i+1]), max(maxY, q[i+1])
	}
	return stealth.Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// rodPointer adapts a rod mouse to the stealth pointer
type rodPointer struct {
	mouse *rod.Mouse
}

func (r *rodPointer) Position() stealth.Point {
	pos := r.mouse.Position()
	return stealth.Point{X: pos.X, Y: pos.Y}
}

func (r *rodPointer) MoveTo(ctx context.Context, pt stealth.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.mouse.MoveTo(proto.Point{X: pt.X, Y: pt.Y})
}

func (r *rodPointer) Down(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.mouse.Down(proto.InputMouseButtonLeft, 1)
}

func (r *rodPointer) Up(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.mouse.Up(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) ClickLink(ctx context.Context, href string) (bool, error) {
	res, err := p.page.Context(ctx).Eval(clickLinkJS, href)
	if err != nil {
		return false, fmt.Errorf("failed to click link: %w", err)
	}
	return res.Value.Bool(), nil
}

func (p *rodPage) Focus(ctx context.Context, selector string) error {
	el, page, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	defer page.CancelTimeout()

	return el.Focus()
}

// TypeRune sends one keystroke, falling back to text insertion for keys
// that have no keyboard mapping
func (p *rodPage) TypeRune(ctx context.Context, r rune) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if r < unicode.MaxASCII && unicode.IsPrint(r) {
		if err := p.page.Keyboard.Type(input.Key(r)); err == nil {
			return nil
		}
	}

	return p.page.Context(ctx).InsertText(string(r))
}

func (p *rodPage) PressEnter(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return p.page.Keyboard.Press(input.Enter)
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

// URL returns the current page URL
func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// ScrollBy issues a smooth vertical scroll of px pixels
func (p *rodPage) ScrollBy(ctx context.Context, px int, duration time.Duration) error {
	_, err := p.page.Context(ctx).Eval(scrollByJS, px, duration.Milliseconds())
	return err
}

// element finds selector with the element timeout; the caller must cancel the returned page's timeout
func (p *rodPage) element(ctx context.Context, selector string) (*rod.Element, *rod.Page, error) {
	page := p.page.Context(ctx).Timeout(p.elementTimeout)

	el, err := page.Element(selector)
	if err != nil {
		page.CancelTimeout()
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}

	return el, page, nil
}
