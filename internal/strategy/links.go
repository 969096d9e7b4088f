package strategy

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"trafficpilot/internal/browser"
)

// minInternalLinkText is the shortest anchor text worth following
const minInternalLinkText = 5

// Link is an anchor found on a page
type Link struct {
	// Href is resolved against the page URL
	Href string
	// Raw is the attribute value as written
	Raw  string
	Text string
}

// ExtractLinks returns every http(s) anchor in html, resolved against pageURL
func ExtractLinks(html, pageURL string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(pageURL)

	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		raw, _ := s.Attr("href")
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}

		u, err := url.Parse(raw)
		if err != nil {
			return
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}

		links = append(links, Link{
			Href: u.String(),
			Raw:  raw,
			Text: s.Text(),
		})
	})

	return links, nil
}

// targetHost returns the hostname of target with any scheme stripped
func targetHost(target string) string {
	trimmed := strings.TrimSpace(target)
	trimmed = strings.TrimPrefix(trimmed, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")

	if u, err := url.Parse("//" + trimmed); err == nil && u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}
	return strings.ToLower(strings.TrimSuffix(trimmed, "/"))
}

// FindTargetLink returns the first link whose href contains target's hostname
func FindTargetLink(links []Link, target string) (Link, bool) {
	host := targetHost(target)
	if host == "" {
		return Link{}, false
	}

	for _, l := range links {
		if strings.Contains(strings.ToLower(l.Href), host) {
			return l, true
		}
	}
	return Link{}, false
}

// FirstLinkOnDomain returns the first link hosted on domain or a subdomain of it
func FirstLinkOnDomain(links []Link, domain string) (Link, bool) {
	for _, l := range links {
		u, err := url.Parse(l.Href)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return l, true
		}
	}
	return Link{}, false
}

// InternalLinks returns links worth following on the same host as pageURL:
// no fragment and visible text longer than minInternalLinkText
func InternalLinks(links []Link, pageURL string) []Link {
	page, err := url.Parse(pageURL)
	if err != nil || page.Hostname() == "" {
		return nil
	}
	host := strings.ToLower(page.Hostname())

	var internal []Link
	for _, l := range links {
		if strings.HasPrefix(l.Raw, "#") || strings.Contains(l.Href, "#") {
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(l.Text)) <= minInternalLinkText {
			continue
		}
		u, err := url.Parse(l.Href)
		if err != nil || strings.ToLower(u.Hostname()) != host {
			continue
		}
		internal = append(internal, l)
	}
	return internal
}

// pageLinks reads the current document of page and extracts its links
func pageLinks(ctx context.Context, page browser.Page) ([]Link, string, error) {
	current, err := page.URL(ctx)
	if err != nil {
		return nil, "", err
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, current, err
	}

	links, err := ExtractLinks(html, current)
	return links, current, err
}
