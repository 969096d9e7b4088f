// Package stealth - browser fingerprint masking
package stealth

import (
	"strconv"
	"strings"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"
)

// Common user agents for realistic fingerprinting
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

var timezones = []string{
	"America/New_York",
	"America/Chicago",
	"America/Los_Angeles",
	"Europe/London",
	"Europe/Paris",
	"Asia/Jakarta",
}

// ApplyFingerprint registers fingerprint overrides that run before any page
// script. Screen metrics follow the emulated viewport; hardware and timezone
// are drawn from rng.
func ApplyFingerprint(page *rod.Page, width, height int, rng *Rand, logger zerolog.Logger) error {
	logger.Debug().Msg("Applying fingerprint masking")

	_, err := page.EvalOnNewDocument(fingerprintJS(width, height, rng))
	return err
}

// fingerprintJS creates JavaScript that customizes the browser fingerprint
func fingerprintJS(width, height int, rng *Rand) string {
	r := strings.NewReplacer(
		"{{WIDTH}}", strconv.Itoa(width),
		"{{HEIGHT}}", strconv.Itoa(height),
		"{{AVAIL_HEIGHT}}", strconv.Itoa(height-40),
		"{{CORES}}", strconv.Itoa(rng.Between(4, 16)),
		"{{MEMORY}}", strconv.Itoa([]int{4, 8, 16}[rng.Intn(3)]),
		"{{TIMEZONE}}", timezones[rng.Intn(len(timezones))],
	)
	return r.Replace(fingerprintTemplate)
}

const fingerprintTemplate = `
	Object.defineProperty(screen, 'width', { get: () => {{WIDTH}} });
	Object.defineProperty(screen, 'height', { get: () => {{HEIGHT}} });
	Object.defineProperty(screen, 'availWidth', { get: () => {{WIDTH}} });
	Object.defineProperty(screen, 'availHeight', { get: () => {{AVAIL_HEIGHT}} });
	Object.defineProperty(screen, 'colorDepth', { get: () => 24 });
	Object.defineProperty(screen, 'pixelDepth', { get: () => 24 });

	Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => {{CORES}} });
	Object.defineProperty(navigator, 'deviceMemory', { get: () => {{MEMORY}} });
	Object.defineProperty(navigator, 'maxTouchPoints', { get: () => 0 });
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });

	const originalDateTimeFormat = Intl.DateTimeFormat;
	Intl.DateTimeFormat = function(locale, options) {
		options = options || {};
		options.timeZone = options.timeZone || '{{TIMEZONE}}';
		return new originalDateTimeFormat(locale, options);
	};

	try {
		const getParameter = WebGLRenderingContext.prototype.getParameter;
		WebGLRenderingContext.prototype.getParameter = function(param) {
			// UNMASKED_VENDOR_WEBGL
			if (param === 37445) return 'Google Inc. (NVIDIA)';
			// UNMASKED_RENDERER_WEBGL
			if (param === 37446) return 'ANGLE (NVIDIA, NVIDIA GeForce GTX 1080 Direct3D11 vs_5_0 ps_5_0, D3D11)';
			return getParameter.call(this, param);
		};
	} catch (e) {}

	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => {
		if (parameters.name === 'notifications') {
			return Promise.resolve({ state: Notification.permission });
		}
		return originalQuery(parameters);
	};

	if ('connection' in navigator) {
		Object.defineProperty(navigator.connection, 'effectiveType', { get: () => '4g' });
		Object.defineProperty(navigator.connection, 'rtt', { get: () => 50 });
	}
`

// GetRandomUserAgent returns a user agent string drawn from rng
func GetRandomUserAgent(rng *Rand) string {
	return userAgents[rng.Intn(len(userAgents))]
}
