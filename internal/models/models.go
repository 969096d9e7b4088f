// Package models contains shared data structures for browsing sessions.
package models

import (
	"strings"
	"time"
)

// Target identifies which navigation strategy a session runs
type Target string

const (
	TargetVideoPlatform Target = "video-platform"
	TargetWebsite       Target = "website"

	// targetYouTubeAlias is the wire value older clients send for the video platform
	targetYouTubeAlias Target = "youtube"
)

// KnownTargets lists every target that must have a registered strategy
func KnownTargets() []Target {
	return []Target{TargetVideoPlatform, TargetWebsite}
}

// Normalize maps wire aliases onto canonical targets
func (t Target) Normalize() Target {
	normalized := Target(strings.ToLower(strings.TrimSpace(string(t))))
	if normalized == targetYouTubeAlias {
		return TargetVideoPlatform
	}
	return normalized
}

// Status is a lifecycle state carried by a BotStatusEvent
type Status string

const (
	StatusStarting  Status = "starting"
	StatusProgress  Status = "progress"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// IsTerminal reports whether no further events may follow this status
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Search engines supported by the strategies
const (
	SearchEngineGoogle = "google"
	SearchEngineBing   = "bing"
)

// ProxyAuth holds optional proxy credentials
type ProxyAuth struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// SessionConfig describes one scripted browsing run.
// It is passed by value and never mutated once a session starts.
type SessionConfig struct {
	SessionID    string `json:"sessionId,omitempty" yaml:"sessionId"`
	Target       Target `json:"target" yaml:"target"`
	SearchEngine string `json:"searchEngine,omitempty" yaml:"searchEngine"`

	// Video platform
	VideoKeyword  string  `json:"ytKeyword,omitempty" yaml:"ytKeyword"`
	DirectURL     string  `json:"ytDirectUrl,omitempty" yaml:"ytDirectUrl"`
	WatchDuration float64 `json:"watchDuration,omitempty" yaml:"watchDuration"` // minutes
	Like          bool    `json:"ytLike,omitempty" yaml:"ytLike"`
	SkipChannel   bool    `json:"skipChannel,omitempty" yaml:"skipChannel"`

	// Website
	WebURL        string `json:"webUrl,omitempty" yaml:"webUrl"`
	WebKeyword    string `json:"webKeyword,omitempty" yaml:"webKeyword"`
	ClickLinks    bool   `json:"clickLinks,omitempty" yaml:"clickLinks"`
	ScrollPattern string `json:"scrollPattern,omitempty" yaml:"scrollPattern"`

	// Browser
	ProxyServer string     `json:"proxyServer,omitempty" yaml:"proxyServer"`
	ProxyAuth   *ProxyAuth `json:"proxyAuth,omitempty" yaml:"proxyAuth"`
	UserAgent   string     `json:"userAgent,omitempty" yaml:"userAgent"`
}

// HasProxyAuth reports whether proxy credentials were supplied
func (c SessionConfig) HasProxyAuth() bool {
	return c.ProxyAuth != nil && c.ProxyAuth.Username != ""
}

// BotStatusEvent is a lifecycle notification for one session
type BotStatusEvent struct {
	SessionID string    `json:"sessionId"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionResult summarizes a finished orchestrator run
type SessionResult struct {
	SessionID  string    `json:"sessionId"`
	Target     Target    `json:"target"`
	Status     Status    `json:"status"`
	Message    string    `json:"message"`
	NoOp       bool      `json:"noOp,omitempty"` // unknown target, nothing was launched
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Duration returns how long the session ran
func (r SessionResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
