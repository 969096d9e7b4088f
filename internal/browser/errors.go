package browser

import (
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrElementNotFound = errors.New("element not found")
)

// LaunchError means the browser process or its page could not be prepared
type LaunchError struct {
	Stage string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("browser launch failed at %s: %v", e.Stage, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// NavigationError means the page did not reach the requested URL
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// SelectorTimeoutError means an expected element did not appear in time
type SelectorTimeoutError struct {
	Selector string
	Timeout  time.Duration
	Err      error
}

func (e *SelectorTimeoutError) Error() string {
	return fmt.Sprintf("selector %q did not appear within %s", e.Selector, e.Timeout)
}

func (e *SelectorTimeoutError) Unwrap() error { return e.Err }
