// Package config - validation logic for configuration values
package config

import (
	"errors"
	"fmt"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s - %s", e.Field, e.Message)
}

// Validate checks all configuration values for validity
func (c *Config) Validate() error {
	var errs []error

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: "must be one of debug, info, warn, error",
		})
	}

	// Server
	if c.Server.Address == "" {
		errs = append(errs, ValidationError{
			Field:   "server.address",
			Message: "must not be empty",
		})
	}

	if c.Server.StartRatePerMinute < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.start_rate_per_minute",
			Message: "must not be negative",
		})
	}

	if c.Server.StartRatePerMinute > 0 && c.Server.StartBurst <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.start_burst",
			Message: "must be greater than 0 when rate limiting is enabled",
		})
	}

	// Browser
	if c.Browser.ViewportWidth <= 0 {
		errs = append(errs, ValidationError{
			Field:   "browser.viewport_width",
			Message: "must be greater than 0",
		})
	}

	if c.Browser.ViewportHeight <= 0 {
		errs = append(errs, ValidationError{
			Field:   "browser.viewport_height",
			Message: "must be greater than 0",
		})
	}

	if c.Browser.NavigationTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "browser.navigation_timeout_seconds",
			Message: "must be greater than 0",
		})
	}

	// Stealth
	if c.Stealth.MouseSpeedMin <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stealth.mouse_speed_min",
			Message: "must be greater than 0",
		})
	}

	if c.Stealth.MouseSpeedMax < c.Stealth.MouseSpeedMin {
		errs = append(errs, ValidationError{
			Field:   "stealth.mouse_speed_max",
			Message: "must not be less than mouse_speed_min",
		})
	}

	// Session
	if c.Session.MaxConcurrent < 0 {
		errs = append(errs, ValidationError{
			Field:   "session.max_concurrent",
			Message: "must not be negative",
		})
	}

	if c.Session.WatchCeilingSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.watch_ceiling_seconds",
			Message: "must be greater than 0",
		})
	}

	if c.Session.DefaultWatchMinutes <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.default_watch_minutes",
			Message: "must be greater than 0",
		})
	}

	if c.Session.WatchScrollIntervalSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.watch_scroll_interval_seconds",
			Message: "must be greater than 0",
		})
	}

	if c.Session.ResultTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.result_timeout_seconds",
			Message: "must be greater than 0",
		})
	}

	// Storage
	if c.Storage.DatabasePath == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.database_path",
			Message: "must not be empty (use :memory: for an in-process store)",
		})
	}

	if c.Storage.RetentionMinutes < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.retention_minutes",
			Message: "must not be negative",
		})
	}

	if c.Events.NATSURL != "" && c.Events.NATSSubject == "" {
		errs = append(errs, ValidationError{
			Field:   "events.nats_subject",
			Message: "is required when events.nats_url is set",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
