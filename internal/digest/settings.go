package digest

import (
	"errors"
	"slices"
	"strings"
	"time"
)

const (
	defaultScanLimit         = 1000
	defaultDispatchTimeout   = 2 * time.Minute
	defaultRenderConcurrency = 4
)

// Config holds the limiter settings used by candidate selection.
type Config struct {
	QuantityLimit  int
	AllowedTypes   []string
	MaxAgeDays     int
	Language       string
	IncludeUpdates bool
}

// Validate checks the selection limits.
func (c Config) Validate() error {
	if c.QuantityLimit <= 0 {
		return &ConfigurationError{Field: "quantity_limit", Err: errors.New("must be greater than 0")}
	}
	if c.MaxAgeDays <= 0 {
		return &ConfigurationError{Field: "age_in_days", Err: errors.New("must be greater than 0")}
	}
	if strings.TrimSpace(c.Language) == "" {
		return &ConfigurationError{Field: "language", Err: errors.New("is required")}
	}
	return nil
}

// Allows reports whether contentType passes the type filter. An empty
// AllowedTypes set allows every type.
func (c Config) Allows(contentType string) bool {
	return len(c.AllowedTypes) == 0 || slices.Contains(c.AllowedTypes, contentType)
}

// Cutoff returns the oldest send time still eligible at now (exclusive).
func (c Config) Cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(c.MaxAgeDays) * 24 * time.Hour)
}

// Settings is the full digest configuration for one workflow run. It is
// passed by value so a run keeps the snapshot it started with.
type Settings struct {
	Active    bool
	Title     string
	ViewMode  string
	PublicURL string

	FromGroup          string
	ToGroups           []string
	TestGroups         []string
	ValidationGroups   []string
	ValidationContacts []string

	Selection Config

	ScanLimit         int
	DispatchTimeout   time.Duration
	RenderConcurrency int
}

// Validate checks the settings required by every workflow operation.
func (s Settings) Validate() error {
	if !s.Active {
		return &ConfigurationError{Field: "is_active", Err: ErrInactive}
	}
	if strings.TrimSpace(s.Title) == "" {
		return &ConfigurationError{Field: "digest_title", Err: errors.New("is required")}
	}
	if strings.TrimSpace(s.ViewMode) == "" {
		return &ConfigurationError{Field: "view_mode", Err: errors.New("is required")}
	}
	if strings.TrimSpace(s.FromGroup) == "" {
		return &ConfigurationError{Field: "from_group", Err: errors.New("is required")}
	}
	if len(s.ToGroups) == 0 {
		return &ConfigurationError{Field: "to_groups", Err: errors.New("at least one group is required")}
	}
	if s.ScanLimit < 0 {
		return &ConfigurationError{Field: "scan_limit", Err: errors.New("must not be negative")}
	}
	return s.Selection.Validate()
}

func (s Settings) scanLimit() int {
	if s.ScanLimit > 0 {
		return s.ScanLimit
	}
	return defaultScanLimit
}

func (s Settings) dispatchTimeout() time.Duration {
	if s.DispatchTimeout > 0 {
		return s.DispatchTimeout
	}
	return defaultDispatchTimeout
}

func (s Settings) renderConcurrency() int {
	if s.RenderConcurrency > 0 {
		return s.RenderConcurrency
	}
	return defaultRenderConcurrency
}
