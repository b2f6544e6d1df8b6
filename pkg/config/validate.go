package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.SourceURL == "" {
		c.SourceURL = DefaultSourceURL
	}
	if u, parseErr := url.Parse(c.SourceURL); parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return warnings, fmt.Errorf("%w: source_url '%s' is not an absolute http(s) URL", utils.ErrConfigValidation, c.SourceURL)
	}
	if c.SummaryAPIBase == "" {
		c.SummaryAPIBase = DefaultSummaryAPIBase
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	if c.OutputDir == "" {
		warnings = append(warnings, fmt.Sprintf("output_dir is empty, defaulting to '%s'", DefaultOutputDir))
		c.OutputDir = DefaultOutputDir
	}
	if c.StateDir == "" {
		warnings = append(warnings, fmt.Sprintf("state_dir is empty, defaulting to '%s'", DefaultStateDir))
		c.StateDir = DefaultStateDir
	}

	if c.GlobalTimeout < 0 {
		warnings = append(warnings, "global_timeout cannot be negative, disabling timeout")
		c.GlobalTimeout = 0
	}

	warnings = append(warnings, c.Download.validate()...)
	warnings = append(warnings, c.Scrape.validate()...)
	warnings = append(warnings, c.Publish.validate()...)
	c.validateHTTPClientSettings()

	return warnings, nil
}

func (d *DownloadConfig) validate() (warnings []string) {
	if d.Concurrency <= 0 {
		warnings = append(warnings, fmt.Sprintf("download.concurrency should be > 0, defaulting to %d", DefaultConcurrency))
		d.Concurrency = DefaultConcurrency
	}
	if d.PerItemTimeout <= 0 {
		d.PerItemTimeout = DefaultPerItemTimeout
	}
	if d.MaxBytesPerItem <= 0 {
		if d.MaxBytesPerItem < 0 {
			warnings = append(warnings, "download.max_bytes_per_item cannot be negative, using default")
		}
		d.MaxBytesPerItem = DefaultMaxBytesPerItem
	}
	if d.MaxAttempts <= 0 {
		if d.MaxAttempts < 0 {
			warnings = append(warnings, "download.max_attempts cannot be negative, using default")
		}
		d.MaxAttempts = DefaultMaxAttempts
	}
	if d.BaseBackoff <= 0 {
		d.BaseBackoff = DefaultBaseBackoff
	}
	if d.MaxBackoff <= 0 {
		d.MaxBackoff = DefaultMaxBackoff
	}
	if d.BaseBackoff > d.MaxBackoff {
		warnings = append(warnings, fmt.Sprintf(
			"download.base_backoff (%v) > download.max_backoff (%v), using max_backoff for base",
			d.BaseBackoff, d.MaxBackoff))
		d.BaseBackoff = d.MaxBackoff
	}
	if d.MinRequestInterval < 0 {
		warnings = append(warnings, "download.min_request_interval cannot be negative, disabling throttle")
		d.MinRequestInterval = 0
	}
	return warnings
}

func (s *ScrapeConfig) validate() (warnings []string) {
	if s.APIRequestInterval <= 0 {
		s.APIRequestInterval = DefaultAPIRequestInterval
	}
	if s.APIConcurrency <= 0 {
		s.APIConcurrency = DefaultAPIConcurrency
	}
	if s.MaxRecords < 0 {
		warnings = append(warnings, "scrape.max_records cannot be negative, setting to 0 (unlimited)")
		s.MaxRecords = 0
	}
	return warnings
}

func (p *PublishConfig) validate() (warnings []string) {
	if p.BucketURL == "" {
		return nil
	}
	if p.Concurrency <= 0 {
		p.Concurrency = DefaultPublishConcurrency
	}
	return nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		// Match the worker pool
		h.MaxIdleConnsPerHost = c.Download.Concurrency
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
}
