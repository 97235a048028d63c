package config

import (
	"fmt"
	"time"

	"github.com/Sriram-PR/sitemap-stats/pkg/models"
	"github.com/Sriram-PR/sitemap-stats/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// ListenAddr
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}

	// UserAgent
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	// OutputMode
	if c.OutputMode == "" {
		c.OutputMode = models.OutputModeCount
	} else if !c.OutputMode.IsValid() {
		return warnings, fmt.Errorf("%w: output_mode must be %q or %q, got %q",
			utils.ErrConfigValidation, models.OutputModeListing, models.OutputModeCount, c.OutputMode)
	}

	// MaxConcurrency
	if c.MaxConcurrency == nil {
		n := DefaultMaxConcurrency
		c.MaxConcurrency = &n
	} else if *c.MaxConcurrency < 0 {
		warnings = append(warnings, fmt.Sprintf("max_concurrency cannot be negative, defaulting to %d", DefaultMaxConcurrency))
		n := DefaultMaxConcurrency
		c.MaxConcurrency = &n
	} else if *c.MaxConcurrency == 0 {
		warnings = append(warnings, "max_concurrency is 0, all sitemap fetches of a batch will run at once")
	}

	// VerifyTLS
	if !c.EffectiveVerifyTLS() {
		warnings = append(warnings, "verify_tls is false, server certificates will not be checked")
	}

	// MaxBodyBytes
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// MaxRequestURLs
	if c.MaxRequestURLs <= 0 {
		c.MaxRequestURLs = DefaultMaxRequestURLs
	}

	// ShutdownTimeout
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = DefaultRequestTimeout
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
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
}
