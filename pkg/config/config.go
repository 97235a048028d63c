package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/sitemap-stats/pkg/models"
	"github.com/Sriram-PR/sitemap-stats/pkg/utils"
)

// AppConfig holds the global application configuration
type AppConfig struct {
	ListenAddr           string            `yaml:"listen_addr"`
	UserAgent            string            `yaml:"user_agent"`
	ExtraHeaders         map[string]string `yaml:"extra_headers,omitempty"`
	VerifyTLS            *bool             `yaml:"verify_tls,omitempty"`             // nil = default (verify)
	MaxConcurrency       *int              `yaml:"max_concurrency,omitempty"`        // nil = default (5); 0 = unbounded fan-out
	RequireSuccessStatus *bool             `yaml:"require_success_status,omitempty"` // nil = default (require 2xx)
	OutputMode           models.OutputMode `yaml:"output_mode"`
	IncludeSummary       *bool             `yaml:"include_summary,omitempty"` // nil = default (include)
	MaxBodyBytes         int64             `yaml:"max_body_bytes,omitempty"`
	MaxRequestURLs       int               `yaml:"max_request_urls,omitempty"`
	ShutdownTimeout      time.Duration     `yaml:"shutdown_timeout,omitempty"`
	HTTPClientSettings   HTTPClientConfig  `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // Tri-state: nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// Default values applied by Validate
const (
	DefaultListenAddr      = ":8000"
	DefaultUserAgent       = "Mozilla/5.0 (compatible; SitemapFetcher/1.0)"
	DefaultMaxConcurrency  = 5
	DefaultMaxBodyBytes    = 50 * 1024 * 1024
	DefaultMaxRequestURLs  = 1000
	DefaultRequestTimeout  = 20 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
)

// Load reads a YAML config file. A missing file yields an empty config so that
// defaults and environment overrides still apply.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, utils.WrapErrorf(err, "read config")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, utils.WrapErrorf(err, "parse config")
	}
	return &cfg, nil
}

// EffectiveVerifyTLS determines whether server certificates are verified
func (c *AppConfig) EffectiveVerifyTLS() bool {
	if c.VerifyTLS != nil {
		return *c.VerifyTLS
	}
	return true
}

// EffectiveMaxConcurrency returns the fetch bound; 0 means unbounded
func (c *AppConfig) EffectiveMaxConcurrency() int {
	if c.MaxConcurrency != nil {
		return *c.MaxConcurrency
	}
	return DefaultMaxConcurrency
}

// EffectiveRequireSuccessStatus determines whether non-2xx responses are failures
func (c *AppConfig) EffectiveRequireSuccessStatus() bool {
	if c.RequireSuccessStatus != nil {
		return *c.RequireSuccessStatus
	}
	return true
}

// EffectiveIncludeSummary determines whether count-mode responses carry the summary block
func (c *AppConfig) EffectiveIncludeSummary() bool {
	if c.IncludeSummary != nil {
		return *c.IncludeSummary
	}
	return true
}
