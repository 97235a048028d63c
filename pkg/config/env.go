package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Sriram-PR/sitemap-stats/pkg/models"
	"github.com/Sriram-PR/sitemap-stats/pkg/utils"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "SITEMAP_"

// LookupFunc matches os.LookupEnv
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads KEY=VALUE pairs from a .env file into the process environment.
// Variables already set are not overwritten. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return utils.WrapErrorf(err, "load env file %s", path)
	}
	return nil
}

// ApplyEnv overlays SITEMAP_* environment variables on top of the file config.
// Recognized keys:
//
//	SITEMAP_LISTEN_ADDR, SITEMAP_USER_AGENT, SITEMAP_VERIFY_TLS,
//	SITEMAP_MAX_CONCURRENCY, SITEMAP_REQUIRE_SUCCESS_STATUS, SITEMAP_OUTPUT_MODE,
//	SITEMAP_INCLUDE_SUMMARY, SITEMAP_TIMEOUT_SECONDS, SITEMAP_MAX_BODY_BYTES,
//	SITEMAP_EXTRA_HEADERS (comma separated Name=Value pairs)
func (c *AppConfig) ApplyEnv(lookup LookupFunc) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("LISTEN_ADDR"); ok && v != "" {
		c.ListenAddr = v
	}
	if v, ok := get("USER_AGENT"); ok && v != "" {
		c.UserAgent = v
	}
	if v, ok := get("OUTPUT_MODE"); ok && v != "" {
		c.OutputMode = models.OutputMode(strings.ToLower(v))
	}

	boolVars := []struct {
		name   string
		target **bool
	}{
		{"VERIFY_TLS", &c.VerifyTLS},
		{"REQUIRE_SUCCESS_STATUS", &c.RequireSuccessStatus},
		{"INCLUDE_SUMMARY", &c.IncludeSummary},
	}
	for _, bv := range boolVars {
		v, ok := get(bv.name)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not a boolean", utils.ErrConfigValidation, EnvPrefix, bv.name, v)
		}
		*bv.target = &b
	}

	if v, ok := get("MAX_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sMAX_CONCURRENCY=%q is not an integer", utils.ErrConfigValidation, EnvPrefix, v)
		}
		c.MaxConcurrency = &n
	}

	if v, ok := get("TIMEOUT_SECONDS"); ok && v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs <= 0 {
			return fmt.Errorf("%w: %sTIMEOUT_SECONDS=%q must be a positive number", utils.ErrConfigValidation, EnvPrefix, v)
		}
		c.HTTPClientSettings.Timeout = time.Duration(secs * float64(time.Second))
	}

	if v, ok := get("MAX_BODY_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %sMAX_BODY_BYTES=%q is not an integer", utils.ErrConfigValidation, EnvPrefix, v)
		}
		c.MaxBodyBytes = n
	}

	if v, ok := get("EXTRA_HEADERS"); ok && v != "" {
		if c.ExtraHeaders == nil {
			c.ExtraHeaders = make(map[string]string)
		}
		for _, pair := range strings.Split(v, ",") {
			name, value, found := strings.Cut(pair, "=")
			name = strings.TrimSpace(name)
			if !found || name == "" {
				return fmt.Errorf("%w: %sEXTRA_HEADERS entry %q must be Name=Value", utils.ErrConfigValidation, EnvPrefix, pair)
			}
			c.ExtraHeaders[name] = strings.TrimSpace(value)
		}
	}

	return nil
}
