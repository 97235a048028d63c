package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-stats/pkg/config"
	"github.com/Sriram-PR/sitemap-stats/pkg/models"
	"github.com/Sriram-PR/sitemap-stats/pkg/utils"
)

// HTTPFetcher performs a single GET for a sitemap URL
type HTTPFetcher interface {
	Fetch(ctx context.Context, rawURL string) models.FetchOutcome
}

// Fetcher is the production HTTPFetcher backed by a shared http.Client.
// It performs exactly one attempt per URL.
type Fetcher struct {
	client               *http.Client
	userAgent            string
	extraHeaders         map[string]string
	maxBodyBytes         int64
	requireSuccessStatus bool
	log                  *logrus.Entry
}

var _ HTTPFetcher = (*Fetcher)(nil)

// NewFetcher creates a new Fetcher instance from the validated application config
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Logger) *Fetcher {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = config.DefaultMaxBodyBytes
	}
	return &Fetcher{
		client:               client,
		userAgent:            userAgent,
		extraHeaders:         cfg.ExtraHeaders,
		maxBodyBytes:         maxBody,
		requireSuccessStatus: cfg.EffectiveRequireSuccessStatus(),
		log:                  log.WithField("component", "fetcher"),
	}
}

// Fetch issues one GET and returns the response body or a classified failure.
// It never returns an error: network, TLS, timeout and status problems all end up in FetchOutcome.Failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) models.FetchOutcome {
	reqLog := f.log.WithField("url", rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return f.fail(reqLog, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err), 0)
	}
	req.Header.Set("User-Agent", f.userAgent)
	for name, value := range f.extraHeaders {
		req.Header.Set(name, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return f.fail(reqLog, utils.ClassifyNetworkError(err), 0)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)) // Let the connection be reused
		resp.Body.Close()
	}()

	statusCode := resp.StatusCode
	if f.requireSuccessStatus && (statusCode < 200 || statusCode >= 300) {
		return f.fail(reqLog, fmt.Errorf("%w: status %d", utils.ErrHTTPStatus, statusCode), statusCode)
	}

	// Read one byte past the limit to detect oversized bodies
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return f.fail(reqLog, utils.ClassifyNetworkError(fmt.Errorf("%w: %v", utils.ErrResponseBodyRead, err)), statusCode)
	}
	if int64(len(data)) > f.maxBodyBytes {
		return f.fail(reqLog, fmt.Errorf("%w: body exceeds %d bytes", utils.ErrResponseBodyRead, f.maxBodyBytes), statusCode)
	}

	reqLog.WithFields(logrus.Fields{"status_code": statusCode, "bytes": len(data)}).Debug("Fetched sitemap")
	return models.FetchOutcome{StatusCode: statusCode, Body: string(data)}
}

func (f *Fetcher) fail(reqLog *logrus.Entry, err error, statusCode int) models.FetchOutcome {
	failure := utils.FailureFrom(err)
	reqLog.WithFields(logrus.Fields{
		"status_code":    statusCode,
		"error_category": utils.CategorizeError(err),
	}).Warnf("Fetch failed: %v", err)
	return models.FetchOutcome{StatusCode: statusCode, Failure: failure}
}
