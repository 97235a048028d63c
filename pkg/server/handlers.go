package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-stats/pkg/config"
	"github.com/Sriram-PR/sitemap-stats/pkg/models"
	"github.com/Sriram-PR/sitemap-stats/pkg/utils"
)

// requestEntry mirrors models.SitemapRequest but detects a missing or null url
type requestEntry struct {
	URL *string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mode": s.orchestrator.Mode().String()})
}

// handleProcessSitemaps runs one batch. Only request-level problems are client errors;
// every per-URL failure is reported inside the response body.
func (s *Server) handleProcessSitemaps(w http.ResponseWriter, r *http.Request) {
	mode, err := parseMode(r.URL.Query().Get("mode"))
	if err != nil {
		s.reject(w, r, http.StatusBadRequest, err)
		return
	}

	urls, err := decodeRequest(r, s.maxRequestURLs())
	if err != nil {
		status := http.StatusBadRequest
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
		}
		s.reject(w, r, status, err)
		return
	}

	result := s.orchestrator.RunMode(r.Context(), urls, mode)

	w.Header().Set("X-Batch-ID", result.BatchID)
	s.writeJSON(w, http.StatusOK, result.Payload())
}

func (s *Server) maxRequestURLs() int {
	if s.cfg.MaxRequestURLs > 0 {
		return s.cfg.MaxRequestURLs
	}
	return config.DefaultMaxRequestURLs
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.log.WithFields(logrus.Fields{
		"request_id":     middleware.GetReqID(r.Context()),
		"error_category": utils.CategorizeError(err),
	}).Warnf("Rejected request: %v", err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// parseMode validates the optional ?mode= override; empty selects the configured mode
func parseMode(raw string) (models.OutputMode, error) {
	if raw == "" {
		return "", nil
	}
	mode := models.OutputMode(strings.ToLower(strings.TrimSpace(raw)))
	if !mode.IsValid() {
		return "", fmt.Errorf("%w: mode must be %q or %q, got %q", utils.ErrInvalidRequest, models.OutputModeListing, models.OutputModeCount, raw)
	}
	return mode, nil
}

// decodeRequest parses the JSON array of {"url": ...} objects
func decodeRequest(r *http.Request, maxURLs int) ([]string, error) {
	var entries []requestEntry
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&entries); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: body must be a JSON array of {\"url\": string} objects: %v", utils.ErrInvalidRequest, err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("%w: unexpected data after JSON array", utils.ErrInvalidRequest)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: at least one sitemap URL is required", utils.ErrInvalidRequest)
	}
	if len(entries) > maxURLs {
		return nil, fmt.Errorf("%w: %d URLs exceeds the limit of %d per request", utils.ErrInvalidRequest, len(entries), maxURLs)
	}

	urls := make([]string, 0, len(entries))
	for i, entry := range entries {
		if entry.URL == nil {
			return nil, fmt.Errorf("%w: entry %d has no \"url\"", utils.ErrInvalidRequest, i)
		}
		urls = append(urls, *entry.URL)
	}
	return urls, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithField("error_category", utils.CategorizeError(err)).Errorf("Failed to write response: %v", err)
	}
}
