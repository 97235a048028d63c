package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sriram-PR/sitemap-stats/pkg/config"
	"github.com/Sriram-PR/sitemap-stats/pkg/models"
)

// handleProcessSitemaps handles the process_sitemaps tool
func (s *Server) handleProcessSitemaps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urls, err := stringList(request.GetArguments()["urls"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(urls) == 0 {
		return mcp.NewToolResultError("urls parameter is required and must not be empty"), nil
	}
	if limit := s.maxRequestURLs(); len(urls) > limit {
		return mcp.NewToolResultError(fmt.Sprintf("%d URLs exceeds the limit of %d per call", len(urls), limit)), nil
	}

	mode := models.OutputMode(strings.ToLower(request.GetString("mode", "")))
	if mode != "" && !mode.IsValid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid mode %q (supported: count, listing)", mode)), nil
	}

	s.log.WithField("urls", len(urls)).Info("process_sitemaps called")
	batch := s.cfg.Orchestrator.RunMode(ctx, urls, mode)

	result := map[string]interface{}{
		"batch_id": batch.BatchID,
		"mode":     batch.Mode,
		"result":   batch.Payload(),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleInspectSitemap handles the inspect_sitemap tool
func (s *Server) handleInspectSitemap(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urlStr := strings.TrimSpace(request.GetString("url", ""))
	if urlStr == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	inspected := s.cfg.Orchestrator.Inspect(ctx, urlStr)

	result := map[string]interface{}{
		"url":          inspected.URL,
		"kind":         inspected.Outcome.Kind,
		"record_count": len(inspected.Outcome.Records),
		"records":      inspected.Outcome.Records,
		"duration_ms":  inspected.Duration.Milliseconds(),
	}
	if inspected.DomainOK {
		result["domain"] = inspected.Domain
	}
	if inspected.Outcome.Failure != nil {
		result["failure"] = inspected.Outcome.Failure.Error()
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

func (s *Server) maxRequestURLs() int {
	if s.cfg.AppConfig.MaxRequestURLs > 0 {
		return s.cfg.AppConfig.MaxRequestURLs
	}
	return config.DefaultMaxRequestURLs
}

// stringList accepts a JSON array of strings or of {"url": string} objects
func stringList(raw interface{}) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("urls must be an array, got %T", raw)
	}

	urls := make([]string, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			urls = append(urls, v)
		case map[string]interface{}:
			u, ok := v["url"].(string)
			if !ok {
				return nil, fmt.Errorf("urls[%d] has no string \"url\" field", i)
			}
			urls = append(urls, u)
		default:
			return nil, fmt.Errorf("urls[%d] must be a string, got %T", i, item)
		}
	}
	return urls, nil
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
