package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-stats/pkg/config"
	"github.com/Sriram-PR/sitemap-stats/pkg/models"
	"github.com/Sriram-PR/sitemap-stats/pkg/pipeline"
)

const (
	serverName    = "sitemap-stats"
	serverVersion = "1.0.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig    *config.AppConfig
	Orchestrator *pipeline.Orchestrator
	Transport    string // "stdio" or "sse"
	Port         int
	Logger       *logrus.Logger
}

// Server wraps the MCP server with the sitemap tools
type Server struct {
	mcpServer *server.MCPServer
	cfg       *ServerConfig
	log       *logrus.Entry
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("Orchestrator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		cfg:       cfg,
		log:       cfg.Logger.WithField("component", "mcp"),
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	// process_sitemaps - Run a batch
	processTool := mcp.NewTool("process_sitemaps",
		mcp.WithDescription("Fetch and parse a list of sitemap URLs concurrently. Returns per-domain weekly counts with a failure ledger (mode 'count') or every discovered URL (mode 'listing')."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("Absolute sitemap URLs to process"),
			mcp.WithStringItems(),
		),
		mcp.WithString("mode",
			mcp.Description("Output mode: 'count' or 'listing' (defaults to the configured mode)"),
			mcp.Enum(string(models.OutputModeCount), string(models.OutputModeListing)),
		),
	)
	s.mcpServer.AddTool(processTool, s.handleProcessSitemaps)

	// inspect_sitemap - Classify one sitemap
	inspectTool := mcp.NewTool("inspect_sitemap",
		mcp.WithDescription("Fetch a single sitemap URL and report whether it is a URL set, a sitemap index or a failure, with its records"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The sitemap URL to inspect"),
		),
	)
	s.mcpServer.AddTool(inspectTool, s.handleInspectSitemap)

	s.log.Infof("Registered %d MCP tools", 2)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(_ context.Context) error {
	s.log.Info("Shutting down MCP server...")
	return nil
}
