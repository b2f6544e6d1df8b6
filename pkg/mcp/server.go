package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/animal-scraper/pkg/config"
	"github.com/Sriram-PR/animal-scraper/pkg/storage"
)

const (
	serverName    = "animal-scraper"
	serverVersion = "1.0.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig // Must be validated
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger
	Store      storage.StateStore // Shared by every job; badger allows one open per directory
}

// Server exposes the download pipeline as MCP tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	jobManager *JobManager
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("Store is required")
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
		mcpServer:  mcpServer,
		cfg:        cfg,
		log:        cfg.Logger.WithField("component", "mcp"),
		jobManager: NewJobManager(),
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	startBatchTool := mcp.NewTool("start_batch",
		mcp.WithDescription("Scrape the animal list page and download every animal image in the background. Returns immediately with a job ID."),
		mcp.WithString("source_url",
			mcp.Description("List page to scrape (defaults to the configured source_url)"),
		),
		mcp.WithBoolean("only_failed",
			mcp.Description("Only retry images recorded as failed by earlier runs"),
		),
	)
	s.mcpServer.AddTool(startBatchTool, s.handleStartBatch)

	getJobStatusTool := mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status and progress of a download job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by start_batch"),
		),
	)
	s.mcpServer.AddTool(getJobStatusTool, s.handleGetJobStatus)

	cancelJobTool := mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a running download job. Items in flight finish as cancelled."),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by start_batch"),
		),
	)
	s.mcpServer.AddTool(cancelJobTool, s.handleCancelJob)

	listRunsTool := mcp.NewTool("list_runs",
		mcp.WithDescription("List summaries of completed runs, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs to return (default: 10, max: 100)"),
		),
	)
	s.mcpServer.AddTool(listRunsTool, s.handleListRuns)

	imageStatusTool := mcp.NewTool("get_image_status",
		mcp.WithDescription("Look up the recorded download status of one image URL"),
		mcp.WithString("source_url",
			mcp.Required(),
			mcp.Description("Image URL as resolved from the animal's page"),
		),
	)
	s.mcpServer.AddTool(imageStatusTool, s.handleGetImageStatus)

	s.log.Infof("Registered %d MCP tools", 5)
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

// Shutdown cancels running jobs. The store stays open; its owner closes it.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
