package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/crawler"
	"github.com/Sriram-PR/topic-crawler/pkg/orchestrate"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
)

const (
	serverName    = "topic-crawler"
	serverVersion = "1.0.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig    *config.AppConfig
	ConfigPath   string
	Transport    string // "stdio" or "sse"
	Port         int
	Logger       *logrus.Logger
	Store        *storage.BadgerStore
	Crawler      *crawler.Crawler
	Orchestrator *orchestrate.Orchestrator
}

// Server exposes the crawl pipeline as MCP tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	jobManager *JobManager

	mu        sync.Mutex
	sseServer *server.SSEServer
	cycles    sync.WaitGroup
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Store == nil || cfg.Crawler == nil || cfg.Orchestrator == nil {
		return nil, fmt.Errorf("Store, Crawler and Orchestrator are required")
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
	listCategoriesTool := mcp.NewTool("list_categories",
		mcp.WithDescription("List the configured crawl categories with their seeds and limits"),
	)
	s.mcpServer.AddTool(listCategoriesTool, s.handleListCategories)

	triggerCycleTool := mcp.NewTool("trigger_cycle",
		mcp.WithDescription("Seed a crawl cycle and run it to completion in the background. Returns immediately with a job ID."),
		mcp.WithString("category",
			mcp.Description("Category key from config (e.g., 'technology'). Omit for every category."),
		),
		mcp.WithBoolean("fresh",
			mcp.Description("Delete the category's jobs and reset its discovery counters before seeding"),
		),
	)
	s.mcpServer.AddTool(triggerCycleTool, s.handleTriggerCycle)

	getJobStatusTool := mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status of a cycle job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by trigger_cycle"),
		),
	)
	s.mcpServer.AddTool(getJobStatusTool, s.handleGetJobStatus)

	crawlStatsTool := mcp.NewTool("crawl_stats",
		mcp.WithDescription("Report URL, queue and job counts of the crawl store"),
	)
	s.mcpServer.AddTool(crawlStatsTool, s.handleCrawlStats)

	scoreURLTool := mcp.NewTool("score_url",
		mcp.WithDescription("Score a URL's relevance to a category and tell whether discovery would follow it"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL to score"),
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Category key from config"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Depth the link would be admitted at (default: 1)"),
		),
	)
	s.mcpServer.AddTool(scoreURLTool, s.handleScoreURL)

	normalizeURLTool := mcp.NewTool("normalize_url",
		mcp.WithDescription("Show the canonical form and dedup hash of a URL"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL to normalize"),
		),
	)
	s.mcpServer.AddTool(normalizeURLTool, s.handleNormalizeURL)

	s.log.Infof("Registered %d MCP tools", 6)
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
		s.mu.Lock()
		s.sseServer = sseServer
		s.mu.Unlock()
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels running cycles, waits for them to release their jobs and
// stops the SSE listener if one is up
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()

	done := make(chan struct{})
	go func() {
		s.cycles.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	sseServer := s.sseServer
	s.mu.Unlock()
	if sseServer != nil {
		return sseServer.Shutdown(ctx)
	}
	return nil
}
