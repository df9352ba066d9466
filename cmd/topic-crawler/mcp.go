package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/topic-crawler/pkg/mcp"
)

// runMcpServer handles the mcp-server subcommand
func runMcpServer(args []string) {
	fs := flag.NewFlagSet("mcp-server", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	transport := fs.String("transport", "stdio", "Transport type (stdio, sse)")
	port := fs.Int("port", 8080, "HTTP port (for sse transport)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: topic-crawler mcp-server [options]

Start an MCP (Model Context Protocol) server for AI tool integration.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Start with stdio transport
  topic-crawler mcp-server -config config.yaml

  # Start with SSE transport on port 8080
  topic-crawler mcp-server -config config.yaml -transport sse -port 8080

Available MCP Tools:
  list_categories  List all configured categories
  trigger_cycle    Start a background crawl cycle
  get_job_status   Check a background cycle
  crawl_stats      Report URL, queue and job counts
  score_url        Score a URL against a category
  normalize_url    Show a URL's canonical form and hash
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doMcpServer(*configFile, *transport, *port, *logLevel, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doMcpServer is the testable implementation of the MCP server
func doMcpServer(configPath, transport string, port int, logLevel string, stdout, stderr io.Writer) int {
	log := logrus.New()
	log.SetOutput(stderr) // MCP protocol uses stdout, logs go to stderr
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid log level: %s\n", logLevel)
		return 1
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})

	if transport != "stdio" && transport != "sse" {
		fmt.Fprintf(stderr, "Unknown transport: %s (supported: stdio, sse)\n", transport)
		return 1
	}

	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	appWarnings, err := appCfg.Validate()
	for _, w := range appWarnings {
		log.Warn(w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error validating config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := openRuntime(ctx, appCfg, log.WithField("component", "mcp-server"))
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing crawl state: %v\n", err)
		return 1
	}
	defer rt.close()
	go rt.store.RunGC(ctx, appCfg.Storage.GCInterval)

	serverCfg := &mcp.ServerConfig{
		AppConfig:    appCfg,
		ConfigPath:   configPath,
		Transport:    transport,
		Port:         port,
		Logger:       log,
		Store:        rt.store,
		Crawler:      rt.crawler,
		Orchestrator: rt.orchestrator,
	}

	server, err := mcp.NewServer(serverCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating MCP server: %v\n", err)
		return 1
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		log.Infof("Starting MCP server (transport: %s)", transport)
		errChan <- server.Run()
	}()

	var runErr error
	select {
	case runErr = <-errChan:
	case sig := <-sigChan:
		log.Warnf("Received signal: %v. Shutting down MCP server...", sig)
	}

	// Background cycles hold the store; they must stop before it closes
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("MCP server shutdown error: %v", err)
	}

	if runErr != nil {
		fmt.Fprintf(stderr, "MCP server error: %v\n", runErr)
		return 1
	}
	return 0
}
