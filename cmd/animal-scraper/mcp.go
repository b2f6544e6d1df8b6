package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	applog "github.com/Sriram-PR/animal-scraper/pkg/log"
	"github.com/Sriram-PR/animal-scraper/pkg/mcp"
	"github.com/Sriram-PR/animal-scraper/pkg/storage"
)

// runMcpServer handles the mcp-server subcommand
func runMcpServer(args []string) {
	fs := pflag.NewFlagSet("mcp-server", pflag.ExitOnError)
	configFile := fs.StringP("config", "c", "", "Path to config file (default: ./config.yaml if present)")
	transport := fs.String("transport", "stdio", "Transport type (stdio, sse)")
	port := fs.Int("port", 8080, "HTTP port (for sse transport)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error)")
	registerConfigFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: animal-scraper mcp-server [options]

Start an MCP (Model Context Protocol) server for AI tool integration.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Start with stdio transport
  animal-scraper mcp-server -c config.yaml

  # Start with SSE transport on port 8080
  animal-scraper mcp-server -c config.yaml --transport sse --port 8080

Available MCP Tools:
  start_batch       Scrape and download all images in the background
  get_job_status    Progress of a running or finished batch
  cancel_job        Cancel a running batch
  list_runs         Summaries of recent runs
  get_image_status  Recorded state of one image URL
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doMcpServer(*configFile, fs, *transport, *port, *logLevel, os.Stderr))
}

// doMcpServer is the testable implementation of the MCP server
func doMcpServer(configPath string, fs *pflag.FlagSet, transport string, port int, logLevel string, stderr io.Writer) int {
	// MCP protocol uses stdout, logs go to stderr
	if _, err := logrus.ParseLevel(logLevel); err != nil {
		fmt.Fprintf(stderr, "Invalid log level: %s\n", logLevel)
		return 1
	}
	log := applog.NewLogger(logLevel, stderr)

	appCfg, warnings, err := loadConfig(configPath, fs)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One store for the server's lifetime, shared by every job
	store, err := storage.NewBadgerStore(ctx, appCfg.StateDir, true, log.WithField("component", "store"))
	if err != nil {
		fmt.Fprintf(stderr, "Error opening state DB: %v\n", err)
		return 1
	}
	defer store.Close()
	go store.RunGC(ctx, 10*time.Minute)

	server, err := mcp.NewServer(&mcp.ServerConfig{
		AppConfig:  appCfg,
		ConfigPath: configPath,
		Transport:  transport,
		Port:       port,
		Logger:     log,
		Store:      store,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error creating MCP server: %v\n", err)
		return 1
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		if _, ok := <-sigChan; ok {
			server.Shutdown(ctx)
			cancel()
		}
	}()

	log.Infof("Starting MCP server (transport: %s)", transport)
	if err := server.Run(); err != nil {
		server.Shutdown(ctx)
		fmt.Fprintf(stderr, "MCP server error: %v\n", err)
		return 1
	}
	server.Shutdown(ctx)
	return 0
}
