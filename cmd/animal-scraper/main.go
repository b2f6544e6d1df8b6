package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/Sriram-PR/animal-scraper/pkg/config"
	applog "github.com/Sriram-PR/animal-scraper/pkg/log"
	"github.com/Sriram-PR/animal-scraper/pkg/orchestrate"
	"github.com/Sriram-PR/animal-scraper/pkg/storage"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

const version = "1.0.0"

// shutdownGrace bounds how long a cancelled run may take before the process is forced out
const shutdownGrace = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runPipeline(os.Args[2:], false)
	case "resume":
		runPipeline(os.Args[2:], true)
	case "validate":
		runValidate(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("animal-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `animal-scraper - Collateral adjective scraper and image downloader

Usage:
  animal-scraper <command> [options]

Commands:
  run         Scrape the list page and download all images (fresh state)
  resume      Run again keeping state; already downloaded images are skipped
  validate    Validate configuration and print the effective settings
  status      Show stored image state and recent runs
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'animal-scraper <command> -h' for command-specific help.`)
}

// registerConfigFlags adds the flags config.Load binds over the file and environment
func registerConfigFlags(fs *pflag.FlagSet) {
	fs.String("source-url", config.DefaultSourceURL, "List page to scrape")
	fs.String("output-dir", config.DefaultOutputDir, "Directory for downloaded images and reports")
	fs.String("state-dir", config.DefaultStateDir, "Directory for the state database")
	fs.String("user-agent", config.DefaultUserAgent, "User-Agent header for all requests")
	fs.Int("concurrency", config.DefaultConcurrency, "Maximum simultaneous downloads")
	fs.Int("max-attempts", config.DefaultMaxAttempts, "Attempts per image, including the first")
	fs.Duration("timeout", config.DefaultPerItemTimeout, "Deadline for one download attempt")
	fs.Int64("max-bytes", config.DefaultMaxBytesPerItem, "Maximum size of one image in bytes")
	fs.Duration("min-request-interval", config.DefaultMinRequestInterval, "Minimum spacing between request starts")
	fs.Bool("respect-robots", false, "Skip images disallowed by robots.txt")
	fs.Int("max-records", 0, "Stop after this many animals (0 = no limit)")
	fs.String("publish-bucket", "", "Blob bucket URL to publish images to (file://, s3://, gs://, mem://)")
}

// loadConfig loads and validates configuration, returning validation warnings
func loadConfig(path string, fs *pflag.FlagSet) (*config.AppConfig, []string, error) {
	appCfg, err := config.Load(path, fs)
	if err != nil {
		return nil, nil, err
	}
	warnings, err := appCfg.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return appCfg, warnings, nil
}

// runPipeline handles both run and resume subcommands
func runPipeline(args []string, isResume bool) {
	cmdName := "run"
	if isResume {
		cmdName = "resume"
	}

	fs := pflag.NewFlagSet(cmdName, pflag.ExitOnError)
	configFile := fs.StringP("config", "c", "", "Path to config file (default: ./config.yaml if present)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	pprofAddr := fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")
	runID := fs.String("run-id", "", "Identifier for this run (generated when empty)")
	var failedOnly *bool
	if isResume {
		failedOnly = fs.Bool("failed-only", false, "Only retry images recorded as failed")
	}
	registerConfigFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: animal-scraper %s [options]\n\nOptions:\n", cmdName)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  animal-scraper %s -c config.yaml\n", cmdName)
		fmt.Fprintf(os.Stderr, "  animal-scraper %s --concurrency 8 --max-records 50\n", cmdName)
		if isResume {
			fmt.Fprintf(os.Stderr, "  animal-scraper resume --failed-only\n")
		}
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := applog.NewLogger(*logLevel, os.Stderr)
	appCfg, warnings, err := loadConfig(*configFile, fs)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	for _, w := range warnings {
		log.Warn(w)
	}
	logAppConfig(appCfg, log)

	startPprof(*pprofAddr, log)

	opts := orchestrate.RunOptions{RunID: *runID}
	if failedOnly != nil {
		opts.OnlyFailed = *failedOnly
	}
	os.Exit(executeRun(appCfg, opts, isResume, log))
}

// executeRun wires signal handling around doRun
func executeRun(appCfg *config.AppConfig, opts orchestrate.RunOptions, resume bool, log *logrus.Logger) int {
	var runCtx context.Context
	var cancelRun context.CancelFunc
	if appCfg.GlobalTimeout > 0 {
		log.Infof("Setting global timeout: %v", appCfg.GlobalTimeout)
		runCtx, cancelRun = context.WithTimeout(context.Background(), appCfg.GlobalTimeout)
	} else {
		runCtx, cancelRun = context.WithCancel(context.Background())
	}
	defer cancelRun()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go handleSignals(sigChan, cancelRun, log)

	return doRun(runCtx, appCfg, opts, resume, log.WithField("command", "run"))
}

// handleSignals cancels on the first signal and forces exit on a second one or after the grace period
func handleSignals(sigChan <-chan os.Signal, cancel context.CancelFunc, log *logrus.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("PANIC in signal handler: %v", r)
		}
	}()
	sig, ok := <-sigChan
	if !ok {
		return
	}
	log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
	cancel()

	select {
	case sig = <-sigChan:
		log.Warnf("Received second signal: %v. Forcing exit.", sig)
		os.Exit(1)
	case <-time.After(shutdownGrace):
		log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
		os.Exit(1)
	}
}

// doRun opens the store and runs one pipeline. Returns the exit code.
// Failed images do not fail the run; scrape and configuration errors do.
func doRun(ctx context.Context, appCfg *config.AppConfig, opts orchestrate.RunOptions, resume bool, log *logrus.Entry) int {
	store, err := storage.NewBadgerStore(ctx, appCfg.StateDir, resume, log)
	if err != nil {
		log.Errorf("Failed to initialize state DB: %v", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warnf("Error closing state DB: %v", err)
		}
	}()

	gcCtx, stopGC := context.WithCancel(ctx)
	defer stopGC()
	go store.RunGC(gcCtx, 10*time.Minute)

	res, err := orchestrate.NewOrchestrator(appCfg, store, log).Run(ctx, opts)
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			log.Error("Run timed out (global timeout).")
			return 1
		case errors.Is(err, utils.ErrCancelled) || errors.Is(ctx.Err(), context.Canceled):
			log.Warn("Run cancelled gracefully.")
			return 0
		default:
			log.Errorf("Run finished with error: %v", err)
			return 1
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Error("Run timed out (global timeout).")
		return 1
	}
	if res.Summary.Failed > 0 {
		log.Warnf("Run completed with %d failed images. Use 'resume --failed-only' to retry them.", res.Summary.Failed)
	} else {
		log.Info("Run completed successfully.")
	}
	return 0
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := pflag.NewFlagSet("validate", pflag.ExitOnError)
	configFile := fs.StringP("config", "c", "", "Path to config file (default: ./config.yaml if present)")
	printCfg := fs.Bool("print", false, "Print the effective configuration as YAML")
	registerConfigFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: animal-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, fs, *printCfg, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, fs *pflag.FlagSet, printCfg bool, stdout, stderr io.Writer) int {
	appCfg, warnings, err := loadConfig(configPath, fs)
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if printCfg {
		out, err := config.DumpYAML(appCfg)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		stdout.Write(out)
	}

	fmt.Fprintf(stdout, "Configuration valid (source: %s, output: %s)\n", appCfg.SourceURL, appCfg.OutputDir)
	return 0
}

// runStatus handles the status subcommand
func runStatus(args []string) {
	fs := pflag.NewFlagSet("status", pflag.ExitOnError)
	configFile := fs.StringP("config", "c", "", "Path to config file (default: ./config.yaml if present)")
	limit := fs.Int("runs", 5, "Number of recent runs to show")
	fs.String("state-dir", config.DefaultStateDir, "Directory for the state database")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: animal-scraper status [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doStatus(*configFile, fs, *limit, os.Stdout, os.Stderr))
}

// doStatus prints stored image counts, failures by category and recent runs
func doStatus(configPath string, fs *pflag.FlagSet, limit int, stdout, stderr io.Writer) int {
	appCfg, _, err := loadConfig(configPath, fs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	quiet := applog.NewLogger("error", stderr)
	store, err := storage.NewBadgerStore(context.Background(), appCfg.StateDir, true, logrus.NewEntry(quiet))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	count, err := store.GetImageCount()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	failed, err := store.FailedImages(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	runs, err := store.ListRuns(limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "State: %s\n", appCfg.StateDir)
	fmt.Fprintf(stdout, "Images recorded: %d (%d failed)\n", count, len(failed))

	byCategory := make(map[string]int)
	for _, f := range failed {
		byCategory[f.Entry.ErrorType]++
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Fprintf(stdout, "  %s: %d\n", c, byCategory[c])
	}

	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No runs recorded.")
		return 0
	}
	fmt.Fprintln(stdout, "Recent runs:")
	for _, r := range runs {
		fmt.Fprintf(stdout, "  %s  %s  total=%d ok=%d failed=%d skipped=%d cancelled=%d\n",
			r.StartedAt.Format(time.RFC3339), r.RunID, r.Total, r.Succeeded, r.Failed, r.Skipped, r.Cancelled)
	}
	return 0
}

// startPprof serves pprof on addr in the background when addr is set
func startPprof(addr string, log *logrus.Logger) {
	if addr == "" {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in pprof server: %v", r)
			}
		}()
		log.Infof("Starting pprof HTTP server on: http://%s/debug/pprof/", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Errorf("Pprof server failed to start on %s: %v", addr, err)
		}
	}()
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: Source:%s, OutputDir:%s, StateDir:%s", appCfg.SourceURL, appCfg.OutputDir, appCfg.StateDir)
	d := appCfg.Download
	log.Infof("Config Download: Concurrency:%d, MaxAttempts:%d, Backoff:%v..%v, MinInterval:%v, Timeout:%v, MaxBytes:%d",
		d.Concurrency, d.MaxAttempts, d.BaseBackoff, d.MaxBackoff, d.MinRequestInterval, d.PerItemTimeout, d.MaxBytesPerItem)
	log.Infof("Config Download: SkipExisting:%t, RespectRobots:%t, RequireImageContentType:%t",
		config.GetEffectiveSkipExisting(d), d.RespectRobots, config.GetEffectiveRequireImageContentType(d))
	log.Infof("Config Scrape: APIInterval:%v, APIConcurrency:%d, CommonsFallback:%t, MaxRecords:%d",
		appCfg.Scrape.APIRequestInterval, appCfg.Scrape.APIConcurrency, appCfg.Scrape.UseCommonsFallback, appCfg.Scrape.MaxRecords)
	if appCfg.Publish.BucketURL != "" {
		log.Infof("Config Publish: Bucket:%s, Prefix:'%s'", appCfg.Publish.BucketURL, appCfg.Publish.Prefix)
	}
}
