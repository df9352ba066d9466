package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/crawler"
	"github.com/Sriram-PR/topic-crawler/pkg/monitor"
	"github.com/Sriram-PR/topic-crawler/pkg/orchestrate"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
	"github.com/Sriram-PR/topic-crawler/pkg/watch"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		runCycle(os.Args[2:], true)
	case "resume":
		runCycle(os.Args[2:], false)
	case "worker":
		runWorker(os.Args[2:])
	case "schedule":
		runSchedule(os.Args[2:])
	case "monitor":
		runMonitor(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "list-categories":
		runListCategories(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("topic-crawler %s\n", version)
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
	fmt.Fprintln(w, `topic-crawler - Polite, resumable topic web crawler

Usage:
  topic-crawler <command> [options]

Commands:
  crawl            Start a fresh cycle: wipe category jobs, seed, crawl until drained
  resume           Seed untracked seeds and crawl until drained
  worker           Run workers continuously, re-crawling due URLs when idle
  schedule         Run a frontier scheduling pass
  monitor          Show URL, queue and job statistics
  watch            Run workers plus the scheduled maintenance tasks
  validate         Validate configuration file
  list-categories  List available category keys
  mcp-server       Start MCP server for AI tool integration
  version          Show version info

The crawl state is a single embedded database; only one command can hold it at a time.
Run 'topic-crawler <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// parseCategoryFlags resolves -category, -categories and -all into category keys.
// A nil result with a nil error means every category.
func parseCategoryFlags(category, categories string, all bool) ([]string, error) {
	switch {
	case all:
		return nil, nil
	case categories != "":
		var keys []string
		for _, c := range strings.Split(categories, ",") {
			c = strings.TrimSpace(c)
			if c != "" {
				keys = append(keys, c)
			}
		}
		if len(keys) == 0 {
			return nil, errors.New("-categories is empty")
		}
		return keys, nil
	case category != "":
		return []string{category}, nil
	default:
		return nil, errors.New("one of -category, -categories, or -all is required")
	}
}

// runCycle handles both crawl (fresh) and resume subcommands
func runCycle(args []string, fresh bool) {
	cmdName := "resume"
	if fresh {
		cmdName = "crawl"
	}

	fs := flag.NewFlagSet(cmdName, flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	category := fs.String("category", "", "Category key from config (single category)")
	categories := fs.String("categories", "", "Comma-separated category keys")
	allCategories := fs.Bool("all", false, "Run every configured category")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	pprofAddr := fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: topic-crawler %s [options]\n\nOptions:\n", cmdName)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  topic-crawler %s -category technology\n", cmdName)
		fmt.Fprintf(os.Stderr, "  topic-crawler %s -categories technology,business\n", cmdName)
		fmt.Fprintf(os.Stderr, "  topic-crawler %s -all\n", cmdName)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	keys, err := parseCategoryFlags(*category, *categories, *allCategories)
	if err != nil {
		if fresh {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fs.Usage()
			os.Exit(1)
		}
		// Resuming every category is the routine daily run
		keys = nil
	}

	executeCycle(*configFile, keys, fresh, *logLevel, *pprofAddr)
}

// executeCycle triggers a cycle and drains it
func executeCycle(configFile string, categories []string, fresh bool, logLevelStr, pprofAddr string) {
	runtime.SetBlockProfileRate(1000)
	runtime.SetMutexProfileFraction(1000)

	log := setupLogger(logLevelStr)
	appCfg := loadAndValidateConfig(configFile, log)
	logAppConfig(appCfg, log)

	if err := orchestrate.ValidateCategories(appCfg, categories); err != nil {
		log.Fatalf("Invalid categories: %v", err)
	}
	validateCategoryConfigs(appCfg, categories, log)
	startPprof(pprofAddr, log)

	ctx, stop := signalContext(log)
	defer stop()

	rt, err := openRuntime(ctx, appCfg, log.WithField("component", "crawl"))
	if err != nil {
		log.Fatalf("Failed to initialize components: %v", err)
	}
	defer rt.close()
	go rt.store.RunGC(ctx, appCfg.Storage.GCInterval)

	result, err := rt.orchestrator.RunCycle(ctx, orchestrate.CycleOptions{Categories: categories, Fresh: fresh})
	os.Exit(exitCode(err, log, fmt.Sprintf("Cycle finished: %d processed, %d completed, %d failed",
		result.Stats.Processed, result.Stats.Completed, result.Stats.Failed)))
}

// runWorker handles the worker subcommand
func runWorker(args []string) {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	noRecrawl := fs.Bool("no-recrawl", false, "Only process pending jobs, never claim due URLs from the frontier")
	drain := fs.Bool("drain", false, "Exit once no active job remains")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	pprofAddr := fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: topic-crawler worker [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)
	logAppConfig(appCfg, log)
	startPprof(*pprofAddr, log)

	ctx, stop := signalContext(log)
	defer stop()

	rt, err := openRuntime(ctx, appCfg, log.WithField("component", "worker"))
	if err != nil {
		log.Fatalf("Failed to initialize components: %v", err)
	}
	defer rt.close()
	go rt.store.RunGC(ctx, appCfg.Storage.GCInterval)

	stats, err := rt.crawler.Run(ctx, crawler.RunOptions{UntilDrained: *drain, Recrawl: !*noRecrawl})
	os.Exit(exitCode(err, log, fmt.Sprintf("Workers stopped: %d processed", stats.Processed)))
}

// runSchedule handles the schedule subcommand
func runSchedule(args []string) {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	reprioritize := fs.Bool("reprioritize", false, "Recompute priority and next crawl time of every URL first")
	cleanup := fs.Bool("cleanup", false, "Remove stale locked queue entries first")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: topic-crawler schedule [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doSchedule(*configFile, *reprioritize, *cleanup, os.Stdout, os.Stderr))
}

// doSchedule runs the requested frontier passes. Returns exit code.
func doSchedule(configPath string, reprioritize, cleanup bool, stdout, stderr io.Writer) int {
	appCfg, log, err := loadQuiet(configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, appCfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.close()
	sched := rt.crawler.Scheduler()

	if reprioritize {
		n, err := sched.ReprioritizeAll(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: reprioritize: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Reprioritized %d URL(s)\n", n)
	}
	if cleanup {
		n, err := sched.CleanupStaleQueue(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: cleanup: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Removed %d stale queue entr(ies)\n", n)
	}

	n, err := sched.Schedule(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: schedule: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Scheduled %d URL(s)\n", n)
	return 0
}

// runMonitor handles the monitor subcommand
func runMonitor(args []string) {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	asJSON := fs.Bool("json", false, "Print the report as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: topic-crawler monitor [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doMonitor(*configFile, *asJSON, os.Stdout, os.Stderr))
}

// doMonitor prints crawl statistics. Returns exit code.
func doMonitor(configPath string, asJSON bool, stdout, stderr io.Writer) int {
	appCfg, log, err := loadQuiet(configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	store, err := openStore(ctx, appCfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	report, err := monitor.Collect(ctx, store, appCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	if err := report.WriteText(stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// runWatch handles the watch subcommand
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	cycleNow := fs.Bool("cycle-now", false, "Trigger a resume cycle for every category at startup")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	pprofAddr := fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: topic-crawler watch [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nSchedules are read from the 'watch' section of the config file.\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)
	logAppConfig(appCfg, log)
	startPprof(*pprofAddr, log)

	ctx, stop := signalContext(log)
	defer stop()

	rt, err := openRuntime(ctx, appCfg, log.WithField("component", "watch"))
	if err != nil {
		log.Fatalf("Failed to initialize components: %v", err)
	}
	defer rt.close()
	go rt.store.RunGC(ctx, appCfg.Storage.GCInterval)

	runner, err := watch.NewRunner(appCfg.Watch, appCfg.StateDir, rt.crawler.Scheduler(), rt.orchestrator, log.WithField("component", "watch"))
	if err != nil {
		log.Fatalf("Failed to create watch runner: %v", err)
	}

	if *cycleNow {
		if _, err := runner.RunTask(ctx, watch.TaskDailyCycle); err != nil {
			log.Errorf("Initial cycle failed: %v", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gctx)
	})
	g.Go(func() error {
		_, err := rt.crawler.Run(gctx, crawler.RunOptions{Recrawl: true})
		return err
	})
	os.Exit(exitCode(g.Wait(), log, "Watch stopped"))
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	category := fs.String("category", "", "Category key to validate (optional, validates all if empty)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: topic-crawler validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, *category, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, category string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	appWarnings, err := appCfg.Validate()
	for _, w := range appWarnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	keys := orchestrate.AllCategories(appCfg)
	if category != "" {
		if _, ok := appCfg.Categories[category]; !ok {
			fmt.Fprintf(stderr, "Error: category '%s' not found in config\n", category)
			return 1
		}
		keys = []string{category}
	}

	hasError := false
	for _, key := range keys {
		catCfg := appCfg.Categories[key]
		catWarnings, err := catCfg.Validate()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
			hasError = true
			continue
		}
		for _, w := range catWarnings {
			fmt.Fprintf(stdout, "WARN: [%s] %s\n", key, w)
		}
		fmt.Fprintf(stdout, "OK: [%s]\n", key)
	}
	if hasError {
		return 1
	}

	if category != "" {
		fmt.Fprintf(stdout, "OK: Category '%s' configuration is valid\n", category)
		return 0
	}
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runListCategories handles the list-categories subcommand
func runListCategories(args []string) {
	fs := flag.NewFlagSet("list-categories", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: topic-crawler list-categories [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doListCategories(*configFile, os.Stdout, os.Stderr))
}

// doListCategories lists categories and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doListCategories(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := appCfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Categories in %s:\n\n", configPath)
	for _, key := range orchestrate.AllCategories(appCfg) {
		cat := appCfg.Categories[key]
		fmt.Fprintf(stdout, "  %s\n", key)
		if cat.Name != "" {
			fmt.Fprintf(stdout, "    Name: %s\n", cat.Name)
		}
		fmt.Fprintf(stdout, "    Seed URLs: %d\n", len(cat.SeedURLs))
		if len(cat.Keywords) > 0 {
			fmt.Fprintf(stdout, "    Keywords: %s\n", strings.Join(cat.Keywords, ", "))
		}
		fmt.Fprintf(stdout, "    Max Per Day: %d\n", config.GetEffectiveMaxPerDay(cat, *appCfg))
		fmt.Fprintln(stdout)
	}
	return 0
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
		log.Infof("Setting log level to: %s", level.String())
	}

	return log
}

// loadAndValidateConfig loads the config file, validates it, and logs warnings.
func loadAndValidateConfig(configFile string, log *logrus.Logger) *config.AppConfig {
	log.Infof("Loading configuration from %s", configFile)
	appCfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	appWarnings, err := appCfg.Validate()
	for _, w := range appWarnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	return appCfg
}

// loadQuiet loads and validates config for the report-style commands, which log
// to stderr at warning level only
func loadQuiet(configPath string, stderr io.Writer) (*config.AppConfig, *logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetLevel(logrus.WarnLevel)

	appCfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if _, err := appCfg.Validate(); err != nil {
		return nil, nil, err
	}
	return appCfg, logrus.NewEntry(logger), nil
}

// startPprof starts the pprof HTTP server if addr is non-empty.
func startPprof(addr string, log *logrus.Logger) {
	if addr != "" {
		go func() {
			log.Infof("Starting pprof server at http://%s/debug/pprof/", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Errorf("pprof server error: %v", err)
			}
		}()
	}
}

// validateCategoryConfigs validates the configuration for each category and logs warnings.
// Empty categories means all of them.
func validateCategoryConfigs(appCfg *config.AppConfig, categories []string, log *logrus.Logger) {
	if len(categories) == 0 {
		categories = orchestrate.AllCategories(appCfg)
	}
	for _, key := range categories {
		catCfg := appCfg.Categories[key]
		catWarnings, err := catCfg.Validate()
		if err != nil {
			log.Fatalf("Category '%s' configuration error: %v", key, err)
		}
		for _, w := range catWarnings {
			log.Warnf("[%s] %s", key, w)
		}
		appCfg.Categories[key] = catCfg
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. A second signal,
// or a shutdown running past 30s, forces exit.
func signalContext(log *logrus.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		var sig os.Signal
		select {
		case sig = <-sigChan:
		case <-ctx.Done():
			return
		}
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// exitCode maps the outcome of a long-running command to a process exit code
func exitCode(err error, log *logrus.Logger, summary string) int {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Stopped gracefully after cancellation.")
			return 0
		}
		log.Errorf("Finished with error: %v", err)
		return 1
	}
	log.Info(summary)
	return 0
}

// appRuntime bundles the components shared by the crawling commands
type appRuntime struct {
	store        *storage.BadgerStore
	crawler      *crawler.Crawler
	orchestrator *orchestrate.Orchestrator
}

func openStore(ctx context.Context, appCfg *config.AppConfig, log *logrus.Entry) (*storage.BadgerStore, error) {
	store, err := storage.Open(ctx, appCfg.StateDir, storage.Options{
		MaxTxnAttempts:    appCfg.Storage.MaxTxnAttempts,
		TxnRetryBaseDelay: appCfg.Storage.TxnRetryBaseDelay,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("opening crawl state: %w", err)
	}
	return store, nil
}

// openRuntime opens the store and wires the crawler and orchestrator over it
func openRuntime(ctx context.Context, appCfg *config.AppConfig, log *logrus.Entry) (*appRuntime, error) {
	store, err := openStore(ctx, appCfg, log)
	if err != nil {
		return nil, err
	}

	blobs, err := storage.NewFSBlobStore(appCfg.BlobDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening blob store: %w", err)
	}
	indexer, err := crawler.NewIndexer(appCfg, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating indexer: %w", err)
	}
	c, err := crawler.NewCrawler(appCfg, store, blobs, indexer, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating crawler: %w", err)
	}

	return &appRuntime{
		store:        store,
		crawler:      c,
		orchestrator: orchestrate.NewOrchestrator(appCfg, store, c, log),
	}, nil
}

func (rt *appRuntime) close() {
	rt.store.Close()
}

// logAppConfig logs the effective global configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Global Config: Workers:%d, MaxReqPerHost:%d, GlobalRPS:%.1f, DefaultCrawlDelay:%v",
		appCfg.NumWorkers, appCfg.MaxRequestsPerHost, appCfg.GlobalRequestsPerSecond, appCfg.DefaultCrawlDelay)
	log.Infof("Global Config: StateDir:%s, BlobDir:%s, IndexDir:%s",
		appCfg.StateDir, appCfg.BlobDir, appCfg.IndexDir)
	log.Infof("Global Config Retries: MaxAttempts:%d, Backoff:%v, FailureCacheTTL:%v",
		appCfg.Retry.MaxAttempts, appCfg.Retry.Backoff, appCfg.FailureCacheTTL)
	log.Infof("Global Config Timeouts: Request:%v, Robots:%v, GlobalCrawl:%v",
		appCfg.RequestTimeout, appCfg.RobotsTimeout, appCfg.GlobalCrawlTimeout)
	log.Infof("Global Config Discovery: MaxPerCategoryPerDay:%d, DepthThresholds:%v, Beyond:%d, MaxDepth:%d",
		appCfg.Discovery.MaxPerCategoryPerDay, appCfg.Discovery.DepthThresholds, appCfg.Discovery.BeyondThreshold, appCfg.Discovery.MaxDepth)
	log.Infof("Global Config Scheduler: BatchSize:%d, StaleLockTimeout:%v, PollInterval:%v, ClaimBatch:%d",
		appCfg.Scheduler.BatchSize, appCfg.Scheduler.StaleLockTimeout, appCfg.Scheduler.PollInterval, appCfg.Scheduler.ClaimBatch)
	log.Infof("Global Config HTTP Client: MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
	log.Infof("Global Config Categories: %v", orchestrate.AllCategories(appCfg))
}
