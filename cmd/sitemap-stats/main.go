package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-stats/pkg/config"
	"github.com/Sriram-PR/sitemap-stats/pkg/fetch"
	"github.com/Sriram-PR/sitemap-stats/pkg/metrics"
	"github.com/Sriram-PR/sitemap-stats/pkg/models"
	"github.com/Sriram-PR/sitemap-stats/pkg/pipeline"
	"github.com/Sriram-PR/sitemap-stats/pkg/server"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "process":
		runProcess(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("sitemap-stats %s\n", version)
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
	fmt.Fprintln(w, `sitemap-stats - Concurrent sitemap fetcher and weekly URL counter

Usage:
  sitemap-stats <command> [options]

Commands:
  serve       Start the HTTP service (POST /process-sitemaps)
  process     Process sitemap URLs once and print the JSON result
  validate    Validate configuration file and environment overrides
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'sitemap-stats <command> -h' for command-specific help.`)
}

// setupLogger builds the process logger. Logs always go to out so stdout stays
// free for JSON results and the MCP protocol.
func setupLogger(logLevelStr string, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level '%s': %w", logLevelStr, err)
	}
	log.SetLevel(level)
	return log, nil
}

// loadConfig runs the full configuration chain: .env file, YAML file,
// SITEMAP_* environment overrides, then validation with defaults.
func loadConfig(configPath, envPath string) (*config.AppConfig, []string, error) {
	if err := config.LoadDotEnv(envPath); err != nil {
		return nil, nil, err
	}

	appCfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	if err := appCfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, nil, err
	}

	warnings, err := appCfg.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return appCfg, warnings, nil
}

// buildOrchestrator wires the HTTP client, fetcher and metrics into a pipeline.
// A nil registry registers metrics on the process-wide default registry.
func buildOrchestrator(appCfg *config.AppConfig, reg *prometheus.Registry, log *logrus.Logger) (*pipeline.Orchestrator, *metrics.Metrics) {
	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, appCfg.EffectiveVerifyTLS(), log)
	fetcher := fetch.NewFetcher(httpClient, appCfg, log)
	m := metrics.NewMetrics(reg)
	orchestrator := pipeline.NewOrchestrator(appCfg, fetcher, m, logrus.NewEntry(log))
	return orchestrator, m
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: Mode:%s, MaxConcurrency:%d, VerifyTLS:%t, RequireSuccessStatus:%t, IncludeSummary:%t",
		appCfg.OutputMode, appCfg.EffectiveMaxConcurrency(), appCfg.EffectiveVerifyTLS(),
		appCfg.EffectiveRequireSuccessStatus(), appCfg.EffectiveIncludeSummary())
	log.Infof("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
	log.Infof("Config Limits: MaxBodyBytes:%d, MaxRequestURLs:%d, ShutdownTimeout:%v",
		appCfg.MaxBodyBytes, appCfg.MaxRequestURLs, appCfg.ShutdownTimeout)
}

// --- serve ---

// runServe handles the serve subcommand
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file (optional)")
	envFile := fs.String("env", ".env", "Path to .env file (optional)")
	listenAddr := fs.String("listen", "", "Listen address, overrides listen_addr (e.g. :8000)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitemap-stats serve [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  sitemap-stats serve -listen :8000\n")
		fmt.Fprintf(os.Stderr, "  SITEMAP_OUTPUT_MODE=listing sitemap-stats serve\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode := doServe(ctx, *configFile, *envFile, *listenAddr, *logLevel, os.Stderr)
	stop()
	os.Exit(exitCode)
}

// doServe runs the HTTP service until ctx is cancelled
func doServe(ctx context.Context, configPath, envPath, listenAddr, logLevel string, stderr io.Writer) int {
	log, err := setupLogger(logLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	appCfg, warnings, err := loadConfig(configPath, envPath)
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}
	if listenAddr != "" {
		appCfg.ListenAddr = listenAddr
	}
	logAppConfig(appCfg, log)

	orchestrator, m := buildOrchestrator(appCfg, nil, log)
	srv := server.New(appCfg, orchestrator, m, logrus.NewEntry(log))

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Errorf("Server error: %v", err)
		return 1
	}
	return 0
}

// --- process ---

// runProcess handles the process subcommand
func runProcess(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file (optional)")
	envFile := fs.String("env", ".env", "Path to .env file (optional)")
	urls := fs.String("urls", "", "Comma-separated sitemap URLs")
	inputFile := fs.String("file", "", "JSON file with [{\"url\": ...}] entries ('-' for stdin)")
	mode := fs.String("mode", "", "Output mode: count or listing (defaults to configured mode)")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitemap-stats process [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  sitemap-stats process -urls https://a.test/sitemap.xml,https://b.test/sitemap.xml\n")
		fmt.Fprintf(os.Stderr, "  sitemap-stats process -file sitemaps.json -mode listing\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	sitemapURLs, err := readURLs(*urls, *inputFile, os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode := doProcess(ctx, *configFile, *envFile, sitemapURLs, *mode, *logLevel, os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode)
}

// readURLs collects sitemap URLs from the -urls list or the -file JSON document
func readURLs(urlList, inputFile string, stdin io.Reader) ([]string, error) {
	if urlList != "" && inputFile != "" {
		return nil, fmt.Errorf("use only one of -urls or -file")
	}

	if urlList != "" {
		var urls []string
		for _, u := range strings.Split(urlList, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				urls = append(urls, u)
			}
		}
		if len(urls) == 0 {
			return nil, fmt.Errorf("-urls contains no URLs")
		}
		return urls, nil
	}

	if inputFile == "" {
		return nil, fmt.Errorf("one of -urls or -file is required")
	}

	var data []byte
	var err error
	if inputFile == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(inputFile)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	var entries []models.SitemapRequest
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("input contains no URLs")
	}

	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		urls = append(urls, e.URL)
	}
	return urls, nil
}

// doProcess runs a single batch and writes the JSON payload to stdout.
// Returns exit code (0 = batch ran, 1 = setup error).
func doProcess(ctx context.Context, configPath, envPath string, urls []string, modeStr, logLevel string, stdout, stderr io.Writer) int {
	log, err := setupLogger(logLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	mode := models.OutputMode(strings.ToLower(modeStr))
	if mode != "" && !mode.IsValid() {
		fmt.Fprintf(stderr, "Error: invalid mode %q (supported: count, listing)\n", modeStr)
		return 1
	}

	appCfg, warnings, err := loadConfig(configPath, envPath)
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	orchestrator, _ := buildOrchestrator(appCfg, prometheus.NewRegistry(), log)
	result := orchestrator.RunMode(ctx, urls, mode)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Payload()); err != nil {
		fmt.Fprintf(stderr, "Error: write result: %v\n", err)
		return 1
	}
	return 0
}

// --- validate ---

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	envFile := fs.String("env", ".env", "Path to .env file (optional)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitemap-stats validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doValidate(*configFile, *envFile, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, envPath string, stdout, stderr io.Writer) int {
	appCfg, warnings, err := loadConfig(configPath, envPath)
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "OK: output_mode=%s max_concurrency=%d verify_tls=%t require_success_status=%t include_summary=%t\n",
		appCfg.OutputMode, appCfg.EffectiveMaxConcurrency(), appCfg.EffectiveVerifyTLS(),
		appCfg.EffectiveRequireSuccessStatus(), appCfg.EffectiveIncludeSummary())
	fmt.Fprintf(stdout, "OK: listen_addr=%s timeout=%v max_body_bytes=%d max_request_urls=%d\n",
		appCfg.ListenAddr, appCfg.HTTPClientSettings.Timeout, appCfg.MaxBodyBytes, appCfg.MaxRequestURLs)

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}
