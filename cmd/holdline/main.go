package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/holdline/internal/api"
	"github.com/mattjoyce/holdline/internal/auth"
	"github.com/mattjoyce/holdline/internal/config"
	"github.com/mattjoyce/holdline/internal/delegate"
	"github.com/mattjoyce/holdline/internal/dispatch"
	"github.com/mattjoyce/holdline/internal/events"
	"github.com/mattjoyce/holdline/internal/janitor"
	"github.com/mattjoyce/holdline/internal/jobstore"
	"github.com/mattjoyce/holdline/internal/lock"
	"github.com/mattjoyce/holdline/internal/log"
	"github.com/mattjoyce/holdline/internal/registry"
	"github.com/mattjoyce/holdline/internal/results"
	"github.com/mattjoyce/holdline/internal/storage"
	"github.com/mattjoyce/holdline/internal/tui/watch"
	"github.com/mattjoyce/holdline/internal/worker"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const drainTimeout = 10 * time.Second

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "job":
		return runJobNoun(args)
	case "agent":
		return runAgentNoun(args)

	case "start":
		return runStart(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: holdline version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("holdline %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`holdline - answer fast, keep working, deliver later

Usage:
  holdline <noun> <action> [flags]

Core Resources (Nouns):
  system    Coordinator lifecycle and health
  config    Configuration validation and integrity
  job       Submitted queries and their results
  agent     Delegated background tasks

System Commands:
  system start      Start the coordinator in the foreground
  system status     Show config, database and lock state
  system watch      Real-time monitoring TUI

Config Commands:
  config check      Validate configuration and environment
  config lock       Regenerate the .checksums integrity manifest
  config get        Read one value from the resolved configuration

Job Commands:
  job results       Running workers and recent completed results
  job history       Recent jobs with timestamps and previews
  job list          Jobs newest first
  job show <id>     One job with its full result

Agent Commands:
  agent list        Delegated task board

General:
  version           Show version information
  help              Show this help message

Use 'holdline <noun> help' for resource-specific flags.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printNounHelp(os.Stderr, "system", "start, status, watch")
		return 1
	}
	if isHelpToken(args[0]) {
		printNounHelp(os.Stdout, "system", "start, status, watch")
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: holdline system start [--config PATH]")
			fmt.Println("Start the coordinator in the foreground.")
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: holdline system status [--config PATH] [--json]")
			fmt.Println("Show config, database readiness and PID lock state.")
			return 0
		}
		return runSystemStatus(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func printNounHelp(w *os.File, noun, actions string) {
	fmt.Fprintf(w, "Usage: holdline %s <action>\n", noun)
	fmt.Fprintf(w, "Actions: %s\n", actions)
}

func printSystemWatchHelp() {
	fmt.Println("Usage: holdline system watch [flags]")
	fmt.Println()
	fmt.Println("Real-time monitoring TUI.")
	fmt.Println("Shows coordinator health, jobs, delegated tasks and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Coordinator API URL (default: http://127.0.0.1:18795)")
	fmt.Println("  --api-key KEY    API Bearer Token (or HOLDLINE_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Scroll jobs")
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:18795", "Coordinator API URL")
	apiKey := fs.String("api-key", os.Getenv("HOLDLINE_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or HOLDLINE_API_KEY env var.")
		return 1
	}

	p := tea.NewProgram(watch.New(*apiURL, *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		*configPath = discovered
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("holdline starting", "version", version, "config", *configPath)

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	store := jobstore.New(db)
	board := delegate.NewBoard(db, cfg.Delegate.BoardSize)
	hub := events.NewHub(256)
	reg := registry.New()

	jan := janitor.New(janitor.Config{
		Interval:     cfg.Maintenance.Interval,
		JobRetention: cfg.Maintenance.JobRetention,
	}, store, board, reg, hub, log.Get())
	if err := jan.Start(ctx); err != nil {
		logger.Error("maintenance failed to start", "error", err)
		return 1
	}
	defer jan.Stop()

	disp := dispatch.New(dispatch.Config{
		Deadline:       cfg.Dispatch.Deadline,
		PendingMessage: cfg.Dispatch.PendingMessage,
		FallbackResult: cfg.Dispatch.FallbackResult,
		AbortedResult:  cfg.Dispatch.AbortedResult,
		MaxQueryBytes:  cfg.Dispatch.MaxQueryBytes,
	}, store, &worker.ExecLauncher{
		Command:        cfg.Worker.Command,
		Args:           cfg.Worker.Args,
		Dir:            cfg.Worker.Dir,
		Env:            cfg.Worker.Env,
		Timeout:        cfg.Worker.Timeout,
		GracePeriod:    cfg.Worker.GracePeriod,
		MaxOutputBytes: cfg.Worker.MaxOutputBytes,
	}, reg, hub)

	spawner := delegate.NewSpawner(delegate.Config{
		Enabled:     cfg.Delegate.Enabled,
		Model:       cfg.Delegate.Model,
		ResultLimit: cfg.Delegate.ResultLimit,
	}, board, &worker.ExecLauncher{
		Command:        cfg.Delegate.Command,
		Args:           cfg.Delegate.Args,
		Dir:            cfg.Worker.Dir,
		Env:            cfg.Worker.Env,
		Timeout:        cfg.Delegate.Timeout,
		GracePeriod:    cfg.Worker.GracePeriod,
		MaxOutputBytes: cfg.Worker.MaxOutputBytes,
	}, hub)

	agg := results.New(results.Config{
		RecentLimit:  cfg.Results.RecentLimit,
		HistoryLimit: cfg.Results.HistoryLimit,
		PreviewChars: cfg.Results.PreviewChars,
		Location:     cfg.Location(),
	}, store)

	server := api.New(apiConfigFrom(cfg), api.Deps{
		Dispatcher: disp,
		Jobs:       store,
		Results:    agg,
		Delegator:  spawner,
		Board:      board,
		Events:     hub,
	}, log.WithComponent("api"))

	logger.Info("holdline running (press Ctrl+C to stop)", "listen", cfg.API.Listen, "worker", cfg.Worker.Command)

	code := 0
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("API server failed", "error", err)
		code = 1
	}
	stop()

	logger.Info("draining in-flight work", "running_workers", len(disp.Running()))
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := disp.Drain(drainCtx); err != nil {
		logger.Warn("workers still running at shutdown", "error", err)
	}
	if err := spawner.Drain(drainCtx); err != nil {
		logger.Warn("delegated tasks still running at shutdown", "error", err)
	}

	logger.Info("holdline stopped")
	return code
}

func apiConfigFrom(cfg *config.Config) api.Config {
	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return api.Config{
		Listen:         cfg.API.Listen,
		APIKey:         cfg.API.Auth.APIKey,
		Tokens:         tokens,
		CORSOrigins:    cfg.API.CORSOrigins,
		MaxBodyBytes:   cfg.API.MaxBodyBytes,
		CallbackSecret: cfg.Delegate.CallbackSecret,
		JobListLimit:   cfg.Results.ListLimit,
	}
}
