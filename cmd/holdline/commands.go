package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/holdline/internal/config"
	"github.com/mattjoyce/holdline/internal/delegate"
	"github.com/mattjoyce/holdline/internal/doctor"
	"github.com/mattjoyce/holdline/internal/jobstore"
	"github.com/mattjoyce/holdline/internal/lock"
	"github.com/mattjoyce/holdline/internal/results"
	"github.com/mattjoyce/holdline/internal/storage"
)

func loadConfigForTool(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			return nil, err
		}
		configPath = discovered
	}
	return config.Load(configPath)
}

// openStateForTool opens the state database next to a possibly running
// coordinator. SQLite WAL mode lets the CLI read while the service writes.
func openStateForTool(ctx context.Context, configPath string) (*config.Config, *sql.DB, error) {
	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, db, nil
}

// --- CONFIG ---

func runConfigNoun(args []string) int {
	const actions = "check, lock, get"
	if len(args) < 1 {
		printNounHelp(os.Stderr, "config", actions)
		return 1
	}
	if isHelpToken(args[0]) {
		printNounHelp(os.Stdout, "config", actions)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: holdline config check [--config PATH] [--format human|json] [--strict] [--json]")
			fmt.Println("Validate configuration syntax, worker commands, timing and token scopes.")
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: holdline config lock [--config PATH] [-v|--verbose] [--dry-run]")
			fmt.Println("Authorize current configuration state by regenerating integrity hashes.")
			return 0
		}
		return runConfigLock(actionArgs)
	case "get":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: holdline config get <path> [--config PATH] [--json]")
			fmt.Println("Read a single value from the resolved configuration. Secrets are masked.")
			return 0
		}
		return runConfigGet(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runConfigCheck(args []string) int {
	var configPath, format string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		configPath = discovered
	}
	dir, err := config.ConfigDir(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config directory: %v\n", err)
		return 1
	}

	report, err := config.Lock(dir, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config in %s: %v\n", dir, err)
		return 1
	}

	if verbose || verboseShort {
		fmt.Printf("Processing directory: %s\n", dir)
		for _, file := range report.Files {
			if file.Exists {
				fmt.Printf("  HASH %s: %s\n", file.Filename, file.Hash)
				continue
			}
			fmt.Printf("  SKIP %s: not found (optional)\n", file.Filename)
		}
		if dryRun {
			fmt.Printf("  DRY-RUN %s: %s (not written)\n", config.ChecksumFile, report.ChecksumPath)
		} else {
			fmt.Printf("  WROTE %s: %s\n", config.ChecksumFile, report.ChecksumPath)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed (no files written): %s\n", dir)
	} else {
		fmt.Printf("Successfully locked configuration: %s\n", dir)
	}
	return 0
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	path, rest := splitPositional(args)
	if err := fs.Parse(rest); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if path == "" && fs.NArg() == 1 {
		path = fs.Arg(0)
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "Usage: holdline config get <path> [--json]")
		return 1
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	val, err := cfg.Redacted().GetPath(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch v := val.(type) {
	case map[string]any, []any:
		if *jsonOut {
			data, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(data))
		} else {
			data, _ := yaml.Marshal(v)
			fmt.Print(string(data))
		}
	default:
		if *jsonOut {
			data, _ := json.Marshal(v)
			fmt.Println(string(data))
		} else {
			fmt.Printf("%v\n", v)
		}
	}
	return 0
}

// splitPositional pulls the first non-flag argument out of args so flags may
// follow it.
func splitPositional(args []string) (string, []string) {
	var rest []string
	positional := ""
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case strings.HasPrefix(arg, "-"):
			rest = append(rest, arg)
			if (arg == "--config" || arg == "-config") && i+1 < len(args) {
				rest = append(rest, args[i+1])
				i++
			}
		case positional == "":
			positional = arg
		default:
			rest = append(rest, arg)
		}
	}
	return positional, rest
}

// --- SYSTEM STATUS ---

type statusCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

type statusReport struct {
	Healthy bool          `json:"healthy"`
	Checks  []statusCheck `json:"checks"`
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report := collectStatus(context.Background(), *configPath)

	if *jsonOut {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		for _, c := range report.Checks {
			mark := "✓"
			if !c.OK {
				mark = "✗"
			}
			fmt.Printf("%s %-8s %s\n", mark, c.Name, c.Detail)
		}
	}
	if !report.Healthy {
		return 1
	}
	return 0
}

func collectStatus(ctx context.Context, configPath string) statusReport {
	report := statusReport{Healthy: true}
	add := func(name string, ok bool, detail string) {
		report.Checks = append(report.Checks, statusCheck{Name: name, OK: ok, Detail: detail})
		if !ok {
			report.Healthy = false
		}
	}

	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		add("config", false, err.Error())
		return report
	}
	add("config", true, strings.Join(cfg.SourceFiles, ", "))

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		add("database", false, err.Error())
	} else {
		pending, err := jobstore.New(db).CountPending(ctx)
		if err != nil {
			add("database", false, err.Error())
		} else {
			add("database", true, fmt.Sprintf("%s (%s pending)", cfg.State.Path, humanize.Comma(int64(pending))))
		}
		_ = db.Close()
	}

	lockPath := lock.PathFor(cfg.State.Path)
	l, err := lock.AcquirePIDLock(lockPath)
	switch {
	case err == nil:
		_ = l.Release()
		add("lock", true, "not held (coordinator not running)")
	case errors.Is(err, lock.ErrLocked):
		add("lock", true, fmt.Sprintf("held: %v", err))
	default:
		add("lock", false, err.Error())
	}
	return report
}

// --- JOB ---

func runJobNoun(args []string) int {
	const actions = "results, history, list, show"
	if len(args) < 1 {
		printNounHelp(os.Stderr, "job", actions)
		return 1
	}
	if isHelpToken(args[0]) {
		printNounHelp(os.Stdout, "job", actions)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	if hasHelpFlag(actionArgs) {
		fmt.Printf("Usage: holdline job %s [--config PATH]%s\n", action, jobActionFlags(action))
		return 0
	}
	switch action {
	case "results":
		return runJobSummary(actionArgs, "results", (*results.Aggregator).CheckResults)
	case "history":
		return runJobSummary(actionArgs, "history", (*results.Aggregator).FullHistory)
	case "list":
		return runJobList(actionArgs)
	case "show":
		return runJobShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown job action: %s\n", action)
		return 1
	}
}

func jobActionFlags(action string) string {
	switch action {
	case "list":
		return " [--limit N] [--json]"
	case "show":
		return " <job_id> [--json]"
	default:
		return ""
	}
}

func runJobSummary(args []string, name string, render func(*results.Aggregator, context.Context) string) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	cfg, db, err := openStateForTool(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	agg := results.New(results.Config{
		RecentLimit:  cfg.Results.RecentLimit,
		HistoryLimit: cfg.Results.HistoryLimit,
		PreviewChars: cfg.Results.PreviewChars,
		Location:     cfg.Location(),
	}, jobstore.New(db))
	fmt.Println(render(agg, ctx))
	return 0
}

func runJobList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 0, "Maximum number of jobs (default results.list_limit)")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	cfg, db, err := openStateForTool(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	n := *limit
	if n <= 0 {
		n = cfg.Results.ListLimit
	}
	jobs, err := results.New(results.Config{}, jobstore.New(db)).Jobs(ctx, n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(jobs, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs recorded.")
		return 0
	}
	fmt.Print(formatJobTable(jobs, time.Now()))
	return 0
}

func formatJobTable(jobs []jobstore.Job, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-40s %-8s %-16s %-10s %s\n", "ID", "STATUS", "SUBMITTED", "TOOK", "QUERY")
	for _, j := range jobs {
		took := "-"
		if d := j.Duration(); d > 0 {
			took = d.Round(100 * time.Millisecond).String()
		}
		status := string(j.Status)
		if j.Truncated {
			status += "*"
		}
		fmt.Fprintf(&b, "%-40s %-8s %-16s %-10s %s\n",
			j.ID, status, humanize.RelTime(j.CreatedAt, now, "ago", "from now"), took, oneLine(j.Query, 60))
	}
	return b.String()
}

func runJobShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	id, rest := splitPositional(args)
	if err := fs.Parse(rest); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if id == "" {
		fmt.Fprintln(os.Stderr, "Usage: holdline job show <job_id> [--json]")
		return 1
	}

	ctx := context.Background()
	cfg, db, err := openStateForTool(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	job, err := jobstore.New(db).Get(ctx, id)
	if errors.Is(err, jobstore.ErrJobNotFound) {
		fmt.Fprintf(os.Stderr, "Job not found: %s\n", id)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(job, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	loc := cfg.Location()
	fmt.Printf("Job:       %s\n", job.ID)
	fmt.Printf("Status:    %s\n", job.Status)
	fmt.Printf("Submitted: %s\n", job.CreatedAt.In(loc).Format("2006-01-02 15:04:05 MST"))
	if job.CompletedAt != nil {
		fmt.Printf("Completed: %s (took %s)\n", job.CompletedAt.In(loc).Format("2006-01-02 15:04:05 MST"), job.Duration().Round(100*time.Millisecond))
	}
	if job.Truncated {
		fmt.Println("Truncated: yes")
	}
	fmt.Printf("Query:     %s\n", job.Query)
	if job.Result != "" {
		fmt.Printf("\n%s\n", job.Result)
	}
	return 0
}

// --- AGENT ---

func runAgentNoun(args []string) int {
	const actions = "list"
	if len(args) < 1 {
		printNounHelp(os.Stderr, "agent", actions)
		return 1
	}
	if isHelpToken(args[0]) {
		printNounHelp(os.Stdout, "agent", actions)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "list":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: holdline agent list [--config PATH] [--json]")
			fmt.Println("Show the delegated task board, newest first.")
			return 0
		}
		return runAgentList(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown agent action: %s\n", action)
		return 1
	}
}

func runAgentList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	cfg, db, err := openStateForTool(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	agents, err := delegate.NewBoard(db, cfg.Delegate.BoardSize).List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		if agents == nil {
			agents = []delegate.AgentStatus{}
		}
		data, _ := json.MarshalIndent(agents, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	if len(agents) == 0 {
		fmt.Println("No delegated tasks.")
		return 0
	}
	fmt.Print(formatAgentTable(agents, time.Now()))
	return 0
}

func formatAgentTable(agents []delegate.AgentStatus, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-46s %-8s %-16s %s\n", "ID", "STATUS", "UPDATED", "TASK")
	for _, a := range agents {
		fmt.Fprintf(&b, "%-46s %-8s %-16s %s\n",
			a.ID, a.Status, humanize.RelTime(a.UpdatedAt, now, "ago", "from now"), oneLine(a.Task, 60))
	}
	return b.String()
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
