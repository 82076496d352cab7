// Package main is the entry point for the activity tracker daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nugget/activity-tracker/internal/buildinfo"
	"github.com/nugget/activity-tracker/internal/config"
	"github.com/nugget/activity-tracker/internal/daemon"
	"github.com/nugget/activity-tracker/internal/llm"
	"github.com/nugget/activity-tracker/internal/rollup"
	"github.com/nugget/activity-tracker/internal/store"
	"github.com/nugget/activity-tracker/internal/tagdetect"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "serve":
			runServe(logger, *configPath)
		case "init":
			dir := "."
			if flag.NArg() > 1 {
				dir = flag.Arg(1)
			}
			if err := runInit(os.Stdout, dir); err != nil {
				fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
				os.Exit(1)
			}
		case "report":
			if flag.NArg() < 2 {
				fmt.Fprintln(os.Stderr, "usage: trackerd report <daily|weekly|monthly> [YYYY-MM-DD]")
				os.Exit(1)
			}
			runReport(logger, *configPath, flag.Args()[1:])
		case "fixup-focus":
			runFixupFocus(logger, *configPath)
		case "version":
			fmt.Println(buildinfo.String())
			for k, v := range buildinfo.BuildInfo() {
				fmt.Printf("  %-12s %s\n", k+":", v)
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
			os.Exit(1)
		}
		return
	}

	fmt.Println("trackerd - passive activity tracker and AI summarization daemon")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init     Write a starter config.yaml and data directory")
	fmt.Println("  serve    Start the capture/summarization daemon")
	fmt.Println("  report   Print a daily, weekly, or monthly rollup")
	fmt.Println("  fixup-focus  Reattribute focus events with a wrong or missing session_id")
	fmt.Println("  version  Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func loadConfig(logger *slog.Logger, configPath string) *config.Config {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded", "path", cfgPath, "data_dir", cfg.Storage.DataDir, "model", cfg.Summarization.Model)
	return cfg
}

func runServe(logger *slog.Logger, configPath string) {
	cfg := loadConfig(logger, configPath)

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	logger.Info("starting trackerd", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize daemon", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("trackerd stopped")
}

// runReport opens the store read-only-in-spirit (no daemon components are
// started) and prints a single rollup, building it first if needed. args[0]
// is the period kind, args[1] (optional) is a date within that period;
// today is used when omitted.
func runReport(logger *slog.Logger, configPath string, args []string) {
	cfg := loadConfig(logger, configPath)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Storage.DataDir + "/tracker.db")
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	day := time.Now()
	if len(args) > 1 {
		parsed, err := time.Parse("2006-01-02", args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid date %q, expected YYYY-MM-DD\n", args[1])
			os.Exit(1)
		}
		day = parsed
	}

	client := buildReportLLMClient(cfg, logger)
	builder := rollup.New(st, client, nil, cfg.Summarization.Model)

	var report *store.CachedReport
	switch args[0] {
	case "daily":
		report, err = builder.BuildDaily(context.Background(), day)
	case "weekly":
		report, err = builder.BuildWeekly(context.Background(), day)
	case "monthly":
		report, err = builder.BuildMonthly(context.Background(), day)
	default:
		fmt.Fprintf(os.Stderr, "unknown report kind %q, expected daily, weekly, or monthly\n", args[0])
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to build report", "kind", args[0], "error", err)
		os.Exit(1)
	}
	if report == nil {
		fmt.Printf("no activity recorded for this %s\n", args[0])
		return
	}

	fmt.Printf("%s report for %s\n\n%s\n", args[0], report.PeriodDate, report.ExecutiveSummary)
	printTagBreakdown(st, report.StartTime, report.EndTime)
}

// runFixupFocus reassigns session_id on window_focus_events rows whose
// attribution is wrong or missing, by timestamp containment against
// activity_sessions. It is never run automatically.
func runFixupFocus(logger *slog.Logger, configPath string) {
	cfg := loadConfig(logger, configPath)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Storage.DataDir + "/tracker.db")
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	changed, err := st.ReattributeFocusEvents()
	if err != nil {
		logger.Error("fixup-focus failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("reattributed %d focus event(s)\n", changed)
}

func buildReportLLMClient(cfg *config.Config, logger *slog.Logger) *llm.Client {
	client := llm.NewClient(cfg.Summarization.OllamaHost, cfg.Summarization.Model, logger.With("component", "llm"))
	client.SetIncludeOCR(cfg.Summarization.IncludeOCR)
	return client
}

func printTagBreakdown(st *store.Store, start, end time.Time) {
	events, err := st.GetFocusEventsOverlapping(start, end)
	if err != nil || len(events) == 0 {
		return
	}

	activities := make([]tagdetect.Activity, 0, len(events))
	for _, ev := range events {
		activities = append(activities, tagdetect.Activity{
			Tag:             tagdetect.Detect(ev.AppName, ev.WindowTitle),
			AppName:         ev.AppName,
			WindowTitle:     ev.WindowTitle,
			DurationSeconds: ev.DurationSeconds,
		})
	}

	breakdowns := tagdetect.BreakdownActivities(activities)
	if len(breakdowns) == 0 {
		return
	}

	fmt.Println("\nBy tag:")
	for _, b := range breakdowns {
		fmt.Printf("  %-12s %5.1f%%  (%s)\n", b.Tag, b.Percentage, time.Duration(b.TotalSeconds*float64(time.Second)).Round(time.Minute))
	}
}
