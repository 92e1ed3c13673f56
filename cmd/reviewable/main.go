package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/core/app"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/core/config"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/core/watcher"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/data/history"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/rules"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/shared/observability"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/shared/util"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/shared/version"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/ui/report/formats"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/ui/server"
)

var (
	configPath  = flag.String("config", "./reviewable.toml", "Path to config file")
	serve       = flag.Bool("serve", false, "Run the HTTP analyze service")
	watchMode   = flag.Bool("watch", false, "Watch snippet directories and re-analyze on change")
	trendsMode  = flag.Bool("trends", false, "Print the finding trend report for the configured project")
	trendWindow = flag.Duration("trend-window", 24*time.Hour, "Moving average window for the trend report")
	format      = flag.String("format", "markdown", "Report format: markdown, json, mermaid, sarif")
	outPath     = flag.String("out", "", "Write the report to a file instead of stdout")
	snippetName = flag.String("name", "", "Snippet name used in reports (defaults to the file name)")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("reviewable v%s\n", version.Version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) && *configPath == "./reviewable.toml" {
			slog.Debug("no config file found, using defaults")
			cfg = config.Default()
		} else {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Server.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	application, err := app.NewApp(cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			slog.Error("failed to open history store", "error", err, "path", cfg.History.Path)
			os.Exit(1)
		}
		defer store.Close()
	}

	switch {
	case *serve:
		runServe(ctx, cfg, application)
	case *watchMode:
		runWatch(ctx, cfg, application, store)
	case *trendsMode:
		if err := runTrends(cfg, store); err != nil {
			slog.Error("trend report failed", "error", err)
			os.Exit(1)
		}
	default:
		if err := runOnce(ctx, cfg, application, store); err != nil {
			slog.Error("analysis failed", "error", err)
			os.Exit(1)
		}
	}
}

func runServe(ctx context.Context, cfg *config.Config, application *app.App) {
	srv := server.New(cfg.Server, application)
	if err := srv.Start(ctx); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}

func runWatch(ctx context.Context, cfg *config.Config, application *app.App, store *history.Store) {
	paths := cfg.Watch.Paths
	if flag.NArg() > 0 {
		paths = flag.Args()
	}
	if len(paths) == 0 {
		slog.Error("watch mode requires watch.paths in the config or a directory argument")
		os.Exit(1)
	}

	w, err := watcher.NewWatcher(cfg.Watch.Debounce, cfg.Exclude.Dirs, cfg.Exclude.Files, func(changed []string) {
		for _, path := range changed {
			if err := analyzeFile(ctx, cfg, application, store, path); err != nil {
				slog.Warn("failed to analyze snippet", "path", path, "error", err)
			}
		}
	})
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}
	defer w.Close()

	if err := w.Watch(paths); err != nil {
		slog.Error("failed to start watcher", "error", err)
		os.Exit(1)
	}

	slog.Info("watching for snippet changes", "paths", paths)
	<-ctx.Done()
}

func runTrends(cfg *config.Config, store *history.Store) error {
	if store == nil {
		return fmt.Errorf("trend reports require history.enabled in the config")
	}

	snapshots, err := store.LoadSnapshots(cfg.History.ProjectKey, time.Time{})
	if err != nil {
		return err
	}

	report, err := history.BuildTrendReport(cfg.History.ProjectKey, snapshots, *trendWindow)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func analyzeFile(ctx context.Context, cfg *config.Config, application *app.App, store *history.Store, path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	result, err := application.Analyze(ctx, app.Request{Source: string(source), Name: path})
	if err != nil {
		return err
	}

	slog.Info("snippet analyzed", "path", path, "findings", len(result.Findings), "steps", len(result.Graph.Steps))
	for _, f := range result.Findings {
		slog.Info("finding", "rule", f.RuleID, "severity", f.Severity, "message", f.Message)
	}

	if err := saveSnapshot(cfg, store, result); err != nil {
		slog.Warn("failed to save history snapshot", "error", err)
	}
	return writeConfiguredOutputs(cfg, result)
}

func runOnce(ctx context.Context, cfg *config.Config, application *app.App, store *history.Store) error {
	source, name, err := readSource()
	if err != nil {
		return err
	}
	if *snippetName != "" {
		name = *snippetName
	}

	result, err := application.Analyze(ctx, app.Request{Source: source, Name: name})
	if err != nil {
		return err
	}

	report, err := renderReport(*format, result)
	if err != nil {
		return err
	}

	if *outPath != "" {
		if err := util.WriteStringWithDirs(*outPath, report, 0o644); err != nil {
			return fmt.Errorf("write report %q: %w", *outPath, err)
		}
	} else {
		fmt.Print(report)
	}

	if err := saveSnapshot(cfg, store, result); err != nil {
		slog.Warn("failed to save history snapshot", "error", err)
	}
	return writeConfiguredOutputs(cfg, result)
}

func readSource() (source, name string, err error) {
	if flag.NArg() > 0 {
		path := flag.Arg(0)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", "", err
		}
		return string(data), path, nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", "", err
	}
	return string(data), "", nil
}

func renderReport(formatName string, result app.Result) (string, error) {
	switch formatName {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	case "markdown":
		return formats.GenerateMarkdown(result.Name, result.Findings, result.Artifacts.FlowGraph, result.Artifacts.Statements), nil
	case "mermaid":
		return formats.NewMermaidGenerator(result.Artifacts.FlowGraph, result.Artifacts.Statements).Generate()
	case "sarif":
		data, err := formats.GenerateSARIF(result.Name, result.Findings, result.Artifacts.FlowGraph, result.Artifacts.Statements)
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	default:
		return "", fmt.Errorf("unknown format %q (expected markdown, json, mermaid, or sarif)", formatName)
	}
}

// writeConfiguredOutputs mirrors the report to every target named in
// the [output] config section.
func writeConfiguredOutputs(cfg *config.Config, result app.Result) error {
	if cfg.Output.Mermaid != "" {
		diagram, err := formats.NewMermaidGenerator(result.Artifacts.FlowGraph, result.Artifacts.Statements).Generate()
		if err != nil {
			return err
		}
		if err := util.WriteStringWithDirs(cfg.Output.Mermaid, diagram, 0o644); err != nil {
			return fmt.Errorf("write mermaid output: %w", err)
		}
	}
	if cfg.Output.SARIF != "" {
		data, err := formats.GenerateSARIF(result.Name, result.Findings, result.Artifacts.FlowGraph, result.Artifacts.Statements)
		if err != nil {
			return err
		}
		if err := util.WriteFileWithDirs(cfg.Output.SARIF, data, 0o644); err != nil {
			return fmt.Errorf("write sarif output: %w", err)
		}
	}
	if cfg.Output.Markdown != "" {
		report := formats.GenerateMarkdown(result.Name, result.Findings, result.Artifacts.FlowGraph, result.Artifacts.Statements)
		if err := util.WriteStringWithDirs(cfg.Output.Markdown, report, 0o644); err != nil {
			return fmt.Errorf("write markdown output: %w", err)
		}
	}
	return nil
}

func saveSnapshot(cfg *config.Config, store *history.Store, result app.Result) error {
	if store == nil {
		return nil
	}

	snapshot := history.Snapshot{
		ProjectKey:     cfg.History.ProjectKey,
		AnalysisID:     result.AnalysisID,
		Name:           result.Name,
		Timestamp:      time.Now().UTC(),
		StatementCount: result.Statements,
		StepCount:      len(result.Graph.Steps),
		FindingCount:   len(result.Findings),
		RuleCounts:     make(map[string]int),
	}
	for _, f := range result.Findings {
		snapshot.RuleCounts[f.RuleID]++
		switch f.Severity {
		case rules.SeverityError:
			snapshot.ErrorCount++
		case rules.SeverityWarn:
			snapshot.WarnCount++
		case rules.SeverityInfo:
			snapshot.InfoCount++
		}
	}

	return store.SaveSnapshot(snapshot)
}
