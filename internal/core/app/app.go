package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/core/config"
	domainerrors "github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/core/errors"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/flow"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/normalizer"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/rules"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/suggest"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/shared/observability"
)

// App wires the analysis pipeline: normalize, build the flow graph,
// evaluate rules, attach suggestions.
type App struct {
	Config *config.Config
	norm   *normalizer.Normalizer
}

// Request is one analysis call. EnabledRules overrides the configured
// rule set when non-empty; an empty set means all rules.
type Request struct {
	Source       string   `json:"source"`
	Name         string   `json:"name,omitempty"`
	EnabledRules []string `json:"enabledRules,omitempty"`
}

// Result is the full outcome of one analysis: findings in rule table
// order plus the exported flow graph.
type Result struct {
	AnalysisID string          `json:"analysisId"`
	Name       string          `json:"name,omitempty"`
	Findings   []rules.Finding `json:"findings"`
	Graph      flow.Model      `json:"graph"`
	Statements int             `json:"statements"`
	DurationMS int64           `json:"durationMs"`

	// Artifacts carries in-process handles for report rendering; it is
	// never serialized.
	Artifacts *Artifacts `json:"-"`
}

type Artifacts struct {
	FlowGraph  *flow.Graph
	Statements []normalizer.Statement
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	norm, err := normalizer.New(normalizer.Options{
		Language:     cfg.Language,
		PromiseCalls: cfg.Rules.PromiseCalls,
	})
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeConfigError, "invalid analysis configuration")
	}

	return &App{Config: cfg, norm: norm}, nil
}

// Analyze runs the full pipeline on one function's source text.
func (a *App) Analyze(ctx context.Context, req Request) (Result, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.Analyze", trace.WithAttributes(
		attribute.String("language", a.Config.Language),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	analysisID := uuid.New().String()

	stmts, err := a.normalize(req.Source)
	if err != nil {
		observability.AnalyzeTotal.WithLabelValues("parse_error").Inc()
		return Result{}, err
	}

	graph, err := flow.Build(stmts)
	if err != nil {
		observability.AnalyzeTotal.WithLabelValues("internal_error").Inc()
		return Result{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "flow graph construction failed")
	}

	enabled := req.EnabledRules
	if len(enabled) == 0 {
		enabled = a.Config.Rules.Enabled
	}

	findings, err := rules.Evaluate(graph, stmts, enabled)
	if err != nil {
		observability.AnalyzeTotal.WithLabelValues("config_error").Inc()
		var cfgErr *rules.ConfigError
		if errors.As(err, &cfgErr) {
			wrapped := domainerrors.Wrap(err, domainerrors.CodeConfigError, "invalid rule selection")
			return Result{}, domainerrors.AddContext(wrapped, domainerrors.CtxRule, cfgErr.RuleID)
		}
		return Result{}, domainerrors.Wrap(err, domainerrors.CodeConfigError, "invalid rule selection")
	}

	for i := range findings {
		findings[i].SuggestedFix = suggest.For(findings[i], graph, stmts)
		observability.FindingsTotal.WithLabelValues(findings[i].RuleID).Inc()
	}

	duration := time.Since(start)
	observability.AnalyzeTotal.WithLabelValues("ok").Inc()
	observability.AnalyzeDuration.Observe(duration.Seconds())
	observability.GraphSteps.Observe(float64(graph.StepCount()))

	slog.Debug("analysis complete",
		"analysisId", analysisID,
		"statements", len(stmts),
		"steps", graph.StepCount(),
		"findings", len(findings),
		"duration", duration)

	return Result{
		AnalysisID: analysisID,
		Name:       req.Name,
		Findings:   findings,
		Graph:      graph.Export(),
		Statements: len(stmts),
		DurationMS: duration.Milliseconds(),
		Artifacts:  &Artifacts{FlowGraph: graph, Statements: stmts},
	}, nil
}

func (a *App) normalize(source string) ([]normalizer.Statement, error) {
	start := time.Now()
	stmts, err := a.norm.Normalize([]byte(source))
	observability.NormalizeDuration.WithLabelValues(a.Config.Language).Observe(time.Since(start).Seconds())
	if err != nil {
		var parseErr *normalizer.ParseError
		if errors.As(err, &parseErr) {
			wrapped := domainerrors.Wrap(err, domainerrors.CodeParseError, "source does not parse")
			return nil, domainerrors.AddContext(wrapped, domainerrors.CtxStage, "normalize")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidation, "source is not a single function")
	}
	return stmts, nil
}
