package formats

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/flow"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/normalizer"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/rules"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/suggest"
)

func fixture(t *testing.T) (*flow.Graph, []normalizer.Statement, []rules.Finding) {
	t.Helper()
	stmts := []normalizer.Statement{
		{
			ID: 0, Kind: normalizer.KindAwait,
			Span:      normalizer.Span{StartLine: 2, StartCol: 3},
			Text:      "const a = await fetch('/a');",
			Bound:     []string{"a"}, Declared: []string{"a"},
			AwaitText: "fetch('/a')", ChainID: -1,
		},
		{
			ID: 1, Kind: normalizer.KindAwait,
			Span:      normalizer.Span{StartLine: 3, StartCol: 3},
			Text:      "const b = await fetch('/b');",
			Bound:     []string{"b"}, Declared: []string{"b"},
			AwaitText: "fetch('/b')", ChainID: -1,
		},
		{
			ID: 2, Kind: normalizer.KindReturn,
			Span:       normalizer.Span{StartLine: 4, StartCol: 3},
			Text:       "return [a, b];",
			Referenced: []string{"a", "b"}, ChainID: -1,
		},
	}

	g, err := flow.Build(stmts)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	findings, err := rules.Evaluate(g, stmts, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	for i := range findings {
		findings[i].SuggestedFix = suggest.For(findings[i], g, stmts)
	}
	return g, stmts, findings
}

func TestMermaidGenerate(t *testing.T) {
	g, stmts, _ := fixture(t)

	out, err := NewMermaidGenerator(g, stmts).Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !strings.Contains(out, "flowchart LR") {
		t.Error("expected flowchart header")
	}
	if !strings.Contains(out, "s0[") || !strings.Contains(out, "s1[") {
		t.Errorf("expected step nodes, got:\n%s", out)
	}
	if !strings.Contains(out, "parallelNode") {
		t.Errorf("expected parallel highlight for independent awaits, got:\n%s", out)
	}
	if !strings.Contains(out, "Legend") {
		t.Error("expected legend subgraph")
	}
}

func TestMermaidDependencyEdges(t *testing.T) {
	stmts := []normalizer.Statement{
		{
			ID: 0, Kind: normalizer.KindAwait,
			Text:  "const resp = await fetch(url);",
			Bound: []string{"resp"}, Declared: []string{"resp"},
			AwaitText: "fetch(url)", ChainID: -1,
		},
		{
			ID: 1, Kind: normalizer.KindAwait,
			Text:  "const data = await resp.json();",
			Bound: []string{"data"}, Declared: []string{"data"},
			Referenced: []string{"resp"},
			AwaitText:  "resp.json()", ChainID: -1,
		},
	}
	g, err := flow.Build(stmts)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	out, err := NewMermaidGenerator(g, stmts).Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.Contains(out, "s0 --> s1") {
		t.Errorf("expected dependency edge s0 --> s1, got:\n%s", out)
	}
}

func TestGenerateSARIF(t *testing.T) {
	g, stmts, findings := fixture(t)

	data, err := GenerateSARIF("getUser.js", findings, g, stmts)
	if err != nil {
		t.Fatalf("GenerateSARIF failed: %v", err)
	}

	var report sarifReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if report.Version != "2.1.0" {
		t.Errorf("expected SARIF version 2.1.0, got %s", report.Version)
	}
	if len(report.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(report.Runs))
	}

	run := report.Runs[0]
	if run.Tool.Driver.Name != "reviewable" {
		t.Errorf("unexpected driver name %q", run.Tool.Driver.Name)
	}
	if len(run.Results) != len(findings) {
		t.Fatalf("expected %d results, got %d", len(findings), len(run.Results))
	}

	var seqResult *sarifResult
	for i := range run.Results {
		if run.Results[i].RuleID == rules.RuleSeqAwait {
			seqResult = &run.Results[i]
		}
	}
	if seqResult == nil {
		t.Fatal("expected a SEQ_AWAIT result")
	}
	if seqResult.Level != "warning" {
		t.Errorf("expected warning level, got %s", seqResult.Level)
	}
	if len(seqResult.Locations) == 0 {
		t.Fatal("expected a location")
	}
	loc := seqResult.Locations[0].PhysicalLocation
	if loc.ArtifactLocation.URI != "getUser.js" {
		t.Errorf("unexpected artifact URI %q", loc.ArtifactLocation.URI)
	}
	if loc.Region == nil || loc.Region.StartLine != 2 {
		t.Errorf("expected region at line 2, got %+v", loc.Region)
	}

	// Rules listed once per id, not per result.
	seen := make(map[string]int)
	for _, rule := range run.Tool.Driver.Rules {
		seen[rule.ID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("rule %s listed %d times", id, n)
		}
	}
}

func TestGenerateSARIFEmptyFindings(t *testing.T) {
	g, stmts, _ := fixture(t)

	data, err := GenerateSARIF("", nil, g, stmts)
	if err != nil {
		t.Fatalf("GenerateSARIF failed: %v", err)
	}
	var report sarifReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(report.Runs[0].Results) != 0 {
		t.Errorf("expected no results, got %d", len(report.Runs[0].Results))
	}
	if len(report.Runs[0].Tool.Driver.Rules) != 0 {
		t.Errorf("expected no rules, got %d", len(report.Runs[0].Tool.Driver.Rules))
	}
}

func TestGenerateMarkdown(t *testing.T) {
	g, stmts, findings := fixture(t)

	out := GenerateMarkdown("getUser.js", findings, g, stmts)

	if !strings.Contains(out, "# Async Review: getUser.js") {
		t.Error("expected report title")
	}
	if !strings.Contains(out, "| SEQ_AWAIT | warn |") {
		t.Errorf("expected SEQ_AWAIT table row, got:\n%s", out)
	}
	if !strings.Contains(out, "Promise.all([fetch('/a'), fetch('/b')])") {
		t.Errorf("expected Promise.all rewrite in suggestions, got:\n%s", out)
	}
	if !strings.Contains(out, "## Flow overview") {
		t.Error("expected flow overview section")
	}
}

func TestGenerateMarkdownNoFindings(t *testing.T) {
	g, stmts, _ := fixture(t)

	out := GenerateMarkdown("", nil, g, stmts)
	if !strings.Contains(out, "No async anti-patterns detected.") {
		t.Errorf("expected clean report, got:\n%s", out)
	}
}
