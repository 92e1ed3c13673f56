package suggest

import (
	"strings"
	"testing"

	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/flow"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/normalizer"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/rules"
)

func buildGraph(t *testing.T, stmts []normalizer.Statement) *flow.Graph {
	t.Helper()
	g, err := flow.Build(stmts)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g
}

func TestPromiseAllRewrite(t *testing.T) {
	stmts := []normalizer.Statement{
		{
			ID: 0, Kind: normalizer.KindAwait,
			Bound: []string{"a"}, Declared: []string{"a"}, Referenced: []string{"fetch"},
			AwaitText: "fetch('/a')", ChainID: -1,
		},
		{
			ID: 1, Kind: normalizer.KindAwait,
			Bound: []string{"b"}, Declared: []string{"b"}, Referenced: []string{"fetch"},
			AwaitText: "fetch('/b')", ChainID: -1,
		},
		{ID: 2, Kind: normalizer.KindReturn, Referenced: []string{"a", "b"}, ChainID: -1},
	}
	g := buildGraph(t, stmts)

	fix := For(rules.Finding{
		RuleID:  rules.RuleSeqAwait,
		StepIDs: []int{0, 1},
	}, g, stmts)

	want := "const [a, b] = await Promise.all([fetch('/a'), fetch('/b')]);"
	if fix != want {
		t.Errorf("unexpected rewrite:\n got %q\nwant %q", fix, want)
	}
}

func TestPromiseAllRewriteMissingExpr(t *testing.T) {
	stmts := []normalizer.Statement{
		{
			ID: 0, Kind: normalizer.KindAwait,
			Bound: []string{"a"}, Declared: []string{"a"},
			ChainID: -1,
		},
	}
	g := buildGraph(t, stmts)

	fix := For(rules.Finding{RuleID: rules.RuleSeqAwait, StepIDs: []int{0}}, g, stmts)
	if fix != "" {
		t.Errorf("missing await text must yield no suggestion, got %q", fix)
	}
}

func TestInsertAwait(t *testing.T) {
	stmts := []normalizer.Statement{
		{
			ID: 0, Kind: normalizer.KindPlain,
			Text:     "const p = fetch('/a');",
			Bound:    []string{"p"}, Declared: []string{"p"},
			PromiseCall: "fetch", CallText: "fetch('/a')",
			ChainID: -1,
		},
		{ID: 1, Kind: normalizer.KindPlain, Referenced: []string{"p"}, ChainID: -1},
	}
	g := buildGraph(t, stmts)

	fix := For(rules.Finding{
		RuleID:       rules.RuleMissingAwait,
		StatementIDs: []int{0, 1},
	}, g, stmts)

	if fix != "const p = await fetch('/a');" {
		t.Errorf("unexpected rewrite %q", fix)
	}
}

func TestInsertAwaitNoEvidence(t *testing.T) {
	g := buildGraph(t, nil)
	fix := For(rules.Finding{RuleID: rules.RuleMissingAwait}, g, nil)
	if fix != "" {
		t.Errorf("no evidence must yield no suggestion, got %q", fix)
	}
}

func TestNoErrorScopeSuggestions(t *testing.T) {
	awaitStmts := []normalizer.Statement{
		{
			ID: 0, Kind: normalizer.KindAwait,
			Bound: []string{"a"}, Declared: []string{"a"}, Referenced: []string{"fetch"},
			ChainID: -1,
		},
	}
	g := buildGraph(t, awaitStmts)

	fix := For(rules.Finding{RuleID: rules.RuleNoErrorScope, StepIDs: []int{0}}, g, awaitStmts)
	if !strings.Contains(fix, "try {") {
		t.Errorf("await finding must suggest try/catch, got %q", fix)
	}

	chainStmts := []normalizer.Statement{
		{ID: 0, Kind: normalizer.KindThenCall, ChainID: 0},
	}
	g = buildGraph(t, chainStmts)

	fix = For(rules.Finding{RuleID: rules.RuleNoErrorScope, StepIDs: []int{0}}, g, chainStmts)
	if !strings.Contains(fix, ".catch") {
		t.Errorf("chain finding must suggest a .catch, got %q", fix)
	}
}

func TestStaticTemplates(t *testing.T) {
	g := buildGraph(t, nil)

	if fix := For(rules.Finding{RuleID: rules.RulePromiseHell}, g, nil); !strings.Contains(fix, "await") {
		t.Errorf("promise hell suggestion must mention await, got %q", fix)
	}
	if fix := For(rules.Finding{RuleID: rules.RuleLoopSeqAwait}, g, nil); !strings.Contains(fix, "Promise.all") {
		t.Errorf("loop suggestion must mention Promise.all, got %q", fix)
	}
	if fix := For(rules.Finding{RuleID: rules.RuleMixedStyle}, g, nil); fix != "" {
		t.Errorf("style findings carry no rewrite, got %q", fix)
	}
}
