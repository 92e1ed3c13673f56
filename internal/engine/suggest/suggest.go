// Package suggest synthesizes concrete rewrite fragments for findings.
// Suggestions are heuristic templates, not verified transformations; an
// empty result means "manual fix required", never an error.
package suggest

import (
	"fmt"
	"strings"

	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/flow"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/normalizer"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/rules"
)

// For returns the suggested fix for one finding, or "" when no safe
// template applies.
func For(f rules.Finding, g *flow.Graph, stmts []normalizer.Statement) string {
	switch f.RuleID {
	case rules.RuleSeqAwait:
		return promiseAllRewrite(f, g, stmts)
	case rules.RuleMissingAwait:
		return insertAwait(f, stmts)
	case rules.RuleNoErrorScope:
		if isChainFinding(f, g) {
			return "Add a trailing .catch(err => { ... }) to the chain, or await it inside a try/catch block."
		}
		return "Wrap the awaited calls in try { ... } catch (err) { ... } so rejections are handled inside the function."
	case rules.RulePromiseHell:
		return "Replace the chain with sequential awaits: const a = await step1(); const b = await step2(a); ..."
	case rules.RuleLoopSeqAwait:
		return "Collect the promises first and batch them: await Promise.all(items.map(item => work(item)))."
	}
	return ""
}

// promiseAllRewrite emits a destructuring Promise.all rewrite reusing
// the original binding names and right-hand sides, leading await
// removed, in original order.
func promiseAllRewrite(f rules.Finding, g *flow.Graph, stmts []normalizer.Statement) string {
	names := make([]string, 0, len(f.StepIDs))
	exprs := make([]string, 0, len(f.StepIDs))
	for _, id := range f.StepIDs {
		step, ok := g.Step(id)
		if !ok || len(step.Bound) == 0 {
			return ""
		}
		if step.SourceOrder < 0 || step.SourceOrder >= len(stmts) {
			return ""
		}
		expr := stmts[step.SourceOrder].AwaitText
		if expr == "" {
			return ""
		}
		names = append(names, step.Bound[0])
		exprs = append(exprs, expr)
	}
	return fmt.Sprintf("const [%s] = await Promise.all([%s]);",
		strings.Join(names, ", "), strings.Join(exprs, ", "))
}

// insertAwait re-emits the offending statement with await inserted
// before the promise-returning call.
func insertAwait(f rules.Finding, stmts []normalizer.Statement) string {
	if len(f.StatementIDs) == 0 {
		return ""
	}
	id := f.StatementIDs[0]
	if id < 0 || id >= len(stmts) {
		return ""
	}
	st := stmts[id]
	if st.CallText == "" || !strings.Contains(st.Text, st.CallText) {
		return ""
	}
	return strings.Replace(st.Text, st.CallText, "await "+st.CallText, 1)
}

func isChainFinding(f rules.Finding, g *flow.Graph) bool {
	for _, id := range f.StepIDs {
		if step, ok := g.Step(id); ok && step.Kind == flow.StepThenChainLink {
			return true
		}
	}
	return false
}
