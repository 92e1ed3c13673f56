package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/flow"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/normalizer"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Finding is one reported anti-pattern instance. StepIDs reference the
// responsible AsyncSteps so callers can highlight source spans;
// StatementIDs carry extra evidence for the suggestion generator and are
// not part of the wire format.
type Finding struct {
	RuleID       string   `json:"ruleId"`
	Severity     Severity `json:"severity"`
	StepIDs      []int    `json:"stepIds"`
	Message      string   `json:"message"`
	SuggestedFix string   `json:"suggestedFix,omitempty"`

	StatementIDs []int `json:"-"`
}

const (
	RuleSeqAwait     = "SEQ_AWAIT"
	RuleMissingAwait = "MISSING_AWAIT"
	RuleNoErrorScope = "NO_ERROR_SCOPE"
	RuleMixedStyle   = "MIXED_STYLE"
	RulePromiseHell  = "PROMISE_HELL"
	RuleLoopSeqAwait = "LOOP_SEQ_AWAIT"
)

// Rule is one entry of the closed rule table: a pure predicate over the
// graph plus the original statements. A match is a normal result, never
// an error.
type Rule struct {
	ID       string
	Severity Severity
	Check    func(g *flow.Graph, stmts []normalizer.Statement) []Finding
}

// Registry returns the fixed rule table in evaluation order.
func Registry() []Rule {
	return []Rule{
		{ID: RuleSeqAwait, Severity: SeverityWarn, Check: checkSeqAwait},
		{ID: RuleMissingAwait, Severity: SeverityError, Check: checkMissingAwait},
		{ID: RuleNoErrorScope, Severity: SeverityWarn, Check: checkNoErrorScope},
		{ID: RuleMixedStyle, Severity: SeverityInfo, Check: checkMixedStyle},
		{ID: RulePromiseHell, Severity: SeverityWarn, Check: checkPromiseHell},
		{ID: RuleLoopSeqAwait, Severity: SeverityWarn, Check: checkLoopSeqAwait},
	}
}

// RuleIDs lists every known rule id in table order.
func RuleIDs() []string {
	registry := Registry()
	ids := make([]string, 0, len(registry))
	for _, rule := range registry {
		ids = append(ids, rule.ID)
	}
	return ids
}

// ConfigError reports an unknown rule id in the enabled set; it is
// surfaced before any analysis runs.
type ConfigError struct {
	RuleID string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("unknown rule id %q", e.RuleID)
}

// Evaluate runs the enabled rules against the graph. An empty enabled
// set means all rules. Findings come back in table order, stable for
// identical inputs.
func Evaluate(g *flow.Graph, stmts []normalizer.Statement, enabled []string) ([]Finding, error) {
	registry := Registry()

	known := make(map[string]bool, len(registry))
	for _, rule := range registry {
		known[rule.ID] = true
	}

	want := make(map[string]bool, len(enabled))
	for _, id := range enabled {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if !known[id] {
			return nil, &ConfigError{RuleID: id}
		}
		want[id] = true
	}

	findings := make([]Finding, 0)
	for _, rule := range registry {
		if len(want) > 0 && !want[rule.ID] {
			continue
		}
		findings = append(findings, rule.Check(g, stmts)...)
	}
	return findings, nil
}

// checkSeqAwait flags parallelizable candidate sets whose members are
// each consumed independently later on.
func checkSeqAwait(g *flow.Graph, stmts []normalizer.Statement) []Finding {
	var findings []Finding
	for _, group := range g.ParallelGroups() {
		names := make([]string, 0, len(group))
		stmtIDs := make([]int, 0, len(group))
		consumed := true
		for _, id := range group {
			step, ok := g.Step(id)
			if !ok || len(step.Bound) == 0 {
				consumed = false
				break
			}
			if !consumedLater(step, stmts) {
				consumed = false
				break
			}
			names = append(names, step.Bound...)
			stmtIDs = append(stmtIDs, step.SourceOrder)
		}
		if !consumed {
			continue
		}
		findings = append(findings, Finding{
			RuleID:   RuleSeqAwait,
			Severity: SeverityWarn,
			StepIDs:  append([]int(nil), group...),
			Message: fmt.Sprintf("awaits binding %s do not depend on each other; they run sequentially but could be started together with Promise.all",
				strings.Join(names, ", ")),
			StatementIDs: stmtIDs,
		})
	}
	return findings
}

func consumedLater(step flow.AsyncStep, stmts []normalizer.Statement) bool {
	bound := make(map[string]bool, len(step.Bound))
	for _, name := range step.Bound {
		bound[name] = true
	}
	for _, st := range stmts[step.SourceOrder+1:] {
		for _, name := range st.Referenced {
			if bound[name] {
				return true
			}
		}
	}
	return false
}

// checkMissingAwait flags promise-returning calls whose result is bound
// and then consumed without an await or return in between.
func checkMissingAwait(g *flow.Graph, stmts []normalizer.Statement) []Finding {
	var findings []Finding
	for _, st := range stmts {
		if st.Kind != normalizer.KindPlain || st.PromiseCall == "" || len(st.Bound) == 0 {
			continue
		}
		name := st.Bound[0]
		consumer, ok := firstConsumer(stmts, st.ID, name)
		if !ok {
			continue
		}
		// Consumption through an await or a return resolves the promise.
		if consumer.Kind == normalizer.KindAwait || consumer.Kind == normalizer.KindReturn {
			continue
		}
		findings = append(findings, Finding{
			RuleID:   RuleMissingAwait,
			Severity: SeverityError,
			StepIDs:  stepsForStatement(g, consumer.ID),
			Message: fmt.Sprintf("%s() returns a promise but %q is used on line %d without await",
				st.PromiseCall, name, consumer.Span.StartLine),
			StatementIDs: []int{st.ID, consumer.ID},
		})
	}
	return findings
}

func firstConsumer(stmts []normalizer.Statement, after int, name string) (normalizer.Statement, bool) {
	for _, st := range stmts[after+1:] {
		for _, ref := range st.Referenced {
			if ref == name {
				return st, true
			}
		}
	}
	return normalizer.Statement{}, false
}

func stepsForStatement(g *flow.Graph, stmtID int) []int {
	ids := make([]int, 0, 1)
	for _, step := range g.Steps() {
		if step.SourceOrder == stmtID {
			ids = append(ids, step.ID)
		}
	}
	return ids
}

// checkNoErrorScope flags awaits outside any try/catch and chains
// without a .catch link. Unguarded awaits aggregate into one finding;
// chains report individually since the missing .catch is per chain.
func checkNoErrorScope(g *flow.Graph, stmts []normalizer.Statement) []Finding {
	var findings []Finding

	unguarded := make([]int, 0)
	for _, step := range g.Steps() {
		if step.Kind == flow.StepSingleAwait && step.ErrorScope < 0 {
			unguarded = append(unguarded, step.ID)
		}
	}
	if len(unguarded) > 0 {
		findings = append(findings, Finding{
			RuleID:   RuleNoErrorScope,
			Severity: SeverityWarn,
			StepIDs:  unguarded,
			Message:  fmt.Sprintf("%d await(s) run outside any try/catch; a rejection would escape this function", len(unguarded)),
		})
	}

	for _, chain := range g.Chains() {
		if chain.HasCatch || len(chain.StepIDs) == 0 {
			continue
		}
		if first, ok := g.Step(chain.StepIDs[0]); ok && first.ErrorScope >= 0 {
			continue
		}
		findings = append(findings, Finding{
			RuleID:   RuleNoErrorScope,
			Severity: SeverityWarn,
			StepIDs:  append([]int(nil), chain.StepIDs...),
			Message:  "promise chain has no .catch and no enclosing try/catch; a rejection would go unhandled",
		})
	}

	_ = stmts
	return findings
}

// checkMixedStyle reports one info finding when a function mixes
// async/await with .then() chains.
func checkMixedStyle(g *flow.Graph, stmts []normalizer.Statement) []Finding {
	firstAwait, firstChain := -1, -1
	for _, step := range g.Steps() {
		switch step.Kind {
		case flow.StepSingleAwait, flow.StepPromiseAllGroup:
			if firstAwait < 0 {
				firstAwait = step.ID
			}
		case flow.StepThenChainLink:
			if firstChain < 0 {
				firstChain = step.ID
			}
		}
	}
	if firstAwait < 0 || firstChain < 0 {
		return nil
	}
	ids := []int{firstAwait, firstChain}
	sort.Ints(ids)
	_ = stmts
	return []Finding{{
		RuleID:   RuleMixedStyle,
		Severity: SeverityInfo,
		StepIDs:  ids,
		Message:  "function mixes await with .then() chains; pick one style for readability",
	}}
}

// checkPromiseHell flags chains of three or more .then links. A chain
// flattened by await or return never produces link steps, so any chain
// seen here is unflattened.
func checkPromiseHell(g *flow.Graph, stmts []normalizer.Statement) []Finding {
	var findings []Finding
	for _, chain := range g.Chains() {
		if chain.ThenLinks < 3 {
			continue
		}
		findings = append(findings, Finding{
			RuleID:   RulePromiseHell,
			Severity: SeverityWarn,
			StepIDs:  append([]int(nil), chain.StepIDs...),
			Message:  fmt.Sprintf("promise chain with %d .then links; rewrite with await for a flat control flow", chain.ThenLinks),
		})
	}
	_ = stmts
	return findings
}

// checkLoopSeqAwait flags serial awaits inside iteration-independent
// loops that are not already batched.
func checkLoopSeqAwait(g *flow.Graph, stmts []normalizer.Statement) []Finding {
	var findings []Finding
	for _, loop := range g.LoopScopes() {
		if !loop.IterationIndependent {
			continue
		}
		serial := make([]int, 0)
		for _, id := range loop.StepIDs {
			if step, ok := g.Step(id); ok && step.Kind == flow.StepSingleAwait {
				serial = append(serial, id)
			}
		}
		if len(serial) == 0 {
			continue
		}
		findings = append(findings, Finding{
			RuleID:   RuleLoopSeqAwait,
			Severity: SeverityWarn,
			StepIDs:  serial,
			Message:  fmt.Sprintf("%s loop awaits on every iteration although iterations are independent; batch them with Promise.all", loop.Kind),
		})
	}
	_ = stmts
	return findings
}
