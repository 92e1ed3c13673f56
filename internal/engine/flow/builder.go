package flow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/normalizer"
)

// ErrInvariant marks an engine defect: a dependency edge that would
// point forward in source order. It is never caused by user input.
var ErrInvariant = errors.New("flow: dependency order invariant violated")

// Build derives the async step graph from an ordered statement sequence.
// Dependency resolution is a pure lookup over a producer map keyed by
// identifier, so edges can only reach backward in source order.
func Build(stmts []normalizer.Statement) (*Graph, error) {
	b := &builder{
		stmts:     stmts,
		producers: make(map[string]int),
		chainIdx:  make(map[int]int),
	}

	for _, st := range stmts {
		switch st.Kind {
		case normalizer.KindTryEnter:
			b.enterTry(st)
		case normalizer.KindTryExit:
			b.exitTry()
		case normalizer.KindLoopEnter:
			b.enterLoop(st)
		case normalizer.KindLoopExit:
			b.exitLoop(st)
		case normalizer.KindAwait:
			kind := StepSingleAwait
			if st.IsBatch {
				kind = StepPromiseAllGroup
			}
			b.addStep(st, kind)
		case normalizer.KindThenCall, normalizer.KindCatchCall, normalizer.KindFinallyCall:
			b.addStep(st, StepThenChainLink)
		default:
			b.plain(st)
		}
	}

	g := &Graph{
		steps:       b.steps,
		errorScopes: b.errorScopes,
		loopScopes:  b.loopScopes,
		chains:      b.chains,
	}

	if err := verifyOrder(g); err != nil {
		return nil, err
	}
	g.parallel = parallelGroups(g, stmts)
	return g, nil
}

type builder struct {
	stmts []normalizer.Statement
	steps []AsyncStep

	// producers maps an identifier to the step that bound it. Plain
	// statements forward producers through simple rebinding so that
	// `const d = resp.data` keeps d tied to resp's step.
	producers map[string]int

	errorScopes []ErrorScope
	errStack    []int

	loopScopes []LoopScope
	loopStack  []int
	loopEnter  []int // statement id of each active loop's enter marker

	chains   []ThenChain
	chainIdx map[int]int // normalizer chain id -> chains index
}

func (b *builder) enterTry(st normalizer.Statement) {
	id := len(b.errorScopes)
	b.errorScopes = append(b.errorScopes, ErrorScope{
		ID:         id,
		StepIDs:    []int{},
		HasCatch:   st.HasCatch,
		HasFinally: st.HasFinally,
	})
	b.errStack = append(b.errStack, id)
}

func (b *builder) exitTry() {
	if len(b.errStack) > 0 {
		b.errStack = b.errStack[:len(b.errStack)-1]
	}
}

func (b *builder) enterLoop(st normalizer.Statement) {
	id := len(b.loopScopes)
	b.loopScopes = append(b.loopScopes, LoopScope{
		ID:      id,
		Kind:    st.LoopKind,
		StepIDs: []int{},
	})
	b.loopStack = append(b.loopStack, id)
	b.loopEnter = append(b.loopEnter, st.ID)
}

func (b *builder) exitLoop(st normalizer.Statement) {
	if len(b.loopStack) == 0 {
		return
	}
	id := b.loopStack[len(b.loopStack)-1]
	enterID := b.loopEnter[len(b.loopEnter)-1]
	b.loopStack = b.loopStack[:len(b.loopStack)-1]
	b.loopEnter = b.loopEnter[:len(b.loopEnter)-1]

	b.loopScopes[id].IterationIndependent = b.iterationIndependent(id, enterID, st.ID)
}

// iterationIndependent approximates cross-iteration data flow: the body
// is dependent when an async step inside it reads a name assigned (not
// freshly declared) by another statement of the same body.
func (b *builder) iterationIndependent(loopID, enterID, exitID int) bool {
	carried := make(map[string]bool)
	for _, st := range b.stmts[enterID+1 : exitID] {
		declared := make(map[string]bool, len(st.Declared))
		for _, name := range st.Declared {
			declared[name] = true
		}
		for _, name := range st.Bound {
			if !declared[name] {
				carried[name] = true
			}
		}
	}
	if len(carried) == 0 {
		return true
	}
	for _, stepID := range b.loopScopes[loopID].StepIDs {
		for _, name := range b.stmts[b.steps[stepID].SourceOrder].Referenced {
			if carried[name] {
				return false
			}
		}
	}
	return true
}

func (b *builder) addStep(st normalizer.Statement, kind StepKind) {
	id := len(b.steps)

	deps := make([]int, 0, len(st.Referenced))
	seen := make(map[int]bool)
	for _, name := range st.Referenced {
		producer, ok := b.producers[name]
		if !ok || seen[producer] {
			continue
		}
		seen[producer] = true
		deps = append(deps, producer)
	}
	sort.Ints(deps)

	step := AsyncStep{
		ID:          id,
		SourceOrder: st.ID,
		Kind:        kind,
		DependsOn:   deps,
		ErrorScope:  -1,
		Loop:        -1,
		Chain:       -1,
		Bound:       append([]string(nil), st.Bound...),
	}

	if len(b.errStack) > 0 {
		scope := b.errStack[len(b.errStack)-1]
		step.ErrorScope = scope
		b.errorScopes[scope].StepIDs = append(b.errorScopes[scope].StepIDs, id)
	}
	for _, loop := range b.loopStack {
		b.loopScopes[loop].StepIDs = append(b.loopScopes[loop].StepIDs, id)
	}
	if len(b.loopStack) > 0 {
		step.Loop = b.loopStack[len(b.loopStack)-1]
	}

	if kind == StepThenChainLink {
		idx, ok := b.chainIdx[st.ChainID]
		if !ok {
			idx = len(b.chains)
			b.chainIdx[st.ChainID] = idx
			b.chains = append(b.chains, ThenChain{ID: idx, StepIDs: []int{}})
		}
		chain := &b.chains[idx]
		chain.StepIDs = append(chain.StepIDs, id)
		switch st.Kind {
		case normalizer.KindThenCall:
			chain.ThenLinks++
		case normalizer.KindCatchCall:
			chain.HasCatch = true
		case normalizer.KindFinallyCall:
			chain.HasFinally = true
		}
		step.Chain = idx
	}

	b.steps = append(b.steps, step)

	for _, name := range st.Bound {
		b.producers[name] = id
	}
}

// plain forwards producer entries through non-async rebindings and
// drops entries overwritten with non-async values.
func (b *builder) plain(st normalizer.Statement) {
	var forwarded *int
	for _, name := range st.Referenced {
		if producer, ok := b.producers[name]; ok {
			forwarded = &producer
			break
		}
	}
	for _, name := range st.Bound {
		if forwarded != nil {
			b.producers[name] = *forwarded
		} else {
			delete(b.producers, name)
		}
	}
}

// verifyOrder is the construction-time safety net for the acyclicity
// invariant; a failure here is an engine defect, not an input problem.
func verifyOrder(g *Graph) error {
	for _, step := range g.steps {
		for _, dep := range step.DependsOn {
			if dep < 0 || dep >= len(g.steps) {
				return fmt.Errorf("%w: step %d references unknown step %d", ErrInvariant, step.ID, dep)
			}
			if g.steps[dep].SourceOrder >= step.SourceOrder {
				return fmt.Errorf("%w: edge %d->%d does not point backward", ErrInvariant, step.ID, dep)
			}
		}
	}
	return nil
}

// parallelGroups finds "could have been started together" regions: a
// greedy scan over single-await steps where a step joins the current
// group unless it transitively depends on a member. Dependent steps are
// skipped without closing the group, so a.json() between two fetches
// does not hide their independence. Scope markers and plain statements
// reading a member's binding close the group.
func parallelGroups(g *Graph, stmts []normalizer.Statement) [][]int {
	ancestors := ancestorSets(g)

	var groups [][]int
	var current []int
	var boundNames map[string]bool
	groupErrScope, groupLoop := -1, -1

	flush := func() {
		if len(current) >= 2 {
			groups = append(groups, current)
		}
		current = nil
		boundNames = nil
	}

	barrier := func(first, candidate AsyncStep) bool {
		for _, st := range stmts[first.SourceOrder+1 : candidate.SourceOrder] {
			switch st.Kind {
			case normalizer.KindTryEnter, normalizer.KindTryExit,
				normalizer.KindLoopEnter, normalizer.KindLoopExit:
				return true
			case normalizer.KindPlain, normalizer.KindReturn, normalizer.KindThrow:
				for _, name := range st.Referenced {
					if boundNames[name] {
						return true
					}
				}
			}
		}
		return false
	}

	for _, step := range g.steps {
		if step.Kind != StepSingleAwait {
			flush()
			continue
		}
		if len(current) == 0 {
			current = []int{step.ID}
			boundNames = nameSet(step.Bound)
			groupErrScope, groupLoop = step.ErrorScope, step.Loop
			continue
		}
		if step.ErrorScope != groupErrScope || step.Loop != groupLoop {
			flush()
			current = []int{step.ID}
			boundNames = nameSet(step.Bound)
			groupErrScope, groupLoop = step.ErrorScope, step.Loop
			continue
		}

		dependent := false
		for _, member := range current {
			if ancestors[step.ID][member] {
				dependent = true
				break
			}
		}
		if dependent {
			continue
		}

		first, _ := g.Step(current[0])
		if barrier(first, step) {
			flush()
			current = []int{step.ID}
			boundNames = nameSet(step.Bound)
			groupErrScope, groupLoop = step.ErrorScope, step.Loop
			continue
		}

		current = append(current, step.ID)
		for _, name := range step.Bound {
			boundNames[name] = true
		}
	}
	flush()

	return groups
}

func ancestorSets(g *Graph) []map[int]bool {
	sets := make([]map[int]bool, len(g.steps))
	for _, step := range g.steps {
		set := make(map[int]bool)
		for _, dep := range step.DependsOn {
			set[dep] = true
			for anc := range sets[dep] {
				set[anc] = true
			}
		}
		sets[step.ID] = set
	}
	return sets
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
