package flow

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/normalizer"
)

func awaitStmt(id int, bound string, refs ...string) normalizer.Statement {
	st := normalizer.Statement{
		ID:         id,
		Kind:       normalizer.KindAwait,
		Span:       normalizer.Span{StartLine: id + 1, StartCol: 1},
		Referenced: refs,
		ChainID:    -1,
	}
	if bound != "" {
		st.Bound = []string{bound}
		st.Declared = []string{bound}
	}
	return st
}

func plainStmt(id int, bound string, refs ...string) normalizer.Statement {
	st := normalizer.Statement{
		ID:         id,
		Kind:       normalizer.KindPlain,
		Span:       normalizer.Span{StartLine: id + 1, StartCol: 1},
		Referenced: refs,
		ChainID:    -1,
	}
	if bound != "" {
		st.Bound = []string{bound}
		st.Declared = []string{bound}
	}
	return st
}

func markerStmt(id int, kind normalizer.Kind) normalizer.Statement {
	return normalizer.Statement{
		ID:      id,
		Kind:    kind,
		Span:    normalizer.Span{StartLine: id + 1, StartCol: 1},
		ChainID: -1,
	}
}

func mustBuild(t *testing.T, stmts []normalizer.Statement) *Graph {
	t.Helper()
	g, err := Build(stmts)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g
}

func TestBuildDependencies(t *testing.T) {
	g := mustBuild(t, []normalizer.Statement{
		awaitStmt(0, "a", "fetch"),
		awaitStmt(1, "ad", "a"),
		awaitStmt(2, "b", "fetch"),
		{ID: 3, Kind: normalizer.KindReturn, Referenced: []string{"ad", "b"}, ChainID: -1},
	})

	if g.StepCount() != 3 {
		t.Fatalf("expected 3 steps, got %d", g.StepCount())
	}

	steps := g.Steps()
	if len(steps[0].DependsOn) != 0 {
		t.Errorf("step 0 must have no dependencies, got %v", steps[0].DependsOn)
	}
	if !reflect.DeepEqual(steps[1].DependsOn, []int{0}) {
		t.Errorf("step 1 must depend on step 0, got %v", steps[1].DependsOn)
	}
	if len(steps[2].DependsOn) != 0 {
		t.Errorf("step 2 must be independent, got %v", steps[2].DependsOn)
	}
	if steps[1].SourceOrder != 1 {
		t.Errorf("step 1 source order mismatch: %d", steps[1].SourceOrder)
	}
}

func TestBuildEdgesAlwaysPointBackward(t *testing.T) {
	for seed := int64(0); seed < 25; seed++ {
		rng := rand.New(rand.NewSource(seed))

		var stmts []normalizer.Statement
		var available []string
		for i := 0; i < 30; i++ {
			var refs []string
			for _, name := range available {
				if rng.Intn(4) == 0 {
					refs = append(refs, name)
				}
			}
			name := fmt.Sprintf("v%d", i)
			if rng.Intn(2) == 0 {
				stmts = append(stmts, awaitStmt(i, name, refs...))
			} else {
				stmts = append(stmts, plainStmt(i, name, refs...))
			}
			available = append(available, name)
		}

		g, err := Build(stmts)
		if err != nil {
			t.Fatalf("seed %d: Build failed: %v", seed, err)
		}
		for _, step := range g.Steps() {
			for _, dep := range step.DependsOn {
				from, _ := g.Step(dep)
				if from.SourceOrder >= step.SourceOrder {
					t.Fatalf("seed %d: edge %d->%d points forward", seed, step.ID, dep)
				}
			}
		}
	}
}

func TestBuildErrorScopes(t *testing.T) {
	tryEnter := markerStmt(0, normalizer.KindTryEnter)
	tryEnter.HasCatch = true

	g := mustBuild(t, []normalizer.Statement{
		tryEnter,
		awaitStmt(1, "a", "fetch"),
		markerStmt(2, normalizer.KindTryExit),
		awaitStmt(3, "b", "fetch"),
	})

	scopes := g.ErrorScopes()
	if len(scopes) != 1 {
		t.Fatalf("expected 1 error scope, got %d", len(scopes))
	}
	if !scopes[0].HasCatch {
		t.Error("scope must record the catch handler")
	}
	if !reflect.DeepEqual(scopes[0].StepIDs, []int{0}) {
		t.Errorf("scope must cover step 0 only, got %v", scopes[0].StepIDs)
	}

	steps := g.Steps()
	if steps[0].ErrorScope != 0 {
		t.Errorf("guarded step must carry scope 0, got %d", steps[0].ErrorScope)
	}
	if steps[1].ErrorScope != -1 {
		t.Errorf("unguarded step must carry -1, got %d", steps[1].ErrorScope)
	}
}

func TestBuildNestedErrorScopes(t *testing.T) {
	outer := markerStmt(0, normalizer.KindTryEnter)
	outer.HasCatch = true
	inner := markerStmt(1, normalizer.KindTryEnter)
	inner.HasCatch = true

	g := mustBuild(t, []normalizer.Statement{
		outer,
		inner,
		awaitStmt(2, "a", "fetch"),
		markerStmt(3, normalizer.KindTryExit),
		awaitStmt(4, "b", "fetch"),
		markerStmt(5, normalizer.KindTryExit),
	})

	steps := g.Steps()
	if steps[0].ErrorScope != 1 {
		t.Errorf("inner await must carry the inner scope, got %d", steps[0].ErrorScope)
	}
	if steps[1].ErrorScope != 0 {
		t.Errorf("outer await must carry the outer scope, got %d", steps[1].ErrorScope)
	}
}

func TestBuildLoopScopeIterationIndependent(t *testing.T) {
	loopEnter := markerStmt(0, normalizer.KindLoopEnter)
	loopEnter.LoopKind = "for-of"
	loopEnter.Bound = []string{"item"}
	loopEnter.Declared = []string{"item"}
	loopEnter.Referenced = []string{"items"}

	g := mustBuild(t, []normalizer.Statement{
		loopEnter,
		awaitStmt(1, "r", "fetch", "item"),
		markerStmt(2, normalizer.KindLoopExit),
	})

	loops := g.LoopScopes()
	if len(loops) != 1 {
		t.Fatalf("expected 1 loop scope, got %d", len(loops))
	}
	if loops[0].Kind != "for-of" {
		t.Errorf("unexpected loop kind %q", loops[0].Kind)
	}
	if !loops[0].IterationIndependent {
		t.Error("fresh per-iteration bindings must be independent")
	}
	if !reflect.DeepEqual(loops[0].StepIDs, []int{0}) {
		t.Errorf("loop must cover step 0, got %v", loops[0].StepIDs)
	}

	step, _ := g.Step(0)
	if step.Loop != 0 {
		t.Errorf("step must carry loop 0, got %d", step.Loop)
	}
}

func TestBuildLoopScopeCarriedDependency(t *testing.T) {
	loopEnter := markerStmt(0, normalizer.KindLoopEnter)
	loopEnter.LoopKind = "for-of"
	loopEnter.Bound = []string{"item"}
	loopEnter.Declared = []string{"item"}

	// total is assigned, not declared, so it carries across iterations.
	accumulate := normalizer.Statement{
		ID:         1,
		Kind:       normalizer.KindAwait,
		Bound:      []string{"total"},
		Referenced: []string{"total", "item", "fetch"},
		ChainID:    -1,
	}

	g := mustBuild(t, []normalizer.Statement{
		loopEnter,
		accumulate,
		markerStmt(2, normalizer.KindLoopExit),
	})

	if g.LoopScopes()[0].IterationIndependent {
		t.Error("carried accumulator must make the loop dependent")
	}
}

func TestBuildChains(t *testing.T) {
	link := func(id int, kind normalizer.Kind) normalizer.Statement {
		return normalizer.Statement{ID: id, Kind: kind, ChainID: 0}
	}

	g := mustBuild(t, []normalizer.Statement{
		link(0, normalizer.KindThenCall),
		link(1, normalizer.KindThenCall),
		link(2, normalizer.KindCatchCall),
	})

	chains := g.Chains()
	if len(chains) != 1 {
		t.Fatalf("expected 1 chain, got %d", len(chains))
	}
	if chains[0].ThenLinks != 2 {
		t.Errorf("expected 2 then links, got %d", chains[0].ThenLinks)
	}
	if !chains[0].HasCatch {
		t.Error("chain must record the catch link")
	}
	if !reflect.DeepEqual(chains[0].StepIDs, []int{0, 1, 2}) {
		t.Errorf("unexpected chain steps %v", chains[0].StepIDs)
	}
	for _, step := range g.Steps() {
		if step.Kind != StepThenChainLink || step.Chain != 0 {
			t.Errorf("step %d must be a chain link of chain 0", step.ID)
		}
	}
}

func TestBuildProducerForwarding(t *testing.T) {
	g := mustBuild(t, []normalizer.Statement{
		awaitStmt(0, "resp", "fetch"),
		plainStmt(1, "d", "resp"),
		awaitStmt(2, "x", "d"),
	})

	step, _ := g.Step(1)
	if !reflect.DeepEqual(step.DependsOn, []int{0}) {
		t.Errorf("rebinding must forward the producer, got %v", step.DependsOn)
	}
}

func TestBuildProducerOverwrite(t *testing.T) {
	g := mustBuild(t, []normalizer.Statement{
		awaitStmt(0, "resp", "fetch"),
		plainStmt(1, "resp"),
		awaitStmt(2, "x", "resp"),
	})

	step, _ := g.Step(1)
	if len(step.DependsOn) != 0 {
		t.Errorf("overwritten binding must drop the producer, got %v", step.DependsOn)
	}
}

func TestBuildParallelGroups(t *testing.T) {
	g := mustBuild(t, []normalizer.Statement{
		awaitStmt(0, "a", "fetch"),
		awaitStmt(1, "b", "fetch"),
		{ID: 2, Kind: normalizer.KindReturn, Referenced: []string{"a", "b"}, ChainID: -1},
	})

	groups := g.ParallelGroups()
	if len(groups) != 1 || !reflect.DeepEqual(groups[0], []int{0, 1}) {
		t.Fatalf("expected group [0 1], got %v", groups)
	}
}

func TestBuildParallelGroupsSkipDependent(t *testing.T) {
	// a.json() depends on a; it must not break the a/b independence.
	g := mustBuild(t, []normalizer.Statement{
		awaitStmt(0, "a", "fetch"),
		awaitStmt(1, "ad", "a"),
		awaitStmt(2, "b", "fetch"),
		awaitStmt(3, "bd", "b"),
		{ID: 4, Kind: normalizer.KindReturn, Referenced: []string{"ad", "bd"}, ChainID: -1},
	})

	groups := g.ParallelGroups()
	if len(groups) != 1 || !reflect.DeepEqual(groups[0], []int{0, 2}) {
		t.Fatalf("expected group [0 2], got %v", groups)
	}
}

func TestBuildParallelGroupsPlainBarrier(t *testing.T) {
	g := mustBuild(t, []normalizer.Statement{
		awaitStmt(0, "a", "fetch"),
		{ID: 1, Kind: normalizer.KindPlain, Referenced: []string{"a", "log"}, ChainID: -1},
		awaitStmt(2, "b", "fetch"),
	})

	if groups := g.ParallelGroups(); len(groups) != 0 {
		t.Fatalf("consuming a member's binding must close the group, got %v", groups)
	}
}

func TestBuildParallelGroupsScopeBoundary(t *testing.T) {
	tryEnter := markerStmt(1, normalizer.KindTryEnter)
	tryEnter.HasCatch = true

	g := mustBuild(t, []normalizer.Statement{
		awaitStmt(0, "a", "fetch"),
		tryEnter,
		awaitStmt(2, "b", "fetch"),
		markerStmt(3, normalizer.KindTryExit),
	})

	if groups := g.ParallelGroups(); len(groups) != 0 {
		t.Fatalf("awaits in different error scopes must not group, got %v", groups)
	}
}

func TestBuildRejectsForwardEdge(t *testing.T) {
	// A statement referencing a name bound only later never resolves to a
	// producer, so Build cannot create a forward edge from user input.
	g := mustBuild(t, []normalizer.Statement{
		awaitStmt(0, "a", "b"),
		awaitStmt(1, "b", "fetch"),
	})

	step, _ := g.Step(0)
	if len(step.DependsOn) != 0 {
		t.Errorf("forward reference must not produce an edge, got %v", step.DependsOn)
	}
}

func TestExportModel(t *testing.T) {
	tryEnter := markerStmt(0, normalizer.KindTryEnter)
	tryEnter.HasCatch = true

	g := mustBuild(t, []normalizer.Statement{
		tryEnter,
		awaitStmt(1, "a", "fetch"),
		markerStmt(2, normalizer.KindTryExit),
	})

	model := g.Export()
	if len(model.Steps) != 1 {
		t.Fatalf("expected 1 step in model, got %d", len(model.Steps))
	}
	if model.Steps[0].Kind != "single-await" {
		t.Errorf("unexpected step kind %q", model.Steps[0].Kind)
	}
	if model.Steps[0].ErrorScopeID == nil || *model.Steps[0].ErrorScopeID != 0 {
		t.Error("guarded step must reference its scope in the model")
	}
	if model.ParallelGroups == nil || model.LoopScopes == nil {
		t.Error("model slices must be non-nil for stable JSON")
	}

	data, err := json.Marshal(model)
	if err != nil {
		t.Fatalf("model must serialize: %v", err)
	}
	again, err := json.Marshal(g.Export())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(again) {
		t.Error("repeated exports must serialize identically")
	}
}
