package flow

// Serializable graph model handed to downstream consumers (diagram
// exporters, UI). Self-contained, no cyclic references.

type StepModel struct {
	ID           int    `json:"id"`
	SourceOrder  int    `json:"sourceOrder"`
	Kind         string `json:"kind"`
	DependsOn    []int  `json:"dependsOn"`
	ErrorScopeID *int   `json:"errorScopeId,omitempty"`
}

type ErrorScopeModel struct {
	ID             int   `json:"id"`
	HasCatch       bool  `json:"hasCatch"`
	HasFinally     bool  `json:"hasFinally"`
	CoveredStepIDs []int `json:"coveredStepIds"`
}

type LoopScopeModel struct {
	ID                   int   `json:"id"`
	IterationIndependent bool  `json:"iterationIndependent"`
	BodyStepIDs          []int `json:"bodyStepIds"`
}

type Model struct {
	Steps          []StepModel       `json:"steps"`
	ErrorScopes    []ErrorScopeModel `json:"errorScopes"`
	LoopScopes     []LoopScopeModel  `json:"loopScopes"`
	ParallelGroups [][]int           `json:"parallelGroups"`
}

// Export produces the serializable model. All slices are freshly
// allocated and non-nil so the JSON encoding is deterministic.
func (g *Graph) Export() Model {
	steps := make([]StepModel, 0, len(g.steps))
	for _, step := range g.steps {
		m := StepModel{
			ID:          step.ID,
			SourceOrder: step.SourceOrder,
			Kind:        step.Kind.String(),
			DependsOn:   append([]int{}, step.DependsOn...),
		}
		if step.ErrorScope >= 0 {
			scope := step.ErrorScope
			m.ErrorScopeID = &scope
		}
		steps = append(steps, m)
	}

	scopes := make([]ErrorScopeModel, 0, len(g.errorScopes))
	for _, scope := range g.errorScopes {
		scopes = append(scopes, ErrorScopeModel{
			ID:             scope.ID,
			HasCatch:       scope.HasCatch,
			HasFinally:     scope.HasFinally,
			CoveredStepIDs: append([]int{}, scope.StepIDs...),
		})
	}

	loops := make([]LoopScopeModel, 0, len(g.loopScopes))
	for _, loop := range g.loopScopes {
		loops = append(loops, LoopScopeModel{
			ID:                   loop.ID,
			IterationIndependent: loop.IterationIndependent,
			BodyStepIDs:          append([]int{}, loop.StepIDs...),
		})
	}

	groups := make([][]int, 0, len(g.parallel))
	for _, group := range g.parallel {
		groups = append(groups, append([]int{}, group...))
	}

	return Model{Steps: steps, ErrorScopes: scopes, LoopScopes: loops, ParallelGroups: groups}
}
