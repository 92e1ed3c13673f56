package flow

type StepKind int

const (
	StepSingleAwait StepKind = iota
	StepThenChainLink
	StepPromiseAllGroup
)

func (k StepKind) String() string {
	switch k {
	case StepThenChainLink:
		return "then-chain-link"
	case StepPromiseAllGroup:
		return "promise-all-group"
	default:
		return "single-await"
	}
}

// AsyncStep is one unit of asynchronous work. SourceOrder is the id of
// the statement the step was derived from; dependency edges always point
// from a lower SourceOrder to a higher one, which keeps the graph
// acyclic by construction.
type AsyncStep struct {
	ID          int
	SourceOrder int
	Kind        StepKind
	DependsOn   []int // step ids, ascending
	ErrorScope  int   // ErrorScope id, -1 when unguarded
	Loop        int   // innermost LoopScope id, -1 outside loops
	Chain       int   // ThenChain id for chain links, -1 otherwise
	Bound       []string
}

// ErrorScope is a try/catch/finally region.
type ErrorScope struct {
	ID         int
	StepIDs    []int
	HasCatch   bool
	HasFinally bool
}

// LoopScope wraps a loop body's step sequence. IterationIndependent is
// true when no step in the body reads a name assigned by another body
// statement that is not freshly rebound each iteration.
type LoopScope struct {
	ID                   int
	Kind                 string
	StepIDs              []int
	IterationIndependent bool
}

// ThenChain groups the links of one .then/.catch/.finally chain.
type ThenChain struct {
	ID         int
	StepIDs    []int
	ThenLinks  int
	HasCatch   bool
	HasFinally bool
}

// Graph is the immutable result of Build: steps with dependency edges,
// error scopes, loop scopes, chains, and parallelizable candidate sets.
type Graph struct {
	steps       []AsyncStep
	errorScopes []ErrorScope
	loopScopes  []LoopScope
	chains      []ThenChain
	parallel    [][]int
}

func (g *Graph) Steps() []AsyncStep {
	return append([]AsyncStep(nil), g.steps...)
}

func (g *Graph) Step(id int) (AsyncStep, bool) {
	if id < 0 || id >= len(g.steps) {
		return AsyncStep{}, false
	}
	return g.steps[id], true
}

func (g *Graph) StepCount() int { return len(g.steps) }

func (g *Graph) ErrorScopes() []ErrorScope {
	return append([]ErrorScope(nil), g.errorScopes...)
}

func (g *Graph) LoopScopes() []LoopScope {
	return append([]LoopScope(nil), g.loopScopes...)
}

func (g *Graph) Chains() []ThenChain {
	return append([]ThenChain(nil), g.chains...)
}

// ParallelGroups returns the parallelizable candidate sets, each a group
// of at least two steps with no dependency among them.
func (g *Graph) ParallelGroups() [][]int {
	out := make([][]int, 0, len(g.parallel))
	for _, group := range g.parallel {
		out = append(out, append([]int(nil), group...))
	}
	return out
}
