package formats

import (
	"fmt"
	"strings"

	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/flow"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/normalizer"
)

// MermaidGenerator renders one analyzed function as a Mermaid flowchart:
// async steps as nodes, dependency edges as arrows, error scopes as
// subgraphs, parallelizable steps highlighted.
type MermaidGenerator struct {
	graph *flow.Graph
	stmts []normalizer.Statement
}

func NewMermaidGenerator(g *flow.Graph, stmts []normalizer.Statement) *MermaidGenerator {
	return &MermaidGenerator{graph: g, stmts: stmts}
}

func (m *MermaidGenerator) Generate() (string, error) {
	var b strings.Builder
	b.WriteString("%%{init: {'theme': 'base', 'themeVariables': {'textColor': '#000000', 'primaryTextColor': '#000000', 'lineColor': '#333333'}, 'flowchart': {'nodeSpacing': 60, 'rankSpacing': 90, 'curve': 'basis'}}}%%\n")
	b.WriteString("flowchart LR\n")

	steps := m.graph.Steps()
	emitted := make(map[int]bool, len(steps))

	for _, scope := range m.graph.ErrorScopes() {
		guard := "try"
		if scope.HasCatch {
			guard = "try/catch"
		}
		if scope.HasFinally {
			guard += "+finally"
		}
		b.WriteString(fmt.Sprintf("  subgraph scope_%d[\"%s\"]\n", scope.ID, guard))
		for _, id := range scope.StepIDs {
			b.WriteString("    " + m.node(id) + "\n")
			emitted[id] = true
		}
		b.WriteString("  end\n")
	}

	for _, loop := range m.graph.LoopScopes() {
		label := loop.Kind + " loop"
		if loop.IterationIndependent {
			label += " (independent iterations)"
		}
		pending := make([]int, 0, len(loop.StepIDs))
		for _, id := range loop.StepIDs {
			if !emitted[id] {
				pending = append(pending, id)
			}
		}
		if len(pending) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("  subgraph loop_%d[\"%s\"]\n", loop.ID, escapeLabel(label)))
		for _, id := range pending {
			b.WriteString("    " + m.node(id) + "\n")
			emitted[id] = true
		}
		b.WriteString("  end\n")
	}

	for _, step := range steps {
		if !emitted[step.ID] {
			b.WriteString("  " + m.node(step.ID) + "\n")
		}
	}

	b.WriteString("\n")
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			b.WriteString(fmt.Sprintf("  s%d --> s%d\n", dep, step.ID))
		}
	}

	if len(steps) > 0 {
		b.WriteString("\n")
		b.WriteString("  classDef stepNode fill:#f7fbff,stroke:#4d6480,stroke-width:1px,color:#000000;\n")
		ids := make([]string, 0, len(steps))
		for _, step := range steps {
			ids = append(ids, fmt.Sprintf("s%d", step.ID))
		}
		b.WriteString("  class " + strings.Join(ids, ",") + " stepNode;\n")
	}

	parallel := make([]string, 0)
	for _, group := range m.graph.ParallelGroups() {
		for _, id := range group {
			parallel = append(parallel, fmt.Sprintf("s%d", id))
		}
	}
	if len(parallel) > 0 {
		b.WriteString("  classDef parallelNode fill:#e9f5ec,stroke:#2f7d32,stroke-width:2px,color:#000000;\n")
		b.WriteString("  class " + strings.Join(parallel, ",") + " parallelNode;\n")
	}

	b.WriteString("\n")
	b.WriteString("  subgraph legend_info[\"Legend\"]\n")
	b.WriteString("    legend_nodes[\"Node: async step (await, .then link, or Promise.all batch)\"]\n")
	b.WriteString("    legend_edges[\"Arrow: data dependency, later step consumes earlier result\"]\n")
	b.WriteString("    legend_parallel[\"Green nodes: independent awaits that could run together\"]\n")
	b.WriteString("  end\n")
	b.WriteString("  classDef legendNode fill:#fff8dc,stroke:#b8a24c,stroke-width:1px,color:#000000;\n")
	b.WriteString("  class legend_nodes,legend_edges,legend_parallel legendNode;\n")

	return b.String(), nil
}

func (m *MermaidGenerator) node(id int) string {
	step, ok := m.graph.Step(id)
	if !ok {
		return fmt.Sprintf("s%d[\"step %d\"]", id, id)
	}
	label := step.Kind.String()
	if step.SourceOrder >= 0 && step.SourceOrder < len(m.stmts) {
		label += "\\n" + escapeLabel(truncateLabel(m.stmts[step.SourceOrder].Text))
	}
	return fmt.Sprintf("s%d[\"%s\"]", step.ID, label)
}
