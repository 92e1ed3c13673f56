package formats

import (
	"fmt"
	"strings"

	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/flow"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/normalizer"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/rules"
)

// GenerateMarkdown renders a review report for one analyzed function:
// a severity summary, the findings with their suggested fixes, and a
// short flow overview.
func GenerateMarkdown(name string, findings []rules.Finding, g *flow.Graph, stmts []normalizer.Statement) string {
	var b strings.Builder

	title := "Async Review"
	if strings.TrimSpace(name) != "" {
		title += ": " + name
	}
	b.WriteString("# " + title + "\n\n")

	counts := map[rules.Severity]int{}
	for _, f := range findings {
		counts[f.Severity]++
	}
	b.WriteString(fmt.Sprintf("**%d finding(s)**: %d error, %d warn, %d info | %d async step(s), %d statement(s)\n\n",
		len(findings),
		counts[rules.SeverityError], counts[rules.SeverityWarn], counts[rules.SeverityInfo],
		g.StepCount(), len(stmts)))

	if len(findings) == 0 {
		b.WriteString("No async anti-patterns detected.\n")
		return b.String()
	}

	b.WriteString("## Findings\n\n")
	b.WriteString("| Rule | Severity | Steps | Message |\n")
	b.WriteString("|------|----------|-------|---------|\n")
	for _, f := range findings {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			f.RuleID, f.Severity, stepList(f.StepIDs), escapeCell(f.Message)))
	}
	b.WriteString("\n")

	wroteHeader := false
	for _, f := range findings {
		if f.SuggestedFix == "" {
			continue
		}
		if !wroteHeader {
			b.WriteString("## Suggested fixes\n\n")
			wroteHeader = true
		}
		b.WriteString("### " + f.RuleID + "\n\n")
		if looksLikeCode(f.SuggestedFix) {
			b.WriteString("```js\n" + f.SuggestedFix + "\n```\n\n")
		} else {
			b.WriteString(f.SuggestedFix + "\n\n")
		}
	}

	b.WriteString("## Flow overview\n\n")
	for _, step := range g.Steps() {
		text := ""
		if step.SourceOrder >= 0 && step.SourceOrder < len(stmts) {
			text = truncateLabel(stmts[step.SourceOrder].Text)
		}
		deps := "none"
		if len(step.DependsOn) > 0 {
			deps = stepList(step.DependsOn)
		}
		b.WriteString(fmt.Sprintf("- step %d (%s, depends on %s): `%s`\n", step.ID, step.Kind, deps, text))
	}

	return b.String()
}

func stepList(ids []int) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return strings.Join(parts, ", ")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

// looksLikeCode distinguishes rewrite fragments from prose advice.
func looksLikeCode(s string) bool {
	return strings.Contains(s, "await ") && (strings.Contains(s, ";") || strings.Contains(s, "("))
}
