package formats

import (
	"encoding/json"
	"strings"

	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/flow"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/normalizer"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/engine/rules"
	"github.com/E174-nakamura/MakeYourCodeReviewableAgain/internal/shared/version"
)

// SARIF v2.1.0 schema – see https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json

const (
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
	sarifVersion = "2.1.0"
)

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	ShortDescription sarifMessage           `json:"shortDescription"`
	DefaultConfig    sarifRuleDefaultConfig `json:"defaultConfiguration"`
}

type sarifRuleDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
}

var ruleDescriptions = map[string]string{
	rules.RuleSeqAwait:     "Independent awaits run sequentially; they could be batched with Promise.all.",
	rules.RuleMissingAwait: "A promise-returning call is consumed without await.",
	rules.RuleNoErrorScope: "Async work runs without a try/catch or .catch handler.",
	rules.RuleMixedStyle:   "The function mixes async/await with .then() chains.",
	rules.RulePromiseHell:  "A long .then() chain could be flattened with await.",
	rules.RuleLoopSeqAwait: "A loop awaits every iteration although iterations are independent.",
}

// GenerateSARIF builds a SARIF v2.1.0 document from analysis findings.
// The snippet name is used as a synthetic artifact URI; no absolute
// paths are ever included so reports are safe to share.
func GenerateSARIF(name string, findings []rules.Finding, g *flow.Graph, stmts []normalizer.Statement) ([]byte, error) {
	if strings.TrimSpace(name) == "" {
		name = "snippet.js"
	}

	results := make([]sarifResult, 0, len(findings))
	for _, f := range findings {
		result := sarifResult{
			RuleID:  f.RuleID,
			Level:   severityToLevel(f.Severity),
			Message: sarifMessage{Text: f.Message},
		}
		if loc, ok := findingLocation(name, f, g, stmts); ok {
			result.Locations = []sarifLocation{loc}
		}
		results = append(results, result)
	}

	report := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:    "reviewable",
						Version: version.Version,
						Rules:   buildSARIFRules(findings),
					},
				},
				Results: results,
			},
		},
	}

	return json.MarshalIndent(report, "", "  ")
}

// buildSARIFRules returns only the rules present in the findings, in
// rule table order.
func buildSARIFRules(findings []rules.Finding) []sarifRule {
	present := make(map[string]rules.Severity, len(findings))
	for _, f := range findings {
		present[f.RuleID] = f.Severity
	}

	out := make([]sarifRule, 0, len(present))
	for _, id := range rules.RuleIDs() {
		severity, ok := present[id]
		if !ok {
			continue
		}
		out = append(out, sarifRule{
			ID:               id,
			Name:             ruleName(id),
			ShortDescription: sarifMessage{Text: ruleDescriptions[id]},
			DefaultConfig:    sarifRuleDefaultConfig{Level: severityToLevel(severity)},
		})
	}
	return out
}

// findingLocation points at the first involved statement's span.
func findingLocation(name string, f rules.Finding, g *flow.Graph, stmts []normalizer.Statement) (sarifLocation, bool) {
	order := -1
	if len(f.StepIDs) > 0 {
		if step, ok := g.Step(f.StepIDs[0]); ok {
			order = step.SourceOrder
		}
	}
	if order < 0 && len(f.StatementIDs) > 0 {
		order = f.StatementIDs[0]
	}
	if order < 0 || order >= len(stmts) {
		return sarifLocation{}, false
	}

	span := stmts[order].Span
	return sarifLocation{
		PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{
				URI:       name,
				URIBaseID: "%SRCROOT%",
			},
			Region: &sarifRegion{
				StartLine:   span.StartLine,
				StartColumn: span.StartCol,
			},
		},
	}, true
}

// ruleName converts SEQ_AWAIT style ids into SARIF-friendly PascalCase.
func ruleName(id string) string {
	parts := strings.Split(strings.ToLower(id), "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, "")
}

func severityToLevel(severity rules.Severity) string {
	switch severity {
	case rules.SeverityError:
		return "error"
	case rules.SeverityWarn:
		return "warning"
	default:
		return "note"
	}
}
