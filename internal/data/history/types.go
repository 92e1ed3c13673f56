package history

import "time"

const SchemaVersion = 1

// Snapshot records the outcome of one analysis run so finding counts
// can be tracked over time per project.
type Snapshot struct {
	ProjectKey    string
	AnalysisID    string
	Name          string
	SchemaVersion int
	Timestamp     time.Time

	StatementCount int
	StepCount      int
	FindingCount   int
	ErrorCount     int
	WarnCount      int
	InfoCount      int

	// RuleCounts maps rule id to the number of findings it produced.
	RuleCounts map[string]int
}
