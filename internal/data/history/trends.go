package history

import (
	"fmt"
	"math"
	"time"
)

// TrendPoint is one analysis snapshot annotated with deltas against its
// predecessor and a moving average over the report window.
type TrendPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	AnalysisID   string    `json:"analysisId"`
	Name         string    `json:"name,omitempty"`
	FindingCount int       `json:"findingCount"`
	ErrorCount   int       `json:"errorCount"`
	WarnCount    int       `json:"warnCount"`
	StepCount    int       `json:"stepCount"`

	DeltaFindings int     `json:"deltaFindings"`
	DeltaErrors   int     `json:"deltaErrors"`
	AvgFindings   float64 `json:"avgFindings"`
	WindowHours   float64 `json:"windowHours"`
}

type TrendReport struct {
	SchemaVersion int          `json:"schemaVersion"`
	ProjectKey    string       `json:"projectKey"`
	Since         time.Time    `json:"since"`
	Until         time.Time    `json:"until"`
	Window        string       `json:"window"`
	AnalysisCount int          `json:"analysisCount"`
	Direction     string       `json:"direction"`
	Points        []TrendPoint `json:"points"`
}

// BuildTrendReport summarizes how finding counts moved across the given
// snapshots. Direction compares the first and last snapshot.
func BuildTrendReport(projectKey string, snapshots []Snapshot, window time.Duration) (TrendReport, error) {
	if len(snapshots) == 0 {
		return TrendReport{}, fmt.Errorf("no snapshots available")
	}

	points := make([]TrendPoint, 0, len(snapshots))
	for i, current := range snapshots {
		point := TrendPoint{
			Timestamp:    current.Timestamp,
			AnalysisID:   current.AnalysisID,
			Name:         current.Name,
			FindingCount: current.FindingCount,
			ErrorCount:   current.ErrorCount,
			WarnCount:    current.WarnCount,
			StepCount:    current.StepCount,
		}

		if i > 0 {
			prev := snapshots[i-1]
			point.DeltaFindings = current.FindingCount - prev.FindingCount
			point.DeltaErrors = current.ErrorCount - prev.ErrorCount
		}

		point.AvgFindings = round2(movingAverage(snapshots, i, window))
		point.WindowHours = round2(window.Hours())
		points = append(points, point)
	}

	return TrendReport{
		SchemaVersion: SchemaVersion,
		ProjectKey:    projectKey,
		Since:         snapshots[0].Timestamp,
		Until:         snapshots[len(snapshots)-1].Timestamp,
		Window:        window.String(),
		AnalysisCount: len(points),
		Direction:     direction(snapshots),
		Points:        points,
	}, nil
}

func direction(snapshots []Snapshot) string {
	delta := snapshots[len(snapshots)-1].FindingCount - snapshots[0].FindingCount
	switch {
	case delta < 0:
		return "improving"
	case delta > 0:
		return "worsening"
	default:
		return "flat"
	}
}

func movingAverage(snapshots []Snapshot, index int, window time.Duration) float64 {
	if window <= 0 {
		return float64(snapshots[index].FindingCount)
	}

	cutoff := snapshots[index].Timestamp.Add(-window)
	total := 0
	count := 0
	for i := index; i >= 0; i-- {
		if snapshots[i].Timestamp.Before(cutoff) {
			break
		}
		total += snapshots[i].FindingCount
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
