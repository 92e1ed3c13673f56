package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadSnapshots(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	first := Snapshot{
		ProjectKey:     "frontend",
		AnalysisID:     "a-1",
		Name:           "getUser.js",
		Timestamp:      base,
		StatementCount: 5,
		StepCount:      3,
		FindingCount:   2,
		WarnCount:      2,
		RuleCounts:     map[string]int{"SEQ_AWAIT": 1, "NO_ERROR_SCOPE": 1},
	}
	second := Snapshot{
		ProjectKey:   "frontend",
		AnalysisID:   "a-2",
		Name:         "getUser.js",
		Timestamp:    base.Add(time.Hour),
		StepCount:    3,
		FindingCount: 1,
		WarnCount:    1,
	}

	if err := store.SaveSnapshot(first); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := store.SaveSnapshot(second); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	snapshots, err := store.LoadSnapshots("frontend", time.Time{})
	if err != nil {
		t.Fatalf("LoadSnapshots failed: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	if snapshots[0].AnalysisID != "a-1" || snapshots[1].AnalysisID != "a-2" {
		t.Errorf("snapshots out of order: %q, %q", snapshots[0].AnalysisID, snapshots[1].AnalysisID)
	}
	if snapshots[0].RuleCounts["SEQ_AWAIT"] != 1 {
		t.Errorf("rule counts did not round-trip: %v", snapshots[0].RuleCounts)
	}
	if !snapshots[0].Timestamp.Equal(base) {
		t.Errorf("expected timestamp %v, got %v", base, snapshots[0].Timestamp)
	}
}

func TestLoadSnapshotsSince(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		snapshot := Snapshot{
			AnalysisID:   "a-" + string(rune('1'+i)),
			Timestamp:    base.Add(time.Duration(i) * time.Hour),
			FindingCount: i,
		}
		if err := store.SaveSnapshot(snapshot); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
	}

	snapshots, err := store.LoadSnapshots("default", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("LoadSnapshots failed: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots since cutoff, got %d", len(snapshots))
	}
}

func TestSaveSnapshotUpsert(t *testing.T) {
	store := openTestStore(t)

	snapshot := Snapshot{AnalysisID: "a-1", FindingCount: 3}
	if err := store.SaveSnapshot(snapshot); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	snapshot.FindingCount = 1
	if err := store.SaveSnapshot(snapshot); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	snapshots, err := store.LoadSnapshots("default", time.Time{})
	if err != nil {
		t.Fatalf("LoadSnapshots failed: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected upsert to keep 1 row, got %d", len(snapshots))
	}
	if snapshots[0].FindingCount != 1 {
		t.Errorf("expected updated finding count 1, got %d", snapshots[0].FindingCount)
	}
}

func TestSaveSnapshotRequiresAnalysisID(t *testing.T) {
	store := openTestStore(t)
	if err := store.SaveSnapshot(Snapshot{}); err == nil {
		t.Fatal("expected error for missing analysis id")
	}
}

func TestOpenRejectsDirectory(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("expected error for directory path")
	}
}

func TestBuildTrendReport(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snapshots := []Snapshot{
		{AnalysisID: "a-1", Timestamp: base, FindingCount: 4, ErrorCount: 1},
		{AnalysisID: "a-2", Timestamp: base.Add(time.Hour), FindingCount: 2},
		{AnalysisID: "a-3", Timestamp: base.Add(2 * time.Hour), FindingCount: 1},
	}

	report, err := BuildTrendReport("frontend", snapshots, 24*time.Hour)
	if err != nil {
		t.Fatalf("BuildTrendReport failed: %v", err)
	}
	if report.AnalysisCount != 3 {
		t.Errorf("expected 3 analyses, got %d", report.AnalysisCount)
	}
	if report.Direction != "improving" {
		t.Errorf("expected improving direction, got %q", report.Direction)
	}
	if report.Points[1].DeltaFindings != -2 {
		t.Errorf("expected delta -2, got %d", report.Points[1].DeltaFindings)
	}
	if report.Points[2].AvgFindings != round2(7.0/3.0) {
		t.Errorf("unexpected moving average: %v", report.Points[2].AvgFindings)
	}
}

func TestBuildTrendReportEmpty(t *testing.T) {
	if _, err := BuildTrendReport("p", nil, time.Hour); err == nil {
		t.Fatal("expected error for empty snapshots")
	}
}
