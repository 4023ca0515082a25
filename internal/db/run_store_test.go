package db

import (
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/localizer/internal/session"
)

// The sqlite store is the production session.RunStore.
var _ session.RunStore = (*DB)(nil)

func TestCreateAndGetRun(t *testing.T) {
	database := newTestDB(t)

	rec := createTestRun(t, database, "run-1")

	got, err := database.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.ID != rec.ID || got.Source != rec.Source || got.MapName != rec.MapName {
		t.Errorf("GetRun = %+v, want %+v", got, rec)
	}
	if got.ParticleCount != 100 || got.Seed != 42 {
		t.Errorf("GetRun params = (%d, %d), want (100, 42)", got.ParticleCount, got.Seed)
	}
	if got.Status != session.StatusRunning {
		t.Errorf("status = %q, want %q", got.Status, session.StatusRunning)
	}
	if !got.StartedAt.Equal(rec.StartedAt) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, rec.StartedAt)
	}
	if got.FinishedAt != nil {
		t.Errorf("finished_at = %v, want nil on running run", got.FinishedAt)
	}
}

func TestGetRunNotFound(t *testing.T) {
	database := newTestDB(t)

	_, err := database.GetRun("no-such-run")
	if err == nil {
		t.Fatal("GetRun on missing run succeeded, want error")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestCreateRunDuplicateID(t *testing.T) {
	database := newTestDB(t)

	createTestRun(t, database, "run-dup")
	rec := &session.RunRecord{
		ID:            "run-dup",
		Source:        "udp",
		ParticleCount: 10,
		StartedAt:     time.Now().UTC(),
	}
	if err := database.CreateRun(rec); err == nil {
		t.Error("duplicate CreateRun succeeded, want error")
	}
}

func TestFinishRun(t *testing.T) {
	database := newTestDB(t)

	rec := createTestRun(t, database, "run-2")
	rec.Status = session.StatusFinished
	rec.Steps = 250
	rec.DegenerateResamples = 1
	rec.ErrorX = 12.5
	rec.ErrorY = 8.75
	rec.ErrorTheta = 0.5
	finished := rec.StartedAt.Add(30 * time.Second)
	rec.FinishedAt = &finished

	if err := database.FinishRun(rec); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err := database.GetRun("run-2")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != session.StatusFinished {
		t.Errorf("status = %q, want %q", got.Status, session.StatusFinished)
	}
	if got.Steps != 250 || got.DegenerateResamples != 1 {
		t.Errorf("steps/degenerate = %d/%d, want 250/1", got.Steps, got.DegenerateResamples)
	}
	if got.ErrorX != 12.5 || got.ErrorY != 8.75 || got.ErrorTheta != 0.5 {
		t.Errorf("errors = (%v, %v, %v), want (12.5, 8.75, 0.5)", got.ErrorX, got.ErrorY, got.ErrorTheta)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("finished_at = %v, want %v", got.FinishedAt, finished)
	}
}

func TestFinishRunNotFound(t *testing.T) {
	database := newTestDB(t)

	rec := &session.RunRecord{ID: "ghost", Status: session.StatusAborted}
	if err := database.FinishRun(rec); err == nil {
		t.Error("FinishRun on missing run succeeded, want error")
	}
}

func TestListRunsOrdering(t *testing.T) {
	database := newTestDB(t)

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		rec := &session.RunRecord{
			ID:            id,
			Source:        "replay",
			ParticleCount: 100,
			StartedAt:     base.Add(time.Duration(i) * time.Second),
		}
		if err := database.CreateRun(rec); err != nil {
			t.Fatalf("CreateRun(%s) failed: %v", id, err)
		}
	}

	runs, err := database.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	// Newest first.
	for i, want := range []string{"run-c", "run-b", "run-a"} {
		if runs[i].ID != want {
			t.Errorf("runs[%d].ID = %q, want %q", i, runs[i].ID, want)
		}
	}

	limited, err := database.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns(2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(ListRuns(2)) = %d, want 2", len(limited))
	}
}

func TestInsertAndGetEstimates(t *testing.T) {
	database := newTestDB(t)

	createTestRun(t, database, "run-est")
	for step := 0; step < 5; step++ {
		est := testEstimate("run-est", step)
		est.Best.X = float64(step)
		if err := database.InsertEstimate(est); err != nil {
			t.Fatalf("InsertEstimate(step %d) failed: %v", step, err)
		}
	}

	ests, err := database.GetEstimates("run-est", 0)
	if err != nil {
		t.Fatalf("GetEstimates failed: %v", err)
	}
	if len(ests) != 5 {
		t.Fatalf("len(estimates) = %d, want 5", len(ests))
	}
	for i, est := range ests {
		if est.Step != i {
			t.Errorf("estimates[%d].Step = %d, want %d", i, est.Step, i)
		}
		if est.Best.X != float64(i) {
			t.Errorf("estimates[%d].Best.X = %v, want %v", i, est.Best.X, float64(i))
		}
	}

	first := ests[0]
	if first.MaxWeight != 0.8 {
		t.Errorf("MaxWeight = %v, want 0.8", first.MaxWeight)
	}
	if first.Truth == nil || first.Truth.X != 1.4 {
		t.Errorf("Truth = %+v, want X=1.4", first.Truth)
	}
	if first.Associations != "1 2" || first.SenseX != "5.01 -3.45" {
		t.Errorf("association metadata = (%q, %q)", first.Associations, first.SenseX)
	}

	limited, err := database.GetEstimates("run-est", 2)
	if err != nil {
		t.Fatalf("GetEstimates(limit 2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(GetEstimates(2)) = %d, want 2", len(limited))
	}
}

func TestInsertEstimateWithoutTruth(t *testing.T) {
	database := newTestDB(t)

	createTestRun(t, database, "run-nt")
	est := testEstimate("run-nt", 0)
	est.Truth = nil
	est.ErrorX, est.ErrorY, est.ErrorTheta = 0, 0, 0
	if err := database.InsertEstimate(est); err != nil {
		t.Fatalf("InsertEstimate failed: %v", err)
	}

	ests, err := database.GetEstimates("run-nt", 0)
	if err != nil {
		t.Fatalf("GetEstimates failed: %v", err)
	}
	if len(ests) != 1 {
		t.Fatalf("len(estimates) = %d, want 1", len(ests))
	}
	if ests[0].Truth != nil {
		t.Errorf("Truth = %+v, want nil", ests[0].Truth)
	}
}

func TestInsertEstimateUnknownRun(t *testing.T) {
	database := newTestDB(t)

	// Foreign key enforcement rejects estimates for runs that were
	// never created.
	est := testEstimate("never-created", 0)
	if err := database.InsertEstimate(est); err == nil {
		t.Error("InsertEstimate for unknown run succeeded, want foreign key error")
	}
}
