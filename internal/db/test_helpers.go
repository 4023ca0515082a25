package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/localizer/internal/mcl"
	"github.com/banshee-data/localizer/internal/session"
	"github.com/banshee-data/localizer/internal/worldmap"
)

// newTestDB opens a fresh sqlite database in a per-test temp directory
// and applies all migrations.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "localizer_test.db")
	database, err := OpenDB(path)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}
	if err := database.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	return database
}

// createTestRun inserts a running run with fixed parameters.
func createTestRun(t *testing.T, db *DB, id string) *session.RunRecord {
	t.Helper()

	rec := &session.RunRecord{
		ID:            id,
		Source:        "replay",
		MapName:       "test-map",
		ParticleCount: 100,
		Seed:          42,
		StartedAt:     time.Now().UTC().Truncate(time.Millisecond),
		Status:        session.StatusRunning,
	}
	if err := db.CreateRun(rec); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	return rec
}

// testMap is a small valid landmark map.
func testMap() *worldmap.Map {
	return &worldmap.Map{Landmarks: []worldmap.Landmark{
		{ID: 1, X: 5.0, Y: -2.0},
		{ID: 2, X: -3.5, Y: 4.25},
		{ID: 3, X: 0.0, Y: 0.0},
	}}
}

func testEstimate(runID string, step int) *session.StepEstimate {
	return &session.StepEstimate{
		RunID:        runID,
		Step:         step,
		Best:         mcl.Pose{X: 1.5, Y: -0.5, Theta: 0.25},
		MaxWeight:    0.8,
		Truth:        &mcl.Pose{X: 1.4, Y: -0.4, Theta: 0.2},
		ErrorX:       0.1,
		ErrorY:       0.1,
		ErrorTheta:   0.05,
		Associations: "1 2",
		SenseX:       "5.01 -3.45",
		SenseY:       "-2.02 4.30",
	}
}
