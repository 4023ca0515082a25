package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/banshee-data/localizer/internal/fsutil"
	"github.com/banshee-data/localizer/internal/timeutil"
)

func writeReplayDataset(t *testing.T, fs *fsutil.MemoryFileSystem, dir string, withTruth bool) {
	t.Helper()

	controls := "2.0 0.0\n1.5 0.1\n1.0 -0.1\n"
	if err := fs.WriteFile(dir+"/control_data.txt", []byte(controls), 0o644); err != nil {
		t.Fatalf("write control data: %v", err)
	}

	if withTruth {
		truth := "0.0 0.0 0.0\n0.2 0.0 0.0\n0.35 0.01 0.01\n"
		if err := fs.WriteFile(dir+"/ground_truth_data.txt", []byte(truth), 0o644); err != nil {
			t.Fatalf("write ground truth: %v", err)
		}
	}

	obs := []string{"5.0 1.0\n-2.0 3.0\n", "4.8 1.1\n", ""}
	for i, content := range obs {
		path := fmt.Sprintf("%s/observation/observations_%06d.txt", dir, i+1)
		if err := fs.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write observations: %v", err)
		}
	}
}

func TestReplayerStepsThroughDataset(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeReplayDataset(t, fs, "data", true)

	r, err := NewReplayer(ReplayerConfig{DataDir: "data", DT: 0.1, FS: fs})
	if err != nil {
		t.Fatalf("NewReplayer failed: %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}

	ctx := context.Background()

	step, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if step.Index != 0 || step.DT != 0.1 {
		t.Errorf("step = index %d dt %v, want 0/0.1", step.Index, step.DT)
	}
	if step.Control.Velocity != 2.0 || step.Control.YawRate != 0.0 {
		t.Errorf("control = %+v, want {2 0}", step.Control)
	}
	if len(step.Observations) != 2 || step.Observations[0].X != 5.0 {
		t.Errorf("observations = %+v", step.Observations)
	}
	if step.GroundTruth == nil || step.GroundTruth.X != 0.0 {
		t.Errorf("ground truth = %+v", step.GroundTruth)
	}

	step, err = r.Next(ctx)
	if err != nil {
		t.Fatalf("second Next failed: %v", err)
	}
	if step.Index != 1 || len(step.Observations) != 1 {
		t.Errorf("second step = %+v", step)
	}

	// Third step has an empty observation file: valid, no detections.
	step, err = r.Next(ctx)
	if err != nil {
		t.Fatalf("third Next failed: %v", err)
	}
	if len(step.Observations) != 0 {
		t.Errorf("third step observations = %+v, want none", step.Observations)
	}

	if _, err := r.Next(ctx); err != io.EOF {
		t.Errorf("Next past end = %v, want io.EOF", err)
	}
}

func TestReplayerWithoutGroundTruth(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeReplayDataset(t, fs, "data", false)

	r, err := NewReplayer(ReplayerConfig{DataDir: "data", DT: 0.1, FS: fs})
	if err != nil {
		t.Fatalf("NewReplayer failed: %v", err)
	}

	step, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if step.GroundTruth != nil {
		t.Errorf("ground truth = %+v, want nil", step.GroundTruth)
	}
}

func TestReplayerPacing(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeReplayDataset(t, fs, "data", false)

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	r, err := NewReplayer(ReplayerConfig{DataDir: "data", DT: 0.1, Speed: 2.0, FS: fs, Clock: clock})
	if err != nil {
		t.Fatalf("NewReplayer failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := r.Next(ctx); err != nil {
			t.Fatalf("Next(%d) failed: %v", i, err)
		}
	}

	// First step is immediate; each later step sleeps dt/speed = 50ms.
	sleeps := clock.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("got %d sleeps, want 2", len(sleeps))
	}
	for i, d := range sleeps {
		if d != 50*time.Millisecond {
			t.Errorf("sleep[%d] = %v, want 50ms", i, d)
		}
	}
}

func TestReplayerUnpacedDoesNotSleep(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeReplayDataset(t, fs, "data", false)

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	r, err := NewReplayer(ReplayerConfig{DataDir: "data", DT: 0.1, Speed: 0, FS: fs, Clock: clock})
	if err != nil {
		t.Fatalf("NewReplayer failed: %v", err)
	}

	ctx := context.Background()
	for {
		if _, err := r.Next(ctx); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}
	if n := len(clock.Sleeps()); n != 0 {
		t.Errorf("unpaced replay slept %d times", n)
	}
}

func TestReplayerCancelled(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeReplayDataset(t, fs, "data", false)

	r, err := NewReplayer(ReplayerConfig{DataDir: "data", DT: 0.1, FS: fs})
	if err != nil {
		t.Fatalf("NewReplayer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestNewReplayerFailsFast(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()

	// Missing dataset entirely.
	if _, err := NewReplayer(ReplayerConfig{DataDir: "nope", DT: 0.1, FS: fs}); err == nil {
		t.Error("NewReplayer on missing dataset succeeded, want error")
	}

	// Control file present, observation file missing.
	fs.WriteFile("data/control_data.txt", []byte("1.0 0.0\n"), 0o644)
	if _, err := NewReplayer(ReplayerConfig{DataDir: "data", DT: 0.1, FS: fs}); err == nil {
		t.Error("NewReplayer with missing observations succeeded, want error")
	}

	// Malformed control line.
	fs.WriteFile("bad/control_data.txt", []byte("1.0 oops\n"), 0o644)
	fs.WriteFile("bad/observation/observations_000001.txt", []byte(""), 0o644)
	if _, err := NewReplayer(ReplayerConfig{DataDir: "bad", DT: 0.1, FS: fs}); err == nil {
		t.Error("NewReplayer with malformed control succeeded, want error")
	}

	// Invalid dt.
	writeReplayDataset(t, fs, "ok", false)
	if _, err := NewReplayer(ReplayerConfig{DataDir: "ok", DT: 0, FS: fs}); err == nil {
		t.Error("NewReplayer with dt=0 succeeded, want error")
	}
}
