package telemetry

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/localizer/internal/fsutil"
	"github.com/banshee-data/localizer/internal/mcl"
	"github.com/banshee-data/localizer/internal/timeutil"
)

// Dataset layout under the data directory:
//
//	control_data.txt                   one "velocity yaw_rate" line per step
//	ground_truth_data.txt              one "x y heading" line per step (optional)
//	observation/observations_NNNNNN.txt  one "x y" line per detection,
//	                                     numbered from 000001
//
// Step i pairs control line i with observation file i+1 and ground
// truth line i.

// ReplayerConfig configures a dataset replay.
type ReplayerConfig struct {
	DataDir string

	// DT is the timestep the dataset was recorded at, in seconds.
	DT float64

	// Speed is the pacing multiplier: 1.0 replays in real time, 2.0 at
	// double speed. Zero or negative disables pacing entirely.
	Speed float64

	// FS and Clock default to the real filesystem and clock.
	FS    fsutil.FileSystem
	Clock timeutil.Clock
}

// Replayer replays a recorded dataset as a telemetry Source.
type Replayer struct {
	dt    float64
	speed float64
	clock timeutil.Clock

	controls []Control
	truth    []mcl.Pose // empty when the dataset has no ground truth
	obs      [][]mcl.Observation

	next int
}

// NewReplayer loads the dataset eagerly and fails fast on layout or
// parse problems rather than partway through a run.
func NewReplayer(cfg ReplayerConfig) (*Replayer, error) {
	fs := cfg.FS
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.DT <= 0 {
		return nil, fmt.Errorf("replay dt must be positive, got %v", cfg.DT)
	}

	r := &Replayer{dt: cfg.DT, speed: cfg.Speed, clock: clock}

	controls, err := readLines(fs, filepath.Join(cfg.DataDir, "control_data.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to read control data: %w", err)
	}
	for i, line := range controls {
		vals, err := parseFloats(line, 2)
		if err != nil {
			return nil, fmt.Errorf("control line %d: %w", i+1, err)
		}
		r.controls = append(r.controls, Control{Velocity: vals[0], YawRate: vals[1]})
	}
	if len(r.controls) == 0 {
		return nil, fmt.Errorf("control data in %s is empty", cfg.DataDir)
	}

	truthPath := filepath.Join(cfg.DataDir, "ground_truth_data.txt")
	if fs.Exists(truthPath) {
		lines, err := readLines(fs, truthPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read ground truth: %w", err)
		}
		for i, line := range lines {
			vals, err := parseFloats(line, 3)
			if err != nil {
				return nil, fmt.Errorf("ground truth line %d: %w", i+1, err)
			}
			r.truth = append(r.truth, mcl.Pose{X: vals[0], Y: vals[1], Theta: vals[2]})
		}
		if len(r.truth) < len(r.controls) {
			return nil, fmt.Errorf("ground truth has %d lines for %d control steps", len(r.truth), len(r.controls))
		}
	}

	for i := range r.controls {
		path := filepath.Join(cfg.DataDir, "observation", fmt.Sprintf("observations_%06d.txt", i+1))
		lines, err := readLines(fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		var obs []mcl.Observation
		for j, line := range lines {
			vals, err := parseFloats(line, 2)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", path, j+1, err)
			}
			obs = append(obs, mcl.Observation{X: vals[0], Y: vals[1]})
		}
		r.obs = append(r.obs, obs)
	}

	return r, nil
}

// Len returns the total number of steps in the dataset.
func (r *Replayer) Len() int { return len(r.controls) }

// Next returns the next step, pacing by dt/speed. Returns io.EOF once
// the dataset is exhausted.
func (r *Replayer) Next(ctx context.Context) (*Step, error) {
	if r.next >= len(r.controls) {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Pace every step after the first.
	if r.next > 0 && r.speed > 0 {
		delay := time.Duration(float64(time.Second) * r.dt / r.speed)
		r.clock.Sleep(delay)
	}

	i := r.next
	r.next++

	step := &Step{
		Index:        i,
		DT:           r.dt,
		Control:      r.controls[i],
		Observations: r.obs[i],
	}
	if len(r.truth) > i {
		truth := r.truth[i]
		step.GroundTruth = &truth
	}
	return step, nil
}

// Close is a no-op; the dataset is fully loaded at construction.
func (r *Replayer) Close() error { return nil }

func readLines(fs fsutil.FileSystem, path string) ([]string, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}
