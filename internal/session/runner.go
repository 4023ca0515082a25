// Package session drives localization runs: the Runner loops a filter
// over a telemetry source, and the Manager tracks runs and records them
// through the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/localizer/internal/mcl"
	"github.com/banshee-data/localizer/internal/monitoring"
	"github.com/banshee-data/localizer/internal/telemetry"
	"github.com/banshee-data/localizer/internal/worldmap"
)

// Snapshot is a point-in-time view of a run for the API and monitor.
// Copies are cheap except Particles, which is shared read-only.
type Snapshot struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Step   int    `json:"step"`

	Best      mcl.Pose `json:"best"`
	Mean      mcl.Pose `json:"mean"`
	MaxWeight float64  `json:"max_weight"`

	// Last control input applied, in m/s and rad/s.
	Velocity float64 `json:"velocity"`
	YawRate  float64 `json:"yaw_rate"`

	Truth *mcl.Pose `json:"truth,omitempty"`

	// Cumulative absolute error; zero when the source has no truth.
	ErrorX     float64 `json:"error_x"`
	ErrorY     float64 `json:"error_y"`
	ErrorTheta float64 `json:"error_theta"`

	DegenerateResamples int `json:"degenerate_resamples"`

	Particles []mcl.Particle `json:"-"`
}

// RunnerConfig wires one run together.
type RunnerConfig struct {
	Record  *RunRecord
	Filter  *mcl.Filter
	Source  telemetry.Source
	Map     *worldmap.Map
	Initial mcl.Pose

	// Store is optional; a nil store runs without persistence.
	Store   RunStore
	Streams *monitoring.Streams
}

// Runner executes the predict / weight / resample loop for one run.
// Run is single-goroutine; Snapshot may be read concurrently.
type Runner struct {
	rec      *RunRecord
	filter   *mcl.Filter
	source   telemetry.Source
	worldMap *worldmap.Map
	initial  mcl.Pose
	store    RunStore
	streams  *monitoring.Streams

	mu   sync.RWMutex
	snap Snapshot
}

// NewRunner builds a runner. The filter must be freshly constructed;
// the runner initializes it at the start of Run.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{
		rec:      cfg.Record,
		filter:   cfg.Filter,
		source:   cfg.Source,
		worldMap: cfg.Map,
		initial:  cfg.Initial,
		store:    cfg.Store,
		streams:  cfg.Streams,
		snap: Snapshot{
			RunID:  cfg.Record.ID,
			Status: StatusRunning,
		},
	}
}

// Snapshot returns the latest run state.
func (r *Runner) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Run drives the filter until the source is exhausted, the context is
// cancelled, or a stage fails. It returns nil for a completed or
// stopped run; the terminal status lands in the run record either way.
func (r *Runner) Run(ctx context.Context) error {
	if !r.filter.Initialized() {
		if err := r.filter.Init(r.initial); err != nil {
			return r.finish(StatusAborted, fmt.Errorf("filter init failed: %w", err))
		}
	}
	r.streams.Diagf("run %s: %d particles initialized at (%.2f, %.2f, %.3f)",
		r.rec.ID, r.filter.NumParticles(), r.initial.X, r.initial.Y, r.initial.Theta)

	for {
		step, err := r.source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return r.finish(StatusFinished, nil)
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return r.finish(StatusStopped, nil)
			default:
				return r.finish(StatusAborted, fmt.Errorf("telemetry source failed: %w", err))
			}
		}

		if err := r.runStep(step); err != nil {
			return r.finish(StatusAborted, err)
		}
	}
}

// runStep executes one predict / weight / resample cycle and records
// the resulting estimate. Stage precondition errors abort the run; a
// degenerate resample is counted and logged, never escalated.
func (r *Runner) runStep(step *telemetry.Step) error {
	if err := r.filter.Predict(step.DT, step.Control.Velocity, step.Control.YawRate); err != nil {
		return fmt.Errorf("predict at step %d failed: %w", step.Index, err)
	}
	if err := r.filter.UpdateWeights(step.Observations, r.worldMap); err != nil {
		return fmt.Errorf("weighting at step %d failed: %w", step.Index, err)
	}
	degenerate, err := r.filter.Resample()
	if err != nil {
		return fmt.Errorf("resample at step %d failed: %w", step.Index, err)
	}
	if degenerate {
		r.streams.Opsf("run %s: degenerate resample at step %d (all weights zero), uniform fallback",
			r.rec.ID, step.Index)
	}

	best, err := r.filter.Best()
	if err != nil {
		return fmt.Errorf("best particle at step %d failed: %w", step.Index, err)
	}
	mean, err := r.filter.Mean()
	if err != nil {
		return fmt.Errorf("mean pose at step %d failed: %w", step.Index, err)
	}

	est := &StepEstimate{
		RunID:        r.rec.ID,
		Step:         step.Index,
		Best:         mcl.Pose{X: best.X, Y: best.Y, Theta: best.Theta},
		MaxWeight:    r.filter.MaxWeight(),
		Degenerate:   degenerate,
		Truth:        step.GroundTruth,
		Associations: best.AssociationsString(),
		SenseX:       best.SenseCoordString("X"),
		SenseY:       best.SenseCoordString("Y"),
	}
	if step.GroundTruth != nil {
		est.ErrorX = math.Abs(best.X - step.GroundTruth.X)
		est.ErrorY = math.Abs(best.Y - step.GroundTruth.Y)
		est.ErrorTheta = math.Abs(best.Theta - step.GroundTruth.Theta)
	}

	r.rec.Steps = step.Index + 1
	r.rec.DegenerateResamples = r.filter.DegenerateResamples()
	r.rec.ErrorX += est.ErrorX
	r.rec.ErrorY += est.ErrorY
	r.rec.ErrorTheta += est.ErrorTheta

	if r.store != nil {
		if err := r.store.InsertEstimate(est); err != nil {
			// Persistence failure loses history, not the run.
			r.streams.Opsf("run %s: failed to persist estimate for step %d: %v", r.rec.ID, step.Index, err)
		}
	}

	r.mu.Lock()
	r.snap.Step = step.Index
	r.snap.Best = est.Best
	r.snap.Mean = mean
	r.snap.MaxWeight = est.MaxWeight
	r.snap.Velocity = step.Control.Velocity
	r.snap.YawRate = step.Control.YawRate
	r.snap.Truth = step.GroundTruth
	r.snap.ErrorX = r.rec.ErrorX
	r.snap.ErrorY = r.rec.ErrorY
	r.snap.ErrorTheta = r.rec.ErrorTheta
	r.snap.DegenerateResamples = r.rec.DegenerateResamples
	r.snap.Particles = r.filter.Particles()
	r.mu.Unlock()

	r.streams.Tracef("run %s step %d: best=(%.3f, %.3f, %.3f) w=%.4g obs=%d",
		r.rec.ID, step.Index, best.X, best.Y, best.Theta, est.MaxWeight, len(step.Observations))
	if (step.Index+1)%100 == 0 {
		r.streams.Diagf("run %s: %d steps, cumulative error (%.2f, %.2f, %.3f)",
			r.rec.ID, step.Index+1, r.rec.ErrorX, r.rec.ErrorY, r.rec.ErrorTheta)
	}

	return nil
}

// finish stamps the terminal state on the record, persists it, and
// updates the snapshot. The runner's own error (if any) is returned so
// Run's caller sees why the run aborted.
func (r *Runner) finish(status string, cause error) error {
	now := time.Now().UTC()
	r.rec.Status = status
	r.rec.FinishedAt = &now
	if cause != nil {
		r.rec.ErrorMessage = cause.Error()
		r.streams.Opsf("run %s aborted after %d steps: %v", r.rec.ID, r.rec.Steps, cause)
	} else {
		r.streams.Diagf("run %s %s after %d steps, cumulative error (%.2f, %.2f, %.3f)",
			r.rec.ID, status, r.rec.Steps, r.rec.ErrorX, r.rec.ErrorY, r.rec.ErrorTheta)
	}

	if r.store != nil {
		if err := r.store.FinishRun(r.rec); err != nil {
			r.streams.Opsf("run %s: failed to persist final state: %v", r.rec.ID, err)
		}
	}

	r.mu.Lock()
	r.snap.Status = status
	r.mu.Unlock()

	return cause
}
