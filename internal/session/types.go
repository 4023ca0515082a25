package session

import (
	"time"

	"github.com/banshee-data/localizer/internal/mcl"
)

// Run status values recorded by the store.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusAborted  = "aborted"
	StatusStopped  = "stopped"
)

// RunRecord describes one localization run for persistence and the API.
type RunRecord struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	MapName       string     `json:"map_name"`
	ParticleCount int        `json:"particle_count"`
	Seed          uint64     `json:"seed"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Status        string     `json:"status"`
	Steps         int        `json:"steps"`

	// DegenerateResamples counts the uniform-fallback resamples the
	// run hit; a nonzero value usually means the filter diverged.
	DegenerateResamples int `json:"degenerate_resamples"`

	// Cumulative absolute error against ground truth, when the source
	// provides it.
	ErrorX     float64 `json:"error_x"`
	ErrorY     float64 `json:"error_y"`
	ErrorTheta float64 `json:"error_theta"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// StepEstimate is the per-step output of a run: the best particle, its
// association metadata, and the error against ground truth if known.
type StepEstimate struct {
	RunID string `json:"run_id"`
	Step  int    `json:"step"`

	Best       mcl.Pose `json:"best"`
	MaxWeight  float64  `json:"max_weight"`
	Degenerate bool     `json:"degenerate"`

	Truth *mcl.Pose `json:"truth,omitempty"`

	// Absolute per-axis error for this step; zero when Truth is nil.
	ErrorX     float64 `json:"error_x"`
	ErrorY     float64 `json:"error_y"`
	ErrorTheta float64 `json:"error_theta"`

	// Best particle association metadata, space-separated (see
	// mcl.Particle accessors), for postmortem debugging.
	Associations string `json:"associations,omitempty"`
	SenseX       string `json:"sense_x,omitempty"`
	SenseY       string `json:"sense_y,omitempty"`
}

// RunStore persists runs and their per-step estimates. Implemented by
// the sqlite store in internal/db; tests use in-memory fakes.
type RunStore interface {
	CreateRun(rec *RunRecord) error
	FinishRun(rec *RunRecord) error
	InsertEstimate(est *StepEstimate) error
	GetRun(id string) (*RunRecord, error)
	ListRuns(limit int) ([]*RunRecord, error)
	GetEstimates(runID string, limit int) ([]*StepEstimate, error)
}
