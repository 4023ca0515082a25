package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/localizer/internal/mcl"
	"github.com/banshee-data/localizer/internal/monitoring"
	"github.com/banshee-data/localizer/internal/telemetry"
	"github.com/banshee-data/localizer/internal/worldmap"
)

// StartConfig describes one run the manager should launch.
type StartConfig struct {
	FilterConfig mcl.FilterConfig
	Source       telemetry.Source
	SourceName   string
	Map          *worldmap.Map
	MapName      string
	Initial      mcl.Pose
}

// Manager launches, tracks, and stops localization runs. One run is
// active at a time; the filter owns a single RNG and the telemetry
// sources are not shareable.
type Manager struct {
	store   RunStore
	streams *monitoring.Streams

	mu     sync.Mutex
	active *activeRun
}

type activeRun struct {
	id     string
	runner *Runner
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager recording runs through store. A nil
// store disables persistence.
func NewManager(store RunStore, streams *monitoring.Streams) *Manager {
	return &Manager{store: store, streams: streams}
}

// StartRun creates the run record and launches the runner on its own
// goroutine. Returns the new run's id. Fails if a run is already
// active.
func (m *Manager) StartRun(ctx context.Context, cfg StartConfig) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		select {
		case <-m.active.done:
			m.active = nil
		default:
			return "", fmt.Errorf("run %s is still active", m.active.id)
		}
	}

	filter, err := mcl.NewFilter(cfg.FilterConfig)
	if err != nil {
		return "", fmt.Errorf("failed to build filter: %w", err)
	}

	rec := &RunRecord{
		ID:            uuid.NewString(),
		Source:        cfg.SourceName,
		MapName:       cfg.MapName,
		ParticleCount: cfg.FilterConfig.NumParticles,
		Seed:          cfg.FilterConfig.Seed,
		StartedAt:     time.Now().UTC(),
		Status:        StatusRunning,
	}
	if m.store != nil {
		if err := m.store.CreateRun(rec); err != nil {
			return "", fmt.Errorf("failed to record run: %w", err)
		}
	}

	runner := NewRunner(RunnerConfig{
		Record:  rec,
		Filter:  filter,
		Source:  cfg.Source,
		Map:     cfg.Map,
		Initial: cfg.Initial,
		Store:   m.store,
		Streams: m.streams,
	})

	runCtx, cancel := context.WithCancel(ctx)
	run := &activeRun{
		id:     rec.ID,
		runner: runner,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.active = run

	m.streams.Opsf("run %s starting: source=%s map=%s particles=%d seed=%d",
		rec.ID, rec.Source, rec.MapName, rec.ParticleCount, rec.Seed)

	go func() {
		defer close(run.done)
		defer cancel()
		defer cfg.Source.Close()
		runner.Run(runCtx)
	}()

	return rec.ID, nil
}

// StopRun cancels the active run and waits for it to wind down. It is
// an error to stop a run that is not active.
func (m *Manager) StopRun(id string) error {
	m.mu.Lock()
	run := m.active
	m.mu.Unlock()

	if run == nil || run.id != id {
		return fmt.Errorf("run %s is not active", id)
	}

	run.cancel()
	<-run.done

	m.mu.Lock()
	if m.active == run {
		m.active = nil
	}
	m.mu.Unlock()
	return nil
}

// ActiveSnapshot returns the live snapshot of the active run, if any.
func (m *Manager) ActiveSnapshot() (Snapshot, bool) {
	m.mu.Lock()
	run := m.active
	m.mu.Unlock()

	if run == nil {
		return Snapshot{}, false
	}
	select {
	case <-run.done:
		// Finished but not yet replaced; its last snapshot is still
		// the most recent state.
		return run.runner.Snapshot(), true
	default:
		return run.runner.Snapshot(), true
	}
}

// GetRun returns the stored record for a run.
func (m *Manager) GetRun(id string) (*RunRecord, error) {
	if m.store == nil {
		return nil, fmt.Errorf("no run store configured")
	}
	return m.store.GetRun(id)
}

// ListRuns returns recent stored runs.
func (m *Manager) ListRuns(limit int) ([]*RunRecord, error) {
	if m.store == nil {
		return nil, fmt.Errorf("no run store configured")
	}
	return m.store.ListRuns(limit)
}

// GetEstimates returns stored per-step estimates for a run.
func (m *Manager) GetEstimates(id string, limit int) ([]*StepEstimate, error) {
	if m.store == nil {
		return nil, fmt.Errorf("no run store configured")
	}
	return m.store.GetEstimates(id, limit)
}

// Wait blocks until the active run (if any) completes. Used by the
// one-shot CLI path where the process should exit with the run.
func (m *Manager) Wait() {
	m.mu.Lock()
	run := m.active
	m.mu.Unlock()

	if run != nil {
		<-run.done
	}
}
