package telemetry

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/banshee-data/localizer/internal/fsutil"
)

// Recorder appends received protocol lines to a session log so a live
// feed can be replayed later. The log itself is in the line protocol,
// so any source can be pointed back at it.
type Recorder struct {
	mu sync.Mutex
	w  io.WriteCloser

	lines int
}

// NewRecorder creates the session log at dir/name, creating dir if
// needed.
func NewRecorder(fs fsutil.FileSystem, dir, name string) (*Recorder, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session log directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, name)
	w, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create session log %s: %w", path, err)
	}

	return &Recorder{w: w}, nil
}

// RecordLine appends one raw protocol line. Write failures are
// returned but a nil Recorder is safe to call.
func (r *Recorder) RecordLine(line string) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := io.WriteString(r.w, line+"\n"); err != nil {
		return fmt.Errorf("failed to write session log: %w", err)
	}
	r.lines++
	return nil
}

// RecordStep appends a step as its CTL and OBS protocol lines. Used by
// sources that do not receive raw lines, like the dataset replayer.
func (r *Recorder) RecordStep(step *Step) error {
	if r == nil {
		return nil
	}
	if err := r.RecordLine(FormatControlFrame(step.Control)); err != nil {
		return err
	}
	return r.RecordLine(FormatObservationsFrame(step.Observations))
}

// Lines returns the number of lines recorded so far.
func (r *Recorder) Lines() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines
}

// Close flushes and closes the session log.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Close()
}
