package telemetry

import (
	"strings"

	"github.com/banshee-data/localizer/internal/monitoring"
)

// frameAssembler pairs protocol frames into steps: a CTL frame opens a
// step, the next OBS frame completes it. Shared by the UDP, serial, and
// pcap sources.
type frameAssembler struct {
	dt      float64
	stats   StatsInterface
	streams *monitoring.Streams
	rec     *Recorder

	pending *Control
	index   int
}

func newFrameAssembler(dt float64, stats StatsInterface, streams *monitoring.Streams, rec *Recorder) *frameAssembler {
	if stats == nil {
		stats = noopStats{}
	}
	return &frameAssembler{dt: dt, stats: stats, streams: streams, rec: rec}
}

// feed consumes one raw protocol line and returns a completed step, or
// nil if more input is needed. Malformed lines are counted and dropped;
// a live feed must survive garbage.
func (a *frameAssembler) feed(line string) *Step {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if a.rec != nil {
		a.rec.RecordLine(line)
	}

	frame, err := ParseFrame(line)
	if err != nil {
		a.stats.AddMalformed()
		a.streams.Diagf("telemetry: dropping malformed frame: %v", err)
		return nil
	}

	switch frame.Kind {
	case FrameControl:
		if a.pending != nil {
			// Two CTLs in a row: the earlier step lost its
			// observations in transit. Keep the newer control.
			a.stats.AddMalformed()
			a.streams.Diagf("telemetry: CTL frame with no matching OBS, dropping earlier control")
		}
		ctl := frame.Control
		a.pending = &ctl
		return nil

	case FrameObservations:
		if a.pending == nil {
			a.stats.AddMalformed()
			a.streams.Diagf("telemetry: OBS frame with no pending CTL, dropping")
			return nil
		}
		step := &Step{
			Index:        a.index,
			DT:           a.dt,
			Control:      *a.pending,
			Observations: frame.Observations,
		}
		a.pending = nil
		a.index++
		a.stats.AddObservations(len(frame.Observations))
		return step
	}
	return nil
}
