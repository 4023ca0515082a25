// Package telemetry supplies per-step control and observation batches
// from interchangeable sources: recorded datasets on disk, a live UDP
// feed, a serial port, or a pcap capture. All sources speak the same
// line protocol (see parse.go) and present steps through Source.
package telemetry

import (
	"context"

	"github.com/banshee-data/localizer/internal/mcl"
	"github.com/banshee-data/localizer/internal/monitoring"
	"github.com/banshee-data/localizer/internal/timeutil"
)

// Control is one step's motion command.
type Control struct {
	Velocity float64 `json:"velocity"`  // m/s
	YawRate  float64 `json:"yaw_rate"`  // rad/s
}

// Step is one filter iteration's worth of input: the control applied
// since the previous step and the landmark observations taken after it.
// GroundTruth is present only for recorded datasets that carry it.
type Step struct {
	Index        int
	DT           float64
	Control      Control
	Observations []mcl.Observation
	GroundTruth  *mcl.Pose
}

// Source produces telemetry steps in order. Next blocks until a step is
// available, the source is exhausted (io.EOF), or ctx is cancelled.
type Source interface {
	Next(ctx context.Context) (*Step, error)
	Close() error
}

// PCAPSourceConfig configures capture replay. Shared between the real
// pcap source and its no-tag stub.
type PCAPSourceConfig struct {
	File    string
	UDPPort int
	DT      float64

	// Speed scales the original capture timing; zero or negative
	// disables pacing.
	Speed float64

	Stats    StatsInterface
	Streams  *monitoring.Streams
	Recorder *Recorder
	Clock    timeutil.Clock
}
