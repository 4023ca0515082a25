package telemetry

import (
	"strings"
	"testing"

	"github.com/banshee-data/localizer/internal/mcl"
)

func TestParseFrameControl(t *testing.T) {
	frame, err := ParseFrame("CTL 1.5 -0.02")
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if frame.Kind != FrameControl {
		t.Fatalf("Kind = %v, want FrameControl", frame.Kind)
	}
	if frame.Control.Velocity != 1.5 || frame.Control.YawRate != -0.02 {
		t.Errorf("Control = %+v, want {1.5 -0.02}", frame.Control)
	}
}

func TestParseFrameObservations(t *testing.T) {
	frame, err := ParseFrame("OBS 1.0 2.0; -3.5 0.25; 0 0")
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if frame.Kind != FrameObservations {
		t.Fatalf("Kind = %v, want FrameObservations", frame.Kind)
	}
	want := []mcl.Observation{{X: 1, Y: 2}, {X: -3.5, Y: 0.25}, {X: 0, Y: 0}}
	if len(frame.Observations) != len(want) {
		t.Fatalf("got %d observations, want %d", len(frame.Observations), len(want))
	}
	for i := range want {
		if frame.Observations[i] != want[i] {
			t.Errorf("obs[%d] = %+v, want %+v", i, frame.Observations[i], want[i])
		}
	}
}

func TestParseFrameEmptyObservations(t *testing.T) {
	// A bare OBS frame means no landmarks detected this step.
	frame, err := ParseFrame("OBS")
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if frame.Kind != FrameObservations || len(frame.Observations) != 0 {
		t.Errorf("frame = %+v, want empty observations", frame)
	}
}

func TestParseFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"unknown tag", "XYZ 1 2"},
		{"empty line", ""},
		{"ctl missing field", "CTL 1.0"},
		{"ctl extra field", "CTL 1.0 2.0 3.0"},
		{"ctl non-numeric", "CTL fast 0.1"},
		{"obs odd fields", "OBS 1.0 2.0; 3.0"},
		{"obs non-numeric", "OBS a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFrame(tt.line); err == nil {
				t.Errorf("ParseFrame(%q) succeeded, want error", tt.line)
			}
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	ctl := Control{Velocity: 110, YawRate: 0.392699}
	frame, err := ParseFrame(FormatControlFrame(ctl))
	if err != nil {
		t.Fatalf("ParseFrame(FormatControlFrame) failed: %v", err)
	}
	if frame.Control != ctl {
		t.Errorf("control round trip = %+v, want %+v", frame.Control, ctl)
	}

	obs := []mcl.Observation{{X: 1.25, Y: -2.5}, {X: 0, Y: 3}}
	line := FormatObservationsFrame(obs)
	if strings.HasSuffix(line, ";") {
		t.Errorf("observation frame has trailing separator: %q", line)
	}
	frame, err = ParseFrame(line)
	if err != nil {
		t.Fatalf("ParseFrame(FormatObservationsFrame) failed: %v", err)
	}
	if len(frame.Observations) != 2 || frame.Observations[0] != obs[0] || frame.Observations[1] != obs[1] {
		t.Errorf("observation round trip = %+v, want %+v", frame.Observations, obs)
	}

	if FormatObservationsFrame(nil) != "OBS" {
		t.Errorf("empty batch = %q, want bare OBS", FormatObservationsFrame(nil))
	}
}

func TestFrameAssembler(t *testing.T) {
	a := newFrameAssembler(0.1, nil, nil, nil)

	if step := a.feed("CTL 2.0 0.1"); step != nil {
		t.Fatalf("step completed after CTL alone: %+v", step)
	}
	step := a.feed("OBS 1.0 2.0")
	if step == nil {
		t.Fatal("no step after CTL+OBS")
	}
	if step.Index != 0 || step.DT != 0.1 {
		t.Errorf("step = %+v, want index 0 dt 0.1", step)
	}
	if step.Control.Velocity != 2.0 || len(step.Observations) != 1 {
		t.Errorf("step contents = %+v", step)
	}

	// Second step increments the index.
	a.feed("CTL 1.0 0.0")
	step = a.feed("OBS")
	if step == nil || step.Index != 1 {
		t.Errorf("second step = %+v, want index 1", step)
	}
}

func TestFrameAssemblerDropsGarbage(t *testing.T) {
	stats := NewFrameStats(nil)
	a := newFrameAssembler(0.1, stats, nil, nil)

	// Orphan OBS, garbage line, then a doubled CTL: all survive.
	if step := a.feed("OBS 1 2"); step != nil {
		t.Errorf("orphan OBS produced a step: %+v", step)
	}
	if step := a.feed("not a frame"); step != nil {
		t.Errorf("garbage produced a step: %+v", step)
	}
	a.feed("CTL 1.0 0.0")
	a.feed("CTL 2.0 0.0")
	step := a.feed("OBS 5 5")
	if step == nil {
		t.Fatal("no step after doubled CTL")
	}
	// The newer control wins.
	if step.Control.Velocity != 2.0 {
		t.Errorf("velocity = %v, want 2.0 (newest CTL)", step.Control.Velocity)
	}

	_, _, malformed, _, _ := stats.GetAndReset()
	if malformed != 3 {
		t.Errorf("malformed count = %d, want 3", malformed)
	}
}
