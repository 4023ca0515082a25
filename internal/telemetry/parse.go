package telemetry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/localizer/internal/mcl"
)

// Live feeds and session logs are line oriented:
//
//	CTL <velocity> <yaw_rate>
//	OBS <x> <y>; <x> <y>; ...
//
// A step is a CTL frame followed by an OBS frame. OBS with no
// coordinates is valid and means "no landmarks detected this step".

// FrameKind discriminates parsed protocol frames.
type FrameKind int

const (
	FrameControl FrameKind = iota
	FrameObservations
)

// Frame is one parsed protocol line.
type Frame struct {
	Kind         FrameKind
	Control      Control
	Observations []mcl.Observation
}

// ParseFrame parses one protocol line. Unknown tags and malformed
// payloads are errors; blank lines are the caller's concern.
func ParseFrame(line string) (*Frame, error) {
	line = strings.TrimSpace(line)
	tag, rest, _ := strings.Cut(line, " ")

	switch tag {
	case "CTL":
		ctl, err := parseControl(rest)
		if err != nil {
			return nil, fmt.Errorf("bad CTL frame %q: %w", line, err)
		}
		return &Frame{Kind: FrameControl, Control: ctl}, nil

	case "OBS":
		obs, err := parseObservations(rest)
		if err != nil {
			return nil, fmt.Errorf("bad OBS frame %q: %w", line, err)
		}
		return &Frame{Kind: FrameObservations, Observations: obs}, nil

	default:
		return nil, fmt.Errorf("unknown frame tag %q", tag)
	}
}

func parseControl(s string) (Control, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Control{}, fmt.Errorf("want 2 fields, got %d", len(fields))
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Control{}, fmt.Errorf("bad velocity: %w", err)
	}
	w, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Control{}, fmt.Errorf("bad yaw rate: %w", err)
	}
	return Control{Velocity: v, YawRate: w}, nil
}

func parseObservations(s string) ([]mcl.Observation, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ";")
	obs := make([]mcl.Observation, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Fields(part)
		if len(fields) != 2 {
			return nil, fmt.Errorf("observation %q: want 2 fields, got %d", part, len(fields))
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("observation %q: bad x: %w", part, err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("observation %q: bad y: %w", part, err)
		}
		obs = append(obs, mcl.Observation{X: x, Y: y})
	}
	return obs, nil
}

// FormatControlFrame renders a CTL protocol line without the trailing
// newline.
func FormatControlFrame(ctl Control) string {
	return fmt.Sprintf("CTL %s %s",
		strconv.FormatFloat(ctl.Velocity, 'f', -1, 64),
		strconv.FormatFloat(ctl.YawRate, 'f', -1, 64))
}

// FormatObservationsFrame renders an OBS protocol line without the
// trailing newline. An empty batch renders as a bare "OBS".
func FormatObservationsFrame(obs []mcl.Observation) string {
	if len(obs) == 0 {
		return "OBS"
	}
	parts := make([]string, len(obs))
	for i, o := range obs {
		parts[i] = fmt.Sprintf("%s %s",
			strconv.FormatFloat(o.X, 'f', -1, 64),
			strconv.FormatFloat(o.Y, 'f', -1, 64))
	}
	return "OBS " + strings.Join(parts, "; ")
}

// parseFloats parses a whitespace-separated line of exactly n floats.
// Shared by the dataset file readers in replay.go.
func parseFloats(line string, n int) ([]float64, error) {
	fields := strings.Fields(line)
	if len(fields) != n {
		return nil, fmt.Errorf("want %d fields, got %d", n, len(fields))
	}
	vals := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	return vals, nil
}
