package mcl

import (
	"fmt"
	"strconv"
	"strings"
)

// Particle is a single weighted pose hypothesis.
type Particle struct {
	// Identity within the current set. IDs survive resampling (a copy
	// keeps its source particle's ID), so repeated IDs after a
	// resample indicate which hypotheses the wheel concentrated on.
	ID int

	// Pose in the map frame. Theta is radians and is never wrapped
	// into a canonical range; consumers must tolerate unwrapped
	// headings (see Filter.Predict).
	X     float64
	Y     float64
	Theta float64

	// Weight is the unnormalized likelihood of this pose given the
	// most recent observation batch. Always >= 0.
	Weight float64

	// Association debug metadata from the most recent weighting pass:
	// the landmark id each observation was matched to, and the
	// observation's map-frame position under this particle's pose.
	// Presentation only; no effect on filter behavior.
	Associations []int
	SenseX       []float64
	SenseY       []float64
}

// Observation is a single landmark detection in the agent's own
// (vehicle) frame. It carries no identity; identity is assigned by
// data association during weighting.
type Observation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// String renders the particle pose and weight for diagnostic logs.
func (p Particle) String() string {
	return fmt.Sprintf("particle %d: pose=(%.4f, %.4f, %.4f) weight=%.6g", p.ID, p.X, p.Y, p.Theta, p.Weight)
}

// SetAssociations attaches association metadata to the particle: the
// landmark id matched to each observation, and the map-frame
// coordinates the observation transformed to. Slices are stored as
// given; callers must not mutate them afterwards.
func (p *Particle) SetAssociations(ids []int, senseX, senseY []float64) {
	p.Associations = ids
	p.SenseX = senseX
	p.SenseY = senseY
}

// AssociationsString renders the associated landmark ids as a
// space-separated list with no trailing separator.
func (p Particle) AssociationsString() string {
	parts := make([]string, len(p.Associations))
	for i, id := range p.Associations {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, " ")
}

// SenseCoordString renders one map-frame coordinate list ("X" or "Y")
// as a space-separated list with no trailing separator. An unknown
// axis returns the empty string.
func (p Particle) SenseCoordString(axis string) string {
	var coords []float64
	switch axis {
	case "X":
		coords = p.SenseX
	case "Y":
		coords = p.SenseY
	default:
		return ""
	}
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = strconv.FormatFloat(c, 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}
