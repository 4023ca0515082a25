// Package worldmap holds the static landmark map a localization run is
// anchored to. Landmarks are loaded once, validated, and never mutated;
// the filter queries them on every weighting pass.
package worldmap

import (
	"fmt"
	"math"
)

// Landmark is a single fixed feature in the map frame.
type Landmark struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Map is an ordered, immutable collection of landmarks. Iteration order
// is load order, which makes nearest-landmark tie-breaks deterministic.
type Map struct {
	Landmarks []Landmark
}

// Len returns the number of landmarks in the map.
func (m *Map) Len() int {
	return len(m.Landmarks)
}

// ByID returns the landmark with the given id, if present.
func (m *Map) ByID(id int) (Landmark, bool) {
	for _, lm := range m.Landmarks {
		if lm.ID == id {
			return lm, true
		}
	}
	return Landmark{}, false
}

// Bounds returns the bounding box of all landmark positions. An empty
// map returns all zeros.
func (m *Map) Bounds() (minX, minY, maxX, maxY float64) {
	if len(m.Landmarks) == 0 {
		return 0, 0, 0, 0
	}
	minX, maxX = math.Inf(1), math.Inf(-1)
	minY, maxY = math.Inf(1), math.Inf(-1)
	for _, lm := range m.Landmarks {
		minX = math.Min(minX, lm.X)
		maxX = math.Max(maxX, lm.X)
		minY = math.Min(minY, lm.Y)
		maxY = math.Max(maxY, lm.Y)
	}
	return minX, minY, maxX, maxY
}

// Validate checks structural integrity: at least one landmark and no
// duplicate ids. Geometric plausibility is the caller's concern.
func (m *Map) Validate() error {
	if len(m.Landmarks) == 0 {
		return fmt.Errorf("map has no landmarks")
	}
	seen := make(map[int]bool, len(m.Landmarks))
	for i, lm := range m.Landmarks {
		if seen[lm.ID] {
			return fmt.Errorf("duplicate landmark id %d at index %d", lm.ID, i)
		}
		seen[lm.ID] = true
	}
	return nil
}
