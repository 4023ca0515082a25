package mcl

import (
	"github.com/banshee-data/localizer/internal/worldmap"
)

// NearestLandmark returns the map landmark closest in Euclidean
// distance to a map-frame observation. Ties break toward the landmark
// earlier in map order; deterministic but otherwise arbitrary.
// Cost is O(L) in the landmark count. Fails with ErrEmptyMap when the
// map has no landmarks.
func NearestLandmark(obs Observation, m *worldmap.Map) (worldmap.Landmark, error) {
	if m == nil || len(m.Landmarks) == 0 {
		return worldmap.Landmark{}, ErrEmptyMap
	}
	return m.Landmarks[nearestLandmarkIndex(obs.X, obs.Y, m.Landmarks)], nil
}

// nearestLandmarkIndex scans for the minimum squared distance. Squared
// distances preserve the argmin and avoid N*M*L square roots in the
// weighting pass. Callers guarantee landmarks is non-empty.
func nearestLandmarkIndex(x, y float64, landmarks []worldmap.Landmark) int {
	best := 0
	bestDist := squaredDistance(x, y, landmarks[0].X, landmarks[0].Y)
	for i := 1; i < len(landmarks); i++ {
		d := squaredDistance(x, y, landmarks[i].X, landmarks[i].Y)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func squaredDistance(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return dx*dx + dy*dy
}
