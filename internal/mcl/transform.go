package mcl

import "math"

// TransformToMap converts a vehicle-frame observation into the map
// frame using the given pose: rotation by the heading, then translation
// by the position. Rotation must precede translation; the reverse order
// translates in the wrong frame.
func TransformToMap(obs Observation, x, y, theta float64) Observation {
	sin, cos := math.Sincos(theta)
	return Observation{
		X: x + cos*obs.X - sin*obs.Y,
		Y: y + sin*obs.X + cos*obs.Y,
	}
}

// TransformToVehicle is the inverse of TransformToMap: it converts a
// map-frame point back into the vehicle frame of the given pose.
// Useful for overlaying map features on raw sensor views.
func TransformToVehicle(obs Observation, x, y, theta float64) Observation {
	sin, cos := math.Sincos(theta)
	dx := obs.X - x
	dy := obs.Y - y
	return Observation{
		X: cos*dx + sin*dy,
		Y: -sin*dx + cos*dy,
	}
}
