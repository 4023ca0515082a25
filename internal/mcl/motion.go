package mcl

import "math"

// yawRateEpsilon is the threshold below which a yaw rate is treated as
// zero and the straight-line motion branch is taken. The arc formulas
// divide by the yaw rate and lose precision well before the division
// itself fails.
const yawRateEpsilon = 1e-5

// StepPose advances a pose through the bicycle kinematic model over dt
// seconds with the given linear velocity and yaw rate, without noise.
//
// Near-zero yaw rates take the straight-line branch:
//
//	x' = x + v*cos(theta)*dt
//	y' = y + v*sin(theta)*dt
//
// Otherwise the constant-turn-rate arc:
//
//	x' = x + (v/w)*(sin(theta + w*dt) - sin(theta))
//	y' = y + (v/w)*(cos(theta) - cos(theta + w*dt))
//	theta' = theta + w*dt
//
// The returned heading is not normalized; successive steps accumulate
// unwrapped angles.
func StepPose(x, y, theta, velocity, yawRate, dt float64) (float64, float64, float64) {
	if math.Abs(yawRate) < yawRateEpsilon {
		x += velocity * math.Cos(theta) * dt
		y += velocity * math.Sin(theta) * dt
		return x, y, theta
	}

	headingNext := theta + yawRate*dt
	x += (velocity / yawRate) * (math.Sin(headingNext) - math.Sin(theta))
	y += (velocity / yawRate) * (math.Cos(theta) - math.Cos(headingNext))
	return x, y, headingNext
}
