package mcl

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// measurementLikelihood evaluates the bivariate Gaussian density of a
// map-frame measurement residual. The covariance is axis-aligned
// (independent x and y standard deviations, no correlation term), so a
// single zero-mean distribution built at construction serves every
// landmark: the density is evaluated at the observation-minus-landmark
// offset instead of recentering per landmark.
type measurementLikelihood struct {
	dist *distmv.Normal
}

func newMeasurementLikelihood(stdX, stdY float64) (*measurementLikelihood, error) {
	sigma := mat.NewSymDense(2, []float64{
		stdX * stdX, 0,
		0, stdY * stdY,
	})
	dist, ok := distmv.NewNormal([]float64{0, 0}, sigma, nil)
	if !ok {
		return nil, fmt.Errorf("measurement covariance is not positive definite (std x=%f y=%f)", stdX, stdY)
	}
	return &measurementLikelihood{dist: dist}, nil
}

// Density returns the probability density at the residual (dx, dy).
func (l *measurementLikelihood) Density(dx, dy float64) float64 {
	return l.dist.Prob([]float64{dx, dy})
}
