package mcl

import "fmt"

// FilterConfig holds the tunable parameters for a localization filter.
// The standard deviation triples are ordered (x, y, heading); the
// measurement pair is (x, y) in the map frame.
type FilterConfig struct {
	NumParticles int // Size of the particle set, fixed for the filter's lifetime

	InitStdDevs    [3]float64 // Initialization noise around the starting pose estimate
	ProcessStdDevs [3]float64 // Process noise injected after each motion prediction
	MeasureStdDevs [2]float64 // Landmark measurement noise for the observation likelihood

	// SensorRange is the nominal sensor reach in meters. The weighting
	// pass does not gate landmarks by range; the value is carried for
	// reporting and for sources that pre-filter observations.
	SensorRange float64

	// Seed for the filter's pseudorandom source. The source is created
	// once and drawn from across all stages for the filter's lifetime,
	// so runs with equal seeds and inputs reproduce exactly.
	Seed uint64
}

// DefaultFilterConfig returns production-default filter parameters,
// sized for a vehicle-scale map with GPS-grade initialization.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		NumParticles:   100,
		InitStdDevs:    [3]float64{0.3, 0.3, 0.01},
		ProcessStdDevs: [3]float64{0.3, 0.3, 0.01},
		MeasureStdDevs: [2]float64{0.3, 0.3},
		SensorRange:    50.0,
		Seed:           1,
	}
}

// Validate checks that the configuration values are usable.
func (c FilterConfig) Validate() error {
	if c.NumParticles <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidParticleCount, c.NumParticles)
	}
	for i, s := range c.InitStdDevs {
		if s < 0 {
			return fmt.Errorf("init std dev %d must be non-negative, got %f", i, s)
		}
	}
	for i, s := range c.ProcessStdDevs {
		if s < 0 {
			return fmt.Errorf("process std dev %d must be non-negative, got %f", i, s)
		}
	}
	for i, s := range c.MeasureStdDevs {
		if s <= 0 {
			return fmt.Errorf("measurement std dev %d must be positive, got %f", i, s)
		}
	}
	if c.SensorRange <= 0 {
		return fmt.Errorf("sensor range must be positive, got %f", c.SensorRange)
	}
	return nil
}
