package mcl

import "errors"

var (
	// ErrNotInitialized is returned when Predict or UpdateWeights is
	// called before Init has seeded the particle set.
	ErrNotInitialized = errors.New("particle filter not initialized")

	// ErrEmptyMap is returned when data association is attempted
	// against a map with zero landmarks.
	ErrEmptyMap = errors.New("landmark map is empty")

	// ErrInvalidParticleCount is returned when the configured particle
	// count is not positive.
	ErrInvalidParticleCount = errors.New("particle count must be positive")

	// ErrStaleWeights is returned by Resample when UpdateWeights has
	// not run since the previous resample. The wheel depends on a
	// maximum weight computed in the same pass as the weights it walks;
	// a cached maximum from an earlier step can stall or bias it.
	ErrStaleWeights = errors.New("particle weights not refreshed since last resample")
)
