package mcl

import (
	"fmt"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/localizer/internal/worldmap"
)

// Pose is a position and heading in the map frame. Theta is radians
// and may be outside [0, 2*pi); see Filter.Predict.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Filter is a Monte Carlo localization filter. It owns the particle
// set and a single seeded pseudorandom source, and runs the
// predict / weight / resample cycle synchronously on the caller's
// goroutine. It carries no locking; callers that share snapshots
// across goroutines synchronize on their side.
type Filter struct {
	cfg FilterConfig

	// rng is the filter's only source of randomness. It is seeded once
	// at construction and drawn from by every stage for the filter's
	// lifetime. Recreating the source per call would correlate (often
	// duplicate) the noise across steps within a process tick.
	rng *exprand.Rand

	likelihood *measurementLikelihood

	particles   []Particle
	maxWeight   float64
	initialized bool

	// weightsFresh guards the resampling precondition: the wheel walks
	// weights against a maximum computed in the same UpdateWeights
	// pass. A maximum cached across steps can stall or bias the wheel.
	weightsFresh bool

	degenerateResamples int
}

// NewFilter validates the configuration and constructs a filter with
// its long-lived random source and measurement likelihood. The filter
// is not usable until Init seeds the particle set.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	likelihood, err := newMeasurementLikelihood(cfg.MeasureStdDevs[0], cfg.MeasureStdDevs[1])
	if err != nil {
		return nil, err
	}
	return &Filter{
		cfg:        cfg,
		rng:        exprand.New(exprand.NewSource(cfg.Seed)),
		likelihood: likelihood,
	}, nil
}

// Init seeds the particle set around the given pose estimate. Each
// particle's pose is drawn from three independent 1-D Gaussians, one
// per axis, centered on the estimate with the configured init standard
// deviations; every weight starts at 1. Init must run exactly once,
// before the first Predict.
func (f *Filter) Init(estimate Pose) error {
	if f.initialized {
		return fmt.Errorf("filter already initialized with %d particles", len(f.particles))
	}

	std := f.cfg.InitStdDevs
	xDist := distuv.Normal{Mu: estimate.X, Sigma: std[0], Src: f.rng}
	yDist := distuv.Normal{Mu: estimate.Y, Sigma: std[1], Src: f.rng}
	tDist := distuv.Normal{Mu: estimate.Theta, Sigma: std[2], Src: f.rng}

	f.particles = make([]Particle, f.cfg.NumParticles)
	for i := range f.particles {
		f.particles[i] = Particle{
			ID:     i,
			X:      xDist.Rand(),
			Y:      yDist.Rand(),
			Theta:  tDist.Rand(),
			Weight: 1,
		}
	}
	f.initialized = true
	return nil
}

// Predict advances every particle through the bicycle motion model
// over dt seconds with the given control inputs, then injects process
// noise by re-drawing each stored pose axis around its noiseless
// prediction. Mutation is in place.
//
// Headings are not normalized into a canonical range; repeated turns
// accumulate unwrapped angles and consumers must tolerate that.
func (f *Filter) Predict(dt, velocity, yawRate float64) error {
	if !f.initialized {
		return ErrNotInitialized
	}

	std := f.cfg.ProcessStdDevs
	xNoise := distuv.Normal{Mu: 0, Sigma: std[0], Src: f.rng}
	yNoise := distuv.Normal{Mu: 0, Sigma: std[1], Src: f.rng}
	tNoise := distuv.Normal{Mu: 0, Sigma: std[2], Src: f.rng}

	for i := range f.particles {
		p := &f.particles[i]
		x, y, theta := StepPose(p.X, p.Y, p.Theta, velocity, yawRate, dt)
		p.X = x + xNoise.Rand()
		p.Y = y + yNoise.Rand()
		p.Theta = theta + tNoise.Rand()
	}
	f.weightsFresh = false
	return nil
}

// UpdateWeights recomputes every particle's weight against a fresh
// observation batch. Per particle: the running weight resets to 1,
// each vehicle-frame observation is transformed into the map frame
// under that particle's pose, associated with its nearest landmark,
// and the bivariate Gaussian density of the residual is multiplied in.
// A particle whose weight underflows to 0 stays in the set; the wheel
// simply never selects it.
//
// The maximum weight across the set is recomputed in the same pass,
// satisfying the Resample precondition.
func (f *Filter) UpdateWeights(observations []Observation, m *worldmap.Map) error {
	if !f.initialized {
		return ErrNotInitialized
	}
	if m == nil || m.Len() == 0 {
		return ErrEmptyMap
	}

	f.maxWeight = 0
	for i := range f.particles {
		p := &f.particles[i]

		weight := 1.0
		ids := make([]int, 0, len(observations))
		senseX := make([]float64, 0, len(observations))
		senseY := make([]float64, 0, len(observations))

		for _, obs := range observations {
			mapped := TransformToMap(obs, p.X, p.Y, p.Theta)
			lm := m.Landmarks[nearestLandmarkIndex(mapped.X, mapped.Y, m.Landmarks)]
			weight *= f.likelihood.Density(mapped.X-lm.X, mapped.Y-lm.Y)

			ids = append(ids, lm.ID)
			senseX = append(senseX, mapped.X)
			senseY = append(senseY, mapped.Y)
		}

		p.Weight = weight
		p.SetAssociations(ids, senseX, senseY)
		if weight > f.maxWeight {
			f.maxWeight = weight
		}
	}
	f.weightsFresh = true
	return nil
}

// Resample replaces the particle set with a same-size population drawn
// with replacement, selection probability proportional to weight,
// using the stochastic wheel: a uniform random start index, then per
// draw the accumulator grows by U[0, maxWeight] and the index advances
// circularly while the accumulator exceeds the current weight.
//
// Requires a weight set refreshed by UpdateWeights since the previous
// resample (ErrStaleWeights otherwise). An all-zero weight set cannot
// drive the wheel; it falls back to uniform index draws and reports
// degenerate=true, which is an outcome for the caller to count, not a
// failure.
func (f *Filter) Resample() (degenerate bool, err error) {
	if !f.initialized {
		return false, ErrNotInitialized
	}
	if !f.weightsFresh {
		return false, ErrStaleWeights
	}

	n := len(f.particles)
	next := make([]Particle, 0, n)

	if f.maxWeight <= 0 {
		for i := 0; i < n; i++ {
			next = append(next, f.particles[f.rng.Intn(n)])
		}
		f.particles = next
		f.weightsFresh = false
		f.degenerateResamples++
		return true, nil
	}

	idx := f.rng.Intn(n)
	b := 0.0
	for i := 0; i < n; i++ {
		b += f.rng.Float64() * f.maxWeight
		for b > f.particles[idx].Weight {
			b -= f.particles[idx].Weight
			idx = (idx + 1) % n
		}
		next = append(next, f.particles[idx])
	}
	f.particles = next
	f.weightsFresh = false
	return false, nil
}

// Initialized reports whether Init has seeded the particle set.
func (f *Filter) Initialized() bool { return f.initialized }

// NumParticles returns the fixed size of the particle set.
func (f *Filter) NumParticles() int { return len(f.particles) }

// MaxWeight returns the maximum weight computed by the most recent
// UpdateWeights pass.
func (f *Filter) MaxWeight() float64 { return f.maxWeight }

// DegenerateResamples returns how many resampling passes fell back to
// uniform draws because every weight was zero.
func (f *Filter) DegenerateResamples() int { return f.degenerateResamples }

// Config returns the filter's configuration.
func (f *Filter) Config() FilterConfig { return f.cfg }

// Particles returns a copy of the current particle set for reporting
// and visualization. The copy shares association metadata slices with
// the live set; those are replaced wholesale, never mutated, by the
// next weighting pass.
func (f *Filter) Particles() []Particle {
	out := make([]Particle, len(f.particles))
	copy(out, f.particles)
	return out
}

// Best returns the highest-weight particle. After a weighting pass
// this is the filter's point estimate; ties break toward the particle
// earlier in set order.
func (f *Filter) Best() (Particle, error) {
	if !f.initialized {
		return Particle{}, ErrNotInitialized
	}
	best := f.particles[0]
	for _, p := range f.particles[1:] {
		if p.Weight > best.Weight {
			best = p
		}
	}
	return best, nil
}

// Mean returns the unweighted mean pose of the particle set. Useful as
// a smoother estimate than Best when the posterior is unimodal.
func (f *Filter) Mean() (Pose, error) {
	if !f.initialized {
		return Pose{}, ErrNotInitialized
	}
	var mean Pose
	for _, p := range f.particles {
		mean.X += p.X
		mean.Y += p.Y
		mean.Theta += p.Theta
	}
	n := float64(len(f.particles))
	mean.X /= n
	mean.Y /= n
	mean.Theta /= n
	return mean, nil
}
