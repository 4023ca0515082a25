package mcl

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/banshee-data/localizer/internal/worldmap"
)

func newTestFilter(t *testing.T, cfg FilterConfig) *Filter {
	t.Helper()
	f, err := NewFilter(cfg)
	if err != nil {
		t.Fatalf("NewFilter failed: %v", err)
	}
	return f
}

func zeroNoiseConfig(n int) FilterConfig {
	cfg := DefaultFilterConfig()
	cfg.NumParticles = n
	cfg.InitStdDevs = [3]float64{0, 0, 0}
	cfg.ProcessStdDevs = [3]float64{0, 0, 0}
	return cfg
}

func TestNewFilterRejectsBadConfig(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.NumParticles = 0
	if _, err := NewFilter(cfg); !errors.Is(err, ErrInvalidParticleCount) {
		t.Errorf("NewFilter with 0 particles: err = %v, want ErrInvalidParticleCount", err)
	}

	cfg = DefaultFilterConfig()
	cfg.MeasureStdDevs = [2]float64{0, 0.3}
	if _, err := NewFilter(cfg); err == nil {
		t.Error("NewFilter with zero measurement std succeeded, want error")
	}
}

func TestInitSeedsParticleSet(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.NumParticles = 20000
	cfg.InitStdDevs = [3]float64{2, 2, 0.5}
	f := newTestFilter(t, cfg)

	estimate := Pose{X: 100, Y: -50, Theta: 1.2}
	if err := f.Init(estimate); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !f.Initialized() {
		t.Fatal("Initialized() = false after Init")
	}
	if f.NumParticles() != cfg.NumParticles {
		t.Fatalf("NumParticles = %d, want %d", f.NumParticles(), cfg.NumParticles)
	}

	for _, p := range f.Particles() {
		if p.Weight != 1 {
			t.Fatalf("particle %d weight = %v, want 1", p.ID, p.Weight)
		}
	}

	// Mean pose over a large set converges to the estimate. The
	// tolerance reflects stddev/sqrt(N) plus slack.
	mean, err := f.Mean()
	if err != nil {
		t.Fatalf("Mean failed: %v", err)
	}
	if math.Abs(mean.X-estimate.X) > 0.1 || math.Abs(mean.Y-estimate.Y) > 0.1 {
		t.Errorf("mean position (%v, %v) too far from estimate (%v, %v)", mean.X, mean.Y, estimate.X, estimate.Y)
	}
	if math.Abs(mean.Theta-estimate.Theta) > 0.05 {
		t.Errorf("mean theta %v too far from estimate %v", mean.Theta, estimate.Theta)
	}

	if err := f.Init(estimate); err == nil {
		t.Error("second Init succeeded, want error")
	}
}

func TestStagesRequireInit(t *testing.T) {
	f := newTestFilter(t, DefaultFilterConfig())

	if err := f.Predict(0.1, 1, 0); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Predict before Init: err = %v, want ErrNotInitialized", err)
	}
	if err := f.UpdateWeights(nil, testMap()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("UpdateWeights before Init: err = %v, want ErrNotInitialized", err)
	}
	if _, err := f.Resample(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Resample before Init: err = %v, want ErrNotInitialized", err)
	}
	if _, err := f.Best(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Best before Init: err = %v, want ErrNotInitialized", err)
	}
}

func TestPredictZeroNoise(t *testing.T) {
	f := newTestFilter(t, zeroNoiseConfig(3))
	if err := f.Init(Pose{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if err := f.Predict(1, 10, 0); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	for _, p := range f.Particles() {
		if p.X != 10 || p.Y != 0 || p.Theta != 0 {
			t.Fatalf("particle %d = (%v, %v, %v), want (10, 0, 0)", p.ID, p.X, p.Y, p.Theta)
		}
	}

	// A second step through the arc branch.
	if err := f.Predict(1, 10, math.Pi/8); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	wantX, wantY, wantTheta := StepPose(10, 0, 0, 10, math.Pi/8, 1)
	for _, p := range f.Particles() {
		if math.Abs(p.X-wantX) > 1e-12 || math.Abs(p.Y-wantY) > 1e-12 || math.Abs(p.Theta-wantTheta) > 1e-12 {
			t.Fatalf("particle %d = (%v, %v, %v), want (%v, %v, %v)", p.ID, p.X, p.Y, p.Theta, wantX, wantY, wantTheta)
		}
	}
}

func TestPredictNoiseVaries(t *testing.T) {
	cfg := zeroNoiseConfig(50)
	cfg.ProcessStdDevs = [3]float64{0.5, 0.5, 0.1}
	f := newTestFilter(t, cfg)
	if err := f.Init(Pose{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := f.Predict(1, 10, 0); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	// All particles started identical; injected noise must spread them
	// out. Identical positions after a noisy predict would mean the
	// random source was reconstructed or ignored.
	particles := f.Particles()
	distinct := make(map[float64]bool)
	for _, p := range particles {
		distinct[p.X] = true
	}
	if len(distinct) < 45 {
		t.Errorf("only %d distinct x positions across %d particles after noisy predict", len(distinct), len(particles))
	}
}

func TestDeterministicWithSeed(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.NumParticles = 25
	cfg.Seed = 42

	run := func() []Particle {
		f := newTestFilter(t, cfg)
		if err := f.Init(Pose{X: 1, Y: 2, Theta: 0.3}); err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		if err := f.Predict(0.1, 5, 0.2); err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		return f.Particles()
	}

	a, b := run(), run()
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			t.Fatalf("particle %d differs between equally seeded runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestUpdateWeights(t *testing.T) {
	m := &worldmap.Map{Landmarks: []worldmap.Landmark{
		{ID: 1, X: 5, Y: 0},
		{ID: 2, X: 0, Y: 5},
	}}

	cfg := zeroNoiseConfig(2)
	cfg.MeasureStdDevs = [2]float64{0.3, 0.3}
	f := newTestFilter(t, cfg)
	if err := f.Init(Pose{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	// Displace the second particle so its transformed observations miss
	// the landmarks.
	f.particles[1].X = 2
	f.particles[1].Y = -1

	obs := []Observation{{X: 5, Y: 0}, {X: 0, Y: 5}}
	if err := f.UpdateWeights(obs, m); err != nil {
		t.Fatalf("UpdateWeights failed: %v", err)
	}

	// The aligned particle sees both observations exactly on their
	// landmarks: its weight is the squared peak density 1/(2*pi*sx*sy).
	peak := 1 / (2 * math.Pi * 0.3 * 0.3)
	want := peak * peak
	got := f.particles[0].Weight
	if math.Abs(got-want)/want > 1e-9 {
		t.Errorf("aligned particle weight = %v, want %v", got, want)
	}

	// Monotonicity: the displaced particle's weight is strictly lower.
	if f.particles[1].Weight >= got {
		t.Errorf("displaced weight %v not below aligned weight %v", f.particles[1].Weight, got)
	}

	// The cached maximum equals the best weight in the set.
	if f.MaxWeight() != got {
		t.Errorf("MaxWeight = %v, want %v", f.MaxWeight(), got)
	}

	// Association metadata records the matched landmark ids in
	// observation order.
	if s := f.particles[0].AssociationsString(); s != "1 2" {
		t.Errorf("AssociationsString = %q, want \"1 2\"", s)
	}
}

func TestUpdateWeightsEmptyMap(t *testing.T) {
	f := newTestFilter(t, zeroNoiseConfig(2))
	if err := f.Init(Pose{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := f.UpdateWeights(nil, &worldmap.Map{}); !errors.Is(err, ErrEmptyMap) {
		t.Errorf("UpdateWeights on empty map: err = %v, want ErrEmptyMap", err)
	}
}

func TestUpdateWeightsRetainsZeroWeightParticles(t *testing.T) {
	m := &worldmap.Map{Landmarks: []worldmap.Landmark{{ID: 1, X: 0, Y: 0}}}

	cfg := zeroNoiseConfig(3)
	f := newTestFilter(t, cfg)
	if err := f.Init(Pose{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	// Push one particle so far out that its density underflows to 0.
	f.particles[2].X = 1e9

	if err := f.UpdateWeights([]Observation{{X: 0, Y: 0}}, m); err != nil {
		t.Fatalf("UpdateWeights failed: %v", err)
	}
	if f.NumParticles() != 3 {
		t.Fatalf("particle dropped: set size %d, want 3", f.NumParticles())
	}
	if w := f.particles[2].Weight; w != 0 {
		t.Errorf("far particle weight = %v, want exactly 0", w)
	}
}

func TestResampleProportionality(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.NumParticles = 4
	f := newTestFilter(t, cfg)
	if err := f.Init(Pose{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	weights := []float64{0.1, 0.2, 0.3, 0.4}
	counts := make(map[int]int)
	const trials = 5000

	for trial := 0; trial < trials; trial++ {
		for i := range f.particles {
			f.particles[i] = Particle{ID: i, Weight: weights[i]}
		}
		f.maxWeight = 0.4
		f.weightsFresh = true

		degenerate, err := f.Resample()
		if err != nil {
			t.Fatalf("Resample failed: %v", err)
		}
		if degenerate {
			t.Fatal("Resample reported degenerate with positive weights")
		}
		if len(f.particles) != 4 {
			t.Fatalf("set size %d after resample, want 4", len(f.particles))
		}
		for _, p := range f.particles {
			counts[p.ID]++
		}
	}

	// Chi-squared goodness of fit against the weight distribution.
	// 3 degrees of freedom; 16.27 is the 0.999 critical value.
	total := float64(4 * trials)
	chi2 := 0.0
	for i, w := range weights {
		expected := w * total
		diff := float64(counts[i]) - expected
		chi2 += diff * diff / expected
	}
	if chi2 > 16.27 {
		t.Errorf("selection frequencies %v deviate from weights %v (chi2 = %v)", counts, weights, chi2)
	}
}

func TestResampleDegenerateWeights(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.NumParticles = 10
	f := newTestFilter(t, cfg)
	if err := f.Init(Pose{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	for i := range f.particles {
		f.particles[i].Weight = 0
	}
	f.maxWeight = 0
	f.weightsFresh = true

	// Must not hang, must not error, must keep the set size.
	degenerate, err := f.Resample()
	if err != nil {
		t.Fatalf("Resample on all-zero weights failed: %v", err)
	}
	if !degenerate {
		t.Error("Resample did not report the uniform fallback")
	}
	if f.NumParticles() != 10 {
		t.Errorf("set size %d after degenerate resample, want 10", f.NumParticles())
	}
	if f.DegenerateResamples() != 1 {
		t.Errorf("DegenerateResamples = %d, want 1", f.DegenerateResamples())
	}
}

func TestResampleRequiresFreshWeights(t *testing.T) {
	f := newTestFilter(t, zeroNoiseConfig(5))
	if err := f.Init(Pose{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	// No weighting pass has run yet.
	if _, err := f.Resample(); !errors.Is(err, ErrStaleWeights) {
		t.Errorf("Resample before weighting: err = %v, want ErrStaleWeights", err)
	}

	m := &worldmap.Map{Landmarks: []worldmap.Landmark{{ID: 1, X: 0, Y: 0}}}
	if err := f.UpdateWeights([]Observation{{}}, m); err != nil {
		t.Fatalf("UpdateWeights failed: %v", err)
	}
	if _, err := f.Resample(); err != nil {
		t.Fatalf("Resample failed: %v", err)
	}

	// Consumed: a second resample without re-weighting is rejected.
	if _, err := f.Resample(); !errors.Is(err, ErrStaleWeights) {
		t.Errorf("second Resample: err = %v, want ErrStaleWeights", err)
	}

	// Prediction also invalidates the weight set.
	if err := f.UpdateWeights([]Observation{{}}, m); err != nil {
		t.Fatalf("UpdateWeights failed: %v", err)
	}
	if err := f.Predict(0.1, 1, 0); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if _, err := f.Resample(); !errors.Is(err, ErrStaleWeights) {
		t.Errorf("Resample after Predict: err = %v, want ErrStaleWeights", err)
	}
}

func TestSetSizeInvariantAcrossCycles(t *testing.T) {
	m := testMap()
	cfg := DefaultFilterConfig()
	cfg.NumParticles = 60
	f := newTestFilter(t, cfg)
	if err := f.Init(Pose{X: 5, Y: 5}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	obs := []Observation{{X: 1, Y: 0.5}, {X: -2, Y: 3}}
	for cycle := 0; cycle < 25; cycle++ {
		if err := f.Predict(0.1, 2, 0.1); err != nil {
			t.Fatalf("cycle %d Predict failed: %v", cycle, err)
		}
		if err := f.UpdateWeights(obs, m); err != nil {
			t.Fatalf("cycle %d UpdateWeights failed: %v", cycle, err)
		}
		if _, err := f.Resample(); err != nil {
			t.Fatalf("cycle %d Resample failed: %v", cycle, err)
		}
		if f.NumParticles() != cfg.NumParticles {
			t.Fatalf("cycle %d: set size %d, want %d", cycle, f.NumParticles(), cfg.NumParticles)
		}
	}
}

func TestBestTracksTruePose(t *testing.T) {
	// A short convergence run: the agent drives a gentle arc through a
	// landmark field; the best particle should stay near ground truth.
	m := &worldmap.Map{Landmarks: []worldmap.Landmark{
		{ID: 1, X: 5, Y: 5}, {ID: 2, X: 10, Y: -5}, {ID: 3, X: 15, Y: 5},
		{ID: 4, X: 20, Y: -5}, {ID: 5, X: 25, Y: 5}, {ID: 6, X: 30, Y: 0},
	}}

	cfg := DefaultFilterConfig()
	cfg.NumParticles = 200
	cfg.Seed = 7
	f := newTestFilter(t, cfg)

	truth := Pose{}
	if err := f.Init(truth); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	const dt, velocity, yawRate = 0.1, 5.0, 0.05
	for step := 0; step < 40; step++ {
		truth.X, truth.Y, truth.Theta = StepPose(truth.X, truth.Y, truth.Theta, velocity, yawRate, dt)

		// Noiseless observations of every landmark from the true pose.
		var obs []Observation
		for _, lm := range m.Landmarks {
			obs = append(obs, TransformToVehicle(Observation{X: lm.X, Y: lm.Y}, truth.X, truth.Y, truth.Theta))
		}

		if err := f.Predict(dt, velocity, yawRate); err != nil {
			t.Fatalf("step %d Predict failed: %v", step, err)
		}
		if err := f.UpdateWeights(obs, m); err != nil {
			t.Fatalf("step %d UpdateWeights failed: %v", step, err)
		}
		if _, err := f.Resample(); err != nil {
			t.Fatalf("step %d Resample failed: %v", step, err)
		}
	}

	best, err := f.Best()
	if err != nil {
		t.Fatalf("Best failed: %v", err)
	}
	if math.Hypot(best.X-truth.X, best.Y-truth.Y) > 1.0 {
		t.Errorf("best particle (%v, %v) drifted from truth (%v, %v)", best.X, best.Y, truth.X, truth.Y)
	}
}
