package main

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/localizer/internal/fsutil"
	"github.com/banshee-data/localizer/internal/mcl"
	"github.com/banshee-data/localizer/internal/telemetry"
	"github.com/banshee-data/localizer/internal/worldmap"
)

// CourseConfig describes a synthetic course to generate. The same seed
// always produces the same course.
type CourseConfig struct {
	Steps     int
	DT        float64
	Seed      uint64
	Landmarks int

	// FieldSize is the side length of the square the landmarks are
	// scattered over, centered on the origin.
	FieldSize float64

	SensorRange float64
	Velocity    float64

	// YawAmplitude and YawPeriod shape the sinusoidal yaw-rate profile
	// so the trajectory weaves instead of running straight.
	YawAmplitude float64
	YawPeriod    int

	// ObsNoise is the (x, y) standard deviation added to each
	// vehicle-frame observation.
	ObsNoise [2]float64
}

// Validate rejects configs that would generate a degenerate course.
func (c CourseConfig) Validate() error {
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", c.Steps)
	}
	if c.DT <= 0 {
		return fmt.Errorf("dt must be positive, got %f", c.DT)
	}
	if c.Landmarks <= 0 {
		return fmt.Errorf("landmarks must be positive, got %d", c.Landmarks)
	}
	if c.FieldSize <= 0 {
		return fmt.Errorf("field size must be positive, got %f", c.FieldSize)
	}
	if c.SensorRange <= 0 {
		return fmt.Errorf("sensor range must be positive, got %f", c.SensorRange)
	}
	if c.YawPeriod <= 0 {
		return fmt.Errorf("yaw period must be positive, got %d", c.YawPeriod)
	}
	return nil
}

// Course is a generated dataset: a landmark map plus the per-step
// controls, ground truth, and noisy observations of a drive through it.
type Course struct {
	Map          *worldmap.Map
	Controls     []telemetry.Control
	Truth        []mcl.Pose
	Observations [][]mcl.Observation
}

// GenerateCourse builds the map, drives the bicycle model through it,
// and senses the landmarks with Gaussian noise.
func GenerateCourse(cfg CourseConfig) (*Course, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := exprand.New(exprand.NewSource(cfg.Seed))
	noiseX := distuv.Normal{Mu: 0, Sigma: cfg.ObsNoise[0], Src: rng}
	noiseY := distuv.Normal{Mu: 0, Sigma: cfg.ObsNoise[1], Src: rng}

	course := &Course{Map: &worldmap.Map{}}
	for i := 0; i < cfg.Landmarks; i++ {
		course.Map.Landmarks = append(course.Map.Landmarks, worldmap.Landmark{
			ID: i + 1,
			X:  (rng.Float64() - 0.5) * cfg.FieldSize,
			Y:  (rng.Float64() - 0.5) * cfg.FieldSize,
		})
	}

	x, y, theta := 0.0, 0.0, 0.0
	for i := 0; i < cfg.Steps; i++ {
		yawRate := cfg.YawAmplitude * math.Sin(2*math.Pi*float64(i)/float64(cfg.YawPeriod))
		x, y, theta = mcl.StepPose(x, y, theta, cfg.Velocity, yawRate, cfg.DT)

		course.Controls = append(course.Controls, telemetry.Control{Velocity: cfg.Velocity, YawRate: yawRate})
		course.Truth = append(course.Truth, mcl.Pose{X: x, Y: y, Theta: theta})

		var obs []mcl.Observation
		for _, lm := range course.Map.Landmarks {
			if math.Hypot(lm.X-x, lm.Y-y) > cfg.SensorRange {
				continue
			}
			seen := mcl.TransformToVehicle(mcl.Observation{X: lm.X, Y: lm.Y}, x, y, theta)
			if cfg.ObsNoise[0] > 0 {
				seen.X += noiseX.Rand()
			}
			if cfg.ObsNoise[1] > 0 {
				seen.Y += noiseY.Rand()
			}
			obs = append(obs, seen)
		}
		course.Observations = append(course.Observations, obs)
	}

	return course, nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCourse writes the replay dataset layout plus map.txt under dir.
func WriteCourse(fs fsutil.FileSystem, dir string, c *Course) error {
	if err := fs.MkdirAll(filepath.Join(dir, "observation"), 0o755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}

	var mapLines strings.Builder
	for _, lm := range c.Map.Landmarks {
		fmt.Fprintf(&mapLines, "%s %s %d\n", ftoa(lm.X), ftoa(lm.Y), lm.ID)
	}
	if err := fs.WriteFile(filepath.Join(dir, "map.txt"), []byte(mapLines.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write map: %w", err)
	}

	var controls, truth strings.Builder
	for i, ctl := range c.Controls {
		fmt.Fprintf(&controls, "%s %s\n", ftoa(ctl.Velocity), ftoa(ctl.YawRate))
		t := c.Truth[i]
		fmt.Fprintf(&truth, "%s %s %s\n", ftoa(t.X), ftoa(t.Y), ftoa(t.Theta))
	}
	if err := fs.WriteFile(filepath.Join(dir, "control_data.txt"), []byte(controls.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write control data: %w", err)
	}
	if err := fs.WriteFile(filepath.Join(dir, "ground_truth_data.txt"), []byte(truth.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write ground truth: %w", err)
	}

	for i, obs := range c.Observations {
		var lines strings.Builder
		for _, o := range obs {
			fmt.Fprintf(&lines, "%s %s\n", ftoa(o.X), ftoa(o.Y))
		}
		path := filepath.Join(dir, "observation", fmt.Sprintf("observations_%06d.txt", i+1))
		if err := fs.WriteFile(path, []byte(lines.String()), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	return nil
}
