// Command gen-course generates a synthetic replay dataset: a landmark
// map, a weaving drive through it, and noisy per-step observations, in
// the layout the replay telemetry source consumes.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/banshee-data/localizer/internal/fsutil"
)

var (
	outDir      = flag.String("out", "data/course", "output directory for the dataset")
	steps       = flag.Int("steps", 500, "number of steps to generate")
	dt          = flag.Float64("dt", 0.1, "timestep in seconds")
	seed        = flag.Uint64("seed", 42, "random seed; the same seed reproduces the same course")
	landmarks   = flag.Int("landmarks", 30, "number of landmarks")
	fieldSize   = flag.Float64("field", 100, "side length of the landmark field in meters")
	sensorRange = flag.Float64("range", 50, "sensor range in meters")
	velocity    = flag.Float64("velocity", 5, "vehicle speed in m/s")
	yawAmp      = flag.Float64("yaw-amp", 0.3, "yaw rate amplitude in rad/s")
	yawPeriod   = flag.Int("yaw-period", 100, "yaw oscillation period in steps")
	noiseX      = flag.Float64("noise-x", 0.3, "observation x noise stddev in meters")
	noiseY      = flag.Float64("noise-y", 0.3, "observation y noise stddev in meters")
)

func main() {
	flag.Parse()

	course, err := GenerateCourse(CourseConfig{
		Steps:        *steps,
		DT:           *dt,
		Seed:         *seed,
		Landmarks:    *landmarks,
		FieldSize:    *fieldSize,
		SensorRange:  *sensorRange,
		Velocity:     *velocity,
		YawAmplitude: *yawAmp,
		YawPeriod:    *yawPeriod,
		ObsNoise:     [2]float64{*noiseX, *noiseY},
	})
	if err != nil {
		log.Fatalf("failed to generate course: %v", err)
	}

	if err := WriteCourse(fsutil.OSFileSystem{}, *outDir, course); err != nil {
		log.Fatalf("failed to write course: %v", err)
	}

	total := 0
	for _, obs := range course.Observations {
		total += len(obs)
	}
	fmt.Printf("wrote %d steps, %d landmarks, %d observations to %s\n",
		len(course.Controls), course.Map.Len(), total, *outDir)
}
