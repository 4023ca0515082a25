package telemetry

import (
	"sync"
	"time"

	"github.com/banshee-data/localizer/internal/monitoring"
)

// StatsInterface tracks feed statistics for the live sources.
type StatsInterface interface {
	AddFrame(bytes int)
	AddMalformed()
	AddObservations(count int)
	LogStats()
}

// FrameStats tracks frame statistics with thread-safe operations.
type FrameStats struct {
	mu             sync.Mutex
	frameCount     int64
	byteCount      int64
	malformedCount int64
	obsCount       int64
	lastReset      time.Time

	streams *monitoring.Streams
}

// NewFrameStats creates a FrameStats logging through the given streams.
func NewFrameStats(streams *monitoring.Streams) *FrameStats {
	return &FrameStats{lastReset: time.Now(), streams: streams}
}

// AddFrame increments frame count and byte count.
func (s *FrameStats) AddFrame(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameCount++
	s.byteCount += int64(bytes)
}

// AddMalformed increments the malformed frame count.
func (s *FrameStats) AddMalformed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformedCount++
}

// AddObservations increments the parsed observation count.
func (s *FrameStats) AddObservations(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obsCount += int64(count)
}

// GetAndReset returns current stats and resets counters.
func (s *FrameStats) GetAndReset() (frames, bytes, malformed, observations int64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	duration = now.Sub(s.lastReset)
	frames = s.frameCount
	bytes = s.byteCount
	malformed = s.malformedCount
	observations = s.obsCount

	s.frameCount = 0
	s.byteCount = 0
	s.malformedCount = 0
	s.obsCount = 0
	s.lastReset = now

	return
}

// LogStats logs a rate summary to the diag stream and resets counters.
// Quiet intervals log nothing.
func (s *FrameStats) LogStats() {
	frames, bytes, malformed, observations, duration := s.GetAndReset()
	if frames == 0 && malformed == 0 {
		return
	}

	secs := duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	s.streams.Diagf("telemetry stats (/sec): %.1f frames, %.1f KB, %.1f observations",
		float64(frames)/secs, float64(bytes)/secs/1024, float64(observations)/secs)
	if malformed > 0 {
		s.streams.Opsf("telemetry: %d malformed frames in last %v", malformed, duration.Round(time.Second))
	}
}

// noopStats is a StatsInterface implementation that does nothing. It is
// used as a safe default when no stats collector is provided.
type noopStats struct{}

func (noopStats) AddFrame(bytes int)        {}
func (noopStats) AddMalformed()             {}
func (noopStats) AddObservations(count int) {}
func (noopStats) LogStats()                 {}
