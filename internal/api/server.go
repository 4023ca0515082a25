// Package api exposes the control surface for localization runs:
// starting and stopping runs, reading estimates and particle clouds,
// and managing stored landmark maps.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/localizer/internal/config"
	"github.com/banshee-data/localizer/internal/fsutil"
	"github.com/banshee-data/localizer/internal/httputil"
	"github.com/banshee-data/localizer/internal/monitoring"
	"github.com/banshee-data/localizer/internal/session"
	"github.com/banshee-data/localizer/internal/telemetry"
	"github.com/banshee-data/localizer/internal/units"
	"github.com/banshee-data/localizer/internal/version"
	"github.com/banshee-data/localizer/internal/worldmap"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// MapStore persists landmark maps. Implemented by the sqlite store in
// internal/db.
type MapStore interface {
	SaveMap(name string, m *worldmap.Map) error
	LoadMap(name string) (*worldmap.Map, error)
	DeleteMap(name string) error
}

// SourceFactory builds a telemetry source for a new run. The cmd wires
// this from the tuning config; tests substitute fakes.
type SourceFactory func(kind string) (telemetry.Source, error)

// Server handles the localization control API.
type Server struct {
	manager   *session.Manager
	maps      MapStore
	listMaps  func() ([]MapSummary, error)
	tuning    *config.TuningConfig
	units     string
	mapsDir   string
	fs        fsutil.FileSystem
	newSource SourceFactory
	streams   *monitoring.Streams
}

// MapSummary is the list entry for a stored map.
type MapSummary struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	LandmarkCount int       `json:"landmark_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// ServerConfig wires the API server together.
type ServerConfig struct {
	Manager *session.Manager
	Maps    MapStore
	// ListMaps enumerates stored maps; separate from MapStore so fakes
	// stay small.
	ListMaps func() ([]MapSummary, error)
	Tuning   *config.TuningConfig

	// Units is the default speed unit for estimate responses; a
	// per-request ?units= overrides it.
	Units string

	// MapsDir, when set, receives a file copy of each uploaded map so
	// runs can outlive the database.
	MapsDir string
	FS      fsutil.FileSystem

	NewSource SourceFactory
	Streams   *monitoring.Streams
}

// NewServer creates the API server. Unknown units fall back to m/s.
func NewServer(cfg ServerConfig) *Server {
	u := cfg.Units
	if !units.IsValid(u) {
		u = units.MPS
	}
	fs := cfg.FS
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	tuning := cfg.Tuning
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	return &Server{
		manager:   cfg.Manager,
		maps:      cfg.Maps,
		listMaps:  cfg.ListMaps,
		tuning:    tuning,
		units:     u,
		mapsDir:   cfg.MapsDir,
		fs:        fs,
		newSource: cfg.NewSource,
		streams:   cfg.Streams,
	}
}

// ServeMux returns the route table for the API server.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/estimate", s.handleEstimate)
	mux.HandleFunc("/api/particles", s.handleParticles)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/start", s.handleStartRun)
	mux.HandleFunc("/api/runs/stop", s.handleStopRun)
	mux.HandleFunc("/api/run_estimates", s.handleRunEstimates)
	mux.HandleFunc("/api/maps", s.handleMaps)
	mux.HandleFunc("/api/config", s.handleConfig)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration to the diag
// stream.
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		s.streams.Diagf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"service": version.Service,
		"version": version.Version,
	})
}

// requestUnits resolves the speed unit for a request: explicit ?units=
// wins, otherwise the server default.
func (s *Server) requestUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid units %q (valid: %s)", u, units.GetValidUnitsString())
	}
	return u, nil
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.tuning)
}
