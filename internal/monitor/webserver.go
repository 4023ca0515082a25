// Package monitor serves the dev-facing visualization surface: run
// status, particle cloud charts, and error plots. It reads run state
// in-process through small interfaces so it never races the runner.
package monitor

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/banshee-data/localizer/internal/httputil"
	"github.com/banshee-data/localizer/internal/monitoring"
	"github.com/banshee-data/localizer/internal/session"
	"github.com/banshee-data/localizer/internal/version"
	"github.com/banshee-data/localizer/internal/worldmap"
)

//go:embed status.html
var statusHTML embed.FS

// Snapshotter exposes the live run state. Implemented by
// session.Manager.
type Snapshotter interface {
	ActiveSnapshot() (session.Snapshot, bool)
}

// RunHistory exposes stored runs for the chart endpoints. Implemented
// by session.Manager.
type RunHistory interface {
	ListRuns(limit int) ([]*session.RunRecord, error)
	GetEstimates(id string, limit int) ([]*session.StepEstimate, error)
}

// WebServer handles the HTTP interface for monitoring localization
// runs.
type WebServer struct {
	address  string
	snaps    Snapshotter
	history  RunHistory
	worldMap *worldmap.Map
	streams  *monitoring.Streams
	server   *http.Server
	tmpl     *template.Template
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Snaps   Snapshotter
	History RunHistory
	Map     *worldmap.Map
	Streams *monitoring.Streams
}

// NewWebServer creates a new web server with the provided
// configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:  config.Address,
		snaps:    config.Snaps,
		history:  config.History,
		worldMap: config.Map,
		streams:  config.Streams,
		tmpl:     template.Must(template.ParseFS(statusHTML, "status.html")),
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.Routes(),
	}

	return ws
}

// Routes configures the HTTP routes and handlers.
func (ws *WebServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/monitor/stats", ws.handleStats)
	mux.HandleFunc("/charts/particles", ws.handleParticleChart)
	mux.HandleFunc("/charts/error", ws.handleErrorChart)
	mux.HandleFunc("/plots/particles.png", ws.handleParticlePlot)
	mux.HandleFunc("/plots/error.png", ws.handleErrorPlot)

	return mux
}

// Start begins the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		ws.streams.Opsf("monitor webserver listening on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.streams.Opsf("monitor webserver failed: %v", err)
		}
	}()

	<-ctx.Done()
	ws.streams.Diagf("monitor webserver shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		ws.streams.Opsf("monitor webserver shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			ws.streams.Opsf("monitor webserver force close error: %v", err)
		}
	}
	return nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"service": version.Service,
		"version": version.Version,
	})
}

// statusPage is the data the status template renders.
type statusPage struct {
	Service   string
	Version   string
	Active    bool
	Snapshot  session.Snapshot
	Landmarks int
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	page := statusPage{
		Service: version.Service,
		Version: version.Version,
	}
	if ws.worldMap != nil {
		page.Landmarks = ws.worldMap.Len()
	}
	if ws.snaps != nil {
		page.Snapshot, page.Active = ws.snaps.ActiveSnapshot()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ws.tmpl.Execute(w, page); err != nil {
		ws.streams.Opsf("monitor: status template failed: %v", err)
	}
}

// handleStats returns the live run snapshot as JSON, or 404 when no
// run is active.
func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.snaps == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no run manager configured")
		return
	}
	snap, ok := ws.snaps.ActiveSnapshot()
	if !ok {
		httputil.WriteJSONError(w, http.StatusNotFound, "no active run")
		return
	}
	httputil.WriteJSONOK(w, snap)
}

// runEstimates resolves the run_id query parameter (default: newest
// run) and loads its estimates.
func (ws *WebServer) runEstimates(r *http.Request) (string, []*session.StepEstimate, error) {
	if ws.history == nil {
		return "", nil, fmt.Errorf("no run history configured")
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		runs, err := ws.history.ListRuns(1)
		if err != nil {
			return "", nil, fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			return "", nil, fmt.Errorf("no runs recorded")
		}
		runID = runs[0].ID
	}

	ests, err := ws.history.GetEstimates(runID, 0)
	if err != nil {
		return runID, nil, fmt.Errorf("failed to load estimates: %w", err)
	}
	if len(ests) == 0 {
		return runID, nil, fmt.Errorf("run %s has no estimates", runID)
	}
	return runID, ests, nil
}
