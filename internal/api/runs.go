package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/localizer/internal/httputil"
	"github.com/banshee-data/localizer/internal/mcl"
	"github.com/banshee-data/localizer/internal/session"
	"github.com/banshee-data/localizer/internal/units"
)

// estimateResponse is the live estimate with speed converted to the
// requested units. Poses stay in map-frame meters and radians; the
// degree rendering of the heading is a convenience copy.
type estimateResponse struct {
	RunID  string   `json:"run_id"`
	Status string   `json:"status"`
	Step   int      `json:"step"`
	Best   mcl.Pose `json:"best"`
	Mean   mcl.Pose `json:"mean"`

	HeadingDegrees float64 `json:"heading_degrees"`
	Speed          float64 `json:"speed"`
	SpeedUnits     string  `json:"speed_units"`
	YawRate        float64 `json:"yaw_rate"`

	MaxWeight float64 `json:"max_weight"`

	ErrorX     float64 `json:"error_x"`
	ErrorY     float64 `json:"error_y"`
	ErrorTheta float64 `json:"error_theta"`

	DegenerateResamples int `json:"degenerate_resamples"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	u, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	snap, ok := s.manager.ActiveSnapshot()
	if !ok {
		httputil.NotFound(w, "no active run")
		return
	}

	httputil.WriteJSONOK(w, estimateResponse{
		RunID:               snap.RunID,
		Status:              snap.Status,
		Step:                snap.Step,
		Best:                snap.Best,
		Mean:                snap.Mean,
		HeadingDegrees:      units.Degrees(snap.Best.Theta),
		Speed:               units.ConvertSpeed(snap.Velocity, u),
		SpeedUnits:          u,
		YawRate:             snap.YawRate,
		MaxWeight:           snap.MaxWeight,
		ErrorX:              snap.ErrorX,
		ErrorY:              snap.ErrorY,
		ErrorTheta:          snap.ErrorTheta,
		DegenerateResamples: snap.DegenerateResamples,
	})
}

// particleView is the wire form of one particle.
type particleView struct {
	ID     int     `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Theta  float64 `json:"theta"`
	Weight float64 `json:"weight"`
}

type particlesResponse struct {
	RunID     string         `json:"run_id"`
	Step      int            `json:"step"`
	Count     int            `json:"count"`
	Particles []particleView `json:"particles"`
}

func (s *Server) handleParticles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap, ok := s.manager.ActiveSnapshot()
	if !ok {
		httputil.NotFound(w, "no active run")
		return
	}

	limit := len(snap.Particles)
	if lv := r.URL.Query().Get("limit"); lv != "" {
		v, err := strconv.Atoi(lv)
		if err != nil || v <= 0 {
			httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", lv))
			return
		}
		if v < limit {
			limit = v
		}
	}

	views := make([]particleView, limit)
	for i := 0; i < limit; i++ {
		p := snap.Particles[i]
		views[i] = particleView{ID: p.ID, X: p.X, Y: p.Y, Theta: p.Theta, Weight: p.Weight}
	}
	httputil.WriteJSONOK(w, particlesResponse{
		RunID:     snap.RunID,
		Step:      snap.Step,
		Count:     len(snap.Particles),
		Particles: views,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	if id := r.URL.Query().Get("id"); id != "" {
		rec, err := s.manager.GetRun(id)
		if err != nil {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, rec)
		return
	}

	limit := 20
	if lv := r.URL.Query().Get("limit"); lv != "" {
		v, err := strconv.Atoi(lv)
		if err != nil || v <= 0 {
			httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", lv))
			return
		}
		limit = v
	}
	runs, err := s.manager.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if runs == nil {
		runs = []*session.RunRecord{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) handleRunEstimates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "id parameter is required")
		return
	}
	limit := 0
	if lv := r.URL.Query().Get("limit"); lv != "" {
		v, err := strconv.Atoi(lv)
		if err != nil || v <= 0 {
			httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", lv))
			return
		}
		limit = v
	}

	ests, err := s.manager.GetEstimates(id, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if ests == nil {
		ests = []*session.StepEstimate{}
	}
	httputil.WriteJSONOK(w, ests)
}

// startRunRequest describes a run to launch. Pose fields place the
// initial GPS-style fix; the filter spreads particles around it.
type startRunRequest struct {
	Map    string  `json:"map"`
	Source string  `json:"source,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Theta  float64 `json:"theta"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Map == "" {
		httputil.BadRequest(w, "map is required")
		return
	}
	if s.maps == nil {
		httputil.InternalServerError(w, "no map store configured")
		return
	}
	if s.newSource == nil {
		httputil.InternalServerError(w, "no telemetry source configured")
		return
	}

	m, err := s.maps.LoadMap(req.Map)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	kind := req.Source
	if kind == "" {
		kind = s.tuning.GetSource()
	}
	source, err := s.newSource(kind)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("failed to open %s source: %v", kind, err))
		return
	}

	// The run outlives this request; its lifecycle belongs to the
	// manager, not the request context.
	id, err := s.manager.StartRun(context.Background(), session.StartConfig{
		FilterConfig: s.tuning.FilterConfig(),
		Source:       source,
		SourceName:   kind,
		Map:          m,
		MapName:      req.Map,
		Initial:      mcl.Pose{X: req.X, Y: req.Y, Theta: req.Theta},
	})
	if err != nil {
		source.Close()
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"run_id": id})
}

type stopRunRequest struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req stopRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.RunID == "" {
		httputil.BadRequest(w, "run_id is required")
		return
	}
	if err := s.manager.StopRun(req.RunID); err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	rec, err := s.manager.GetRun(req.RunID)
	if err != nil {
		// The run stopped; the record lookup is best effort.
		httputil.WriteJSONOK(w, map[string]string{"run_id": req.RunID, "status": session.StatusStopped})
		return
	}
	httputil.WriteJSONOK(w, rec)
}
