package monitor

import (
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/localizer/internal/httputil"
)

var (
	particleColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	landmarkColor = color.RGBA{R: 255, G: 140, B: 0, A: 255}
	bestColor     = color.RGBA{R: 220, G: 20, B: 60, A: 255}

	errXColor     = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	errYColor     = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	errThetaColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// handleParticlePlot renders the live particle cloud with landmarks and
// best pose as a PNG. Static counterpart to the echarts page, handy for
// dropping into a report.
func (ws *WebServer) handleParticlePlot(w http.ResponseWriter, r *http.Request) {
	if ws.snaps == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no run manager configured")
		return
	}
	snap, ok := ws.snaps.ActiveSnapshot()
	if !ok {
		httputil.NotFound(w, "no active run")
		return
	}
	if len(snap.Particles) == 0 {
		httputil.NotFound(w, "active run has no particles yet")
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Particle Cloud: run %s step %d", snap.RunID, snap.Step)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	particlePts := make(plotter.XYs, len(snap.Particles))
	for i, pt := range snap.Particles {
		particlePts[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}
	particleScatter, err := plotter.NewScatter(particlePts)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to build particle series: %v", err))
		return
	}
	particleScatter.GlyphStyle.Color = particleColor
	particleScatter.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(particleScatter)
	p.Legend.Add("particles", particleScatter)

	if ws.worldMap != nil && ws.worldMap.Len() > 0 {
		landmarkPts := make(plotter.XYs, ws.worldMap.Len())
		for i, lm := range ws.worldMap.Landmarks {
			landmarkPts[i] = plotter.XY{X: lm.X, Y: lm.Y}
		}
		landmarkScatter, err := plotter.NewScatter(landmarkPts)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to build landmark series: %v", err))
			return
		}
		landmarkScatter.GlyphStyle.Color = landmarkColor
		landmarkScatter.GlyphStyle.Radius = vg.Points(4)
		p.Add(landmarkScatter)
		p.Legend.Add("landmarks", landmarkScatter)
	}

	bestScatter, err := plotter.NewScatter(plotter.XYs{{X: snap.Best.X, Y: snap.Best.Y}})
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to build best-pose series: %v", err))
		return
	}
	bestScatter.GlyphStyle.Color = bestColor
	bestScatter.GlyphStyle.Radius = vg.Points(3)
	p.Add(bestScatter)
	p.Legend.Add("best", bestScatter)

	p.Legend.Top = true
	p.Legend.Left = false

	ws.writePNG(w, p, 8*vg.Inch, 8*vg.Inch)
}

// handleErrorPlot renders per-step absolute error for a stored run as a
// PNG line plot.
// Query params:
//   - run_id (optional; defaults to the newest run)
func (ws *WebServer) handleErrorPlot(w http.ResponseWriter, r *http.Request) {
	runID, ests, err := ws.runEstimates(r)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Localization Error: run %s", runID)
	p.X.Label.Text = "step"
	p.Y.Label.Text = "absolute error"

	xPts := make(plotter.XYs, len(ests))
	yPts := make(plotter.XYs, len(ests))
	thetaPts := make(plotter.XYs, len(ests))
	for i, est := range ests {
		step := float64(est.Step)
		xPts[i] = plotter.XY{X: step, Y: est.ErrorX}
		yPts[i] = plotter.XY{X: step, Y: est.ErrorY}
		thetaPts[i] = plotter.XY{X: step, Y: est.ErrorTheta}
	}

	series := []struct {
		name  string
		pts   plotter.XYs
		color color.Color
	}{
		{"error_x (m)", xPts, errXColor},
		{"error_y (m)", yPts, errYColor},
		{"error_theta (rad)", thetaPts, errThetaColor},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to build %s series: %v", s.name, err))
			return
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	ws.writePNG(w, p, 14*vg.Inch, 6*vg.Inch)
}

// writePNG renders the plot straight onto the response.
func (ws *WebServer) writePNG(w http.ResponseWriter, p *plot.Plot, width, height vg.Length) {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		ws.streams.Diagf("monitor: failed to write plot: %v", err)
	}
}
