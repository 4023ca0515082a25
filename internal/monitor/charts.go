package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/localizer/internal/httputil"
)

// handleParticleChart renders the live particle cloud, the landmark
// map, and the best pose as an interactive scatter page. Debugging-only
// endpoint (no auth): the quickest way to see whether the cloud has
// converged onto the map.
// Query params:
//   - max_points (optional; default 5000) to reduce payload size
func (ws *WebServer) handleParticleChart(w http.ResponseWriter, r *http.Request) {
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

	maxPoints := 5000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	// Downsample by stride to stay within maxPoints.
	stride := 1
	if len(snap.Particles) > maxPoints {
		stride = int(math.Ceil(float64(len(snap.Particles)) / float64(maxPoints)))
	}

	maxAbs := 0.0
	track := func(x, y float64) {
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
		}
		if math.Abs(y) > maxAbs {
			maxAbs = math.Abs(y)
		}
	}

	particles := make([]opts.ScatterData, 0, len(snap.Particles)/stride+1)
	maxWeight := 0.0
	for i := 0; i < len(snap.Particles); i += stride {
		p := snap.Particles[i]
		track(p.X, p.Y)
		if p.Weight > maxWeight {
			maxWeight = p.Weight
		}
		particles = append(particles, opts.ScatterData{Value: []interface{}{p.X, p.Y, p.Weight}})
	}

	var landmarks []opts.ScatterData
	if ws.worldMap != nil {
		landmarks = make([]opts.ScatterData, 0, ws.worldMap.Len())
		for _, lm := range ws.worldMap.Landmarks {
			track(lm.X, lm.Y)
			landmarks = append(landmarks, opts.ScatterData{Value: []interface{}{lm.X, lm.Y, 0.0}})
		}
	}

	best := []opts.ScatterData{{Value: []interface{}{snap.Best.X, snap.Best.Y, snap.MaxWeight}}}
	track(snap.Best.X, snap.Best.Y)

	// Small padding so edge points stay visible.
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if maxWeight == 0 {
		maxWeight = 1
	}

	// Square plot with symmetric axis ranges so distances read true.
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Particle Cloud", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Particle Cloud",
			Subtitle: fmt.Sprintf("run=%s step=%d particles=%d stride=%d", snap.RunID, snap.Step, len(snap.Particles), stride),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxWeight),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("particles", particles, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	if len(landmarks) > 0 {
		scatter.AddSeries("landmarks", landmarks,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff7f0e"}),
		)
	}
	scatter.AddSeries("best", best,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#d62728"}),
	)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleErrorChart renders per-step absolute error for a stored run as
// an interactive line page. Only meaningful for runs with ground truth.
// Query params:
//   - run_id (optional; defaults to the newest run)
func (ws *WebServer) handleErrorChart(w http.ResponseWriter, r *http.Request) {
	runID, ests, err := ws.runEstimates(r)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	steps := make([]string, len(ests))
	errX := make([]opts.LineData, len(ests))
	errY := make([]opts.LineData, len(ests))
	errTheta := make([]opts.LineData, len(ests))
	for i, est := range ests {
		steps[i] = strconv.Itoa(est.Step)
		errX[i] = opts.LineData{Value: est.ErrorX}
		errY[i] = opts.LineData{Value: est.ErrorY}
		errTheta[i] = opts.LineData{Value: est.ErrorTheta}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Localization Error", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Localization Error",
			Subtitle: fmt.Sprintf("run=%s steps=%d, absolute error of best particle vs ground truth", runID, len(ests)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "step"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "error"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	line.SetXAxis(steps).
		AddSeries("error_x (m)", errX).
		AddSeries("error_y (m)", errY).
		AddSeries("error_theta (rad)", errTheta)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
