package monitor

import (
	"math"
	"net/http"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// handleTrajectoryPNG renders the sampled bullet arc for a given
// engagement as a quick PNG. Query params:
//   - distance: horizontal range in meters (required, > 0)
//   - pitch_deg: launch pitch in degrees (default 0)
func (ws *WebServer) handleTrajectoryPNG(w http.ResponseWriter, r *http.Request) {
	if ws.solver == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no solver configured")
		return
	}

	distance, err := strconv.ParseFloat(r.URL.Query().Get("distance"), 64)
	if err != nil || distance <= 0 {
		ws.writeJSONError(w, http.StatusBadRequest, "distance must be a positive number")
		return
	}
	pitchDeg := 0.0
	if p := r.URL.Query().Get("pitch_deg"); p != "" {
		if pitchDeg, err = strconv.ParseFloat(p, 64); err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, "invalid pitch_deg")
			return
		}
	}

	points := ws.solver.Trajectory(distance, pitchDeg*math.Pi/180)
	if len(points) == 0 {
		ws.writeJSONError(w, http.StatusUnprocessableEntity, "no trajectory for given parameters")
		return
	}

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = pt.Range
		xys[i].Y = pt.Height
	}

	p := plot.New()
	p.Title.Text = "bullet trajectory"
	p.X.Label.Text = "range (m)"
	p.Y.Label.Text = "height (m)"

	line, err := plotter.NewLine(xys)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "failed to build plot line")
		return
	}
	p.Add(line, plotter.NewGrid())

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "failed to render plot")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		// Client went away mid-write; nothing useful to do.
		return
	}
}
