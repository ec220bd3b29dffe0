package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleTargetsChart renders recent fused target centers as an HTML
// scatter chart. Query params:
//   - limit: max observations to chart (default 500, capped at 5000)
func (ws *WebServer) handleTargetsChart(w http.ResponseWriter, r *http.Request) {
	if ws.source == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no observation source configured")
		return
	}

	limit := 500
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 5000 {
			limit = v
		}
	}

	observations, err := ws.source.RecentObservations(limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("query observations: %v", err))
		return
	}
	if len(observations) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no observations recorded yet")
		return
	}

	data := make([]opts.ScatterData, 0, len(observations))
	for _, o := range observations {
		data = append(data, opts.ScatterData{Value: []interface{}{o.X, o.Y}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "target center history",
			Subtitle: fmt.Sprintf("%d observations, newest first", len(observations)),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "y (m)"}),
	)
	scatter.AddSeries("center", data,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
