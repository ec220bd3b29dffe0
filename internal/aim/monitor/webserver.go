// Package monitor serves debugging views of the aim pipeline: the
// solver's bullet arc as a PNG and recent target history as an HTML
// chart. No auth; bind it to localhost.
package monitor

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/turret.tracker/internal/aim"
)

// ObservationSource supplies persisted target history for charting.
type ObservationSource interface {
	RecentObservations(limit int) ([]aim.TargetObservation, error)
}

// WebServer exposes the debug endpoints.
type WebServer struct {
	solver *aim.Solver
	source ObservationSource
}

// NewWebServer builds the server. Either dependency may be nil; the
// corresponding endpoint then reports 404.
func NewWebServer(solver *aim.Solver, source ObservationSource) *WebServer {
	return &WebServer{solver: solver, source: source}
}

// Handler returns the route table.
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/trajectory.png", ws.handleTrajectoryPNG)
	mux.HandleFunc("/debug/targets", ws.handleTargetsChart)
	return mux
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
