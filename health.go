package fleetengine

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status         string     `json:"status"`
	Vehicles       int        `json:"vehicles"`
	LatestSnapshot *time.Time `json:"latest_snapshot,omitempty"`
}

func (e *Engine) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Vehicles: e.store.Len(),
	}
	if snap, ok := e.broadcaster.Latest(); ok {
		ts := snap.Timestamp
		resp.LatestSnapshot = &ts
	}
	writeJSON(w, http.StatusOK, resp)
}
