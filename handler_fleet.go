package fleetengine

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/transitops/fleetengine/eta"
	"github.com/transitops/fleetengine/store"
)

func (e *Engine) handleFleetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, e.GetFleetSnapshot())
}

func (e *Engine) handleVehicle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := e.GetVehicle(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "unknown vehicle "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (e *Engine) handleVehicleETA(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	projs, err := e.GetETA(id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"vehicleId": id, "projections": projs})
	case errors.Is(err, eta.ErrUnavailable), errors.Is(err, eta.ErrRouteUnavailable):
		// Not an error page: the consumer shows "no ETA" for this vehicle.
		writeJSON(w, http.StatusOK, map[string]any{"vehicleId": id, "projections": nil, "unavailable": true})
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// handleFleetStream pushes one JSON snapshot per broadcast cycle as
// server-sent events. Closing the request cancels the subscription and
// releases its resources.
func (e *Engine) handleFleetStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "unsupported", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := e.Subscribe(r.Context())
	for snap := range ch {
		b, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if _, err := w.Write(b); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}
