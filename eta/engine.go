package eta

import (
	"errors"
	"fmt"
	"time"

	"github.com/transitops/fleetengine/geo"
	"github.com/transitops/fleetengine/registry"
	"github.com/transitops/fleetengine/store"
)

var (
	// ErrUnavailable means no projection can be produced for the vehicle:
	// it is stale, out of service, or unknown.
	ErrUnavailable = errors.New("projection unavailable")

	// ErrRouteUnavailable means the vehicle's assigned route is missing or
	// inactive in the registry.
	ErrRouteUnavailable = errors.New("route unavailable")
)

// Projection is the projected arrival of one vehicle at one downstream stop.
// Always derived, never authoritative.
type Projection struct {
	VehicleID     string    `json:"vehicleId"`
	StopID        string    `json:"stopId"`
	StopName      string    `json:"stopName,omitempty"`
	ArrivalAt     time.Time `json:"arrivalAt"`
	MinutesAway   float64   `json:"minutesAway"`
	Progress      float64   `json:"progress"` // fraction of route completed
	LowConfidence bool      `json:"lowConfidence,omitempty"`
}

// Options tunes projection behavior.
type Options struct {
	MinMovingKMH    float64       // smoothed speeds below this count as stopped
	DefaultSpeedKMH float64       // used when the route has no scheduled speed
	MaxOffRouteKM   float64       // cross-track beyond this is treated as off-route
	Staleness       time.Duration // reports older than this produce no projection
}

// Engine computes arrival projections from vehicle state and route geometry.
type Engine struct {
	index func() *registry.Index
	store *store.Store
	opts  Options
	now   func() time.Time
}

// NewEngine creates an engine. index is called per projection so registry
// reloads take effect immediately.
func NewEngine(index func() *registry.Index, st *store.Store, opts Options) *Engine {
	if opts.DefaultSpeedKMH <= 0 {
		opts.DefaultSpeedKMH = 18
	}
	if opts.MaxOffRouteKM <= 0 {
		opts.MaxOffRouteKM = 0.25
	}
	return &Engine{index: index, store: st, opts: opts, now: time.Now}
}

// Project returns the projected arrival at each downstream stop of the
// vehicle's route, in stop order. An empty, nil-error result means the
// vehicle is already past the final stop.
func (e *Engine) Project(vehicleID string) ([]Projection, error) {
	st, err := e.store.Get(vehicleID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, vehicleID)
	}
	return e.ProjectState(st)
}

// ProjectState projects from an already-read state record. The snapshot
// broadcaster uses this to project against the same state it publishes.
func (e *Engine) ProjectState(st store.VehicleState) ([]Projection, error) {
	now := e.now()
	if st.Status == store.StatusOutOfService {
		return nil, fmt.Errorf("%w: %s is out of service", ErrUnavailable, st.VehicleID)
	}
	if e.opts.Staleness > 0 && now.Sub(st.LastReport) > e.opts.Staleness {
		return nil, fmt.Errorf("%w: %s has not reported recently", ErrUnavailable, st.VehicleID)
	}

	idx := e.index()
	route, ok := idx.Route(st.RouteID)
	if !ok || !route.Active {
		return nil, fmt.Errorf("%w: %s", ErrRouteUnavailable, st.RouteID)
	}

	speed := e.speedFor(idx, st)

	prog, ok := idx.Project(st.RouteID, st.Lat, st.Lon)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no usable geometry", ErrRouteUnavailable, st.RouteID)
	}
	if prog.OffsetKM > e.opts.MaxOffRouteKM {
		return e.projectOffRoute(now, idx, route, st, speed), nil
	}

	length := idx.RouteLengthKM(st.RouteID)
	stops := idx.StopsDownstream(st.RouteID, prog.DistAlongKM)
	out := make([]Projection, 0, len(stops))
	for _, s := range stops {
		remainingKM := s.DistKM - prog.DistAlongKM
		if remainingKM < 0 {
			remainingKM = 0
		}
		minutes := remainingKM / speed * 60
		out = append(out, Projection{
			VehicleID:   st.VehicleID,
			StopID:      s.ID,
			StopName:    s.Name,
			ArrivalAt:   now.Add(time.Duration(minutes * float64(time.Minute))),
			MinutesAway: minutes,
			Progress:    progressFraction(prog.DistAlongKM, length),
		})
	}
	return out, nil
}

// speedFor picks the speed that drives the projection: the smoothed observed
// speed when the vehicle is moving, otherwise the route's scheduled speed, so
// a vehicle waiting at a stop never yields an infinite ETA.
func (e *Engine) speedFor(idx *registry.Index, st store.VehicleState) float64 {
	if st.SmoothedSpeedKMH >= e.opts.MinMovingKMH {
		return st.SmoothedSpeedKMH
	}
	if sched := idx.ScheduledSpeedKMH(st.RouteID); sched > 0 {
		return sched
	}
	return e.opts.DefaultSpeedKMH
}

// projectOffRoute handles a position that does not resolve onto the route
// polyline: straight-line distance over smoothed speed, from the nearest
// stop onward, flagged low-confidence.
func (e *Engine) projectOffRoute(now time.Time, idx *registry.Index, route *registry.Route, st store.VehicleState, speed float64) []Projection {
	nearestIdx := 0
	minKM := -1.0
	for i, s := range route.Stops {
		d := geo.HaversineKM(st.Lat, st.Lon, s.Lat, s.Lon)
		if minKM < 0 || d < minKM {
			minKM = d
			nearestIdx = i
		}
	}

	length := idx.RouteLengthKM(route.ID)
	out := make([]Projection, 0, len(route.Stops)-nearestIdx)
	for _, s := range route.Stops[nearestIdx:] {
		km := geo.HaversineKM(st.Lat, st.Lon, s.Lat, s.Lon)
		minutes := km / speed * 60
		out = append(out, Projection{
			VehicleID:     st.VehicleID,
			StopID:        s.ID,
			StopName:      s.Name,
			ArrivalAt:     now.Add(time.Duration(minutes * float64(time.Minute))),
			MinutesAway:   minutes,
			Progress:      progressFraction(route.Stops[nearestIdx].DistKM, length),
			LowConfidence: true,
		})
	}
	return out
}

func progressFraction(distKM, lengthKM float64) float64 {
	if lengthKM <= 0 {
		return 0
	}
	f := distKM / lengthKM
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return f
}
