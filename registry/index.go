package registry

import (
	"fmt"

	"github.com/transitops/fleetengine/geo"
)

// Index stores route geometry and vehicle assignments in memory for fast
// lookups. It is immutable after construction; out-of-band reloads build a
// fresh Index and swap it in atomically at the caller.
type Index struct {
	routes       map[string]*Route
	vehicleRoute map[string]string       // vehicle_id -> route_id
	polylines    map[string][][2]float64 // route_id -> ordered stop coords [lat,lon]
	cumKM        map[string][]float64    // route_id -> cumulative km at each stop
}

// NewIndex builds an Index from a registry document. Stop distances are
// derived from coordinates when the document leaves them unset, and are
// forced non-decreasing.
func NewIndex(doc *Document) (*Index, error) {
	idx := &Index{
		routes:       map[string]*Route{},
		vehicleRoute: map[string]string{},
		polylines:    map[string][][2]float64{},
		cumKM:        map[string][]float64{},
	}

	for i := range doc.Routes {
		r := doc.Routes[i]
		if _, dup := idx.routes[r.ID]; dup {
			return nil, fmt.Errorf("duplicate route %q", r.ID)
		}

		pts := make([][2]float64, len(r.Stops))
		for j, s := range r.Stops {
			pts[j] = [2]float64{s.Lat, s.Lon}
		}
		cum := geo.CumulativeKM(pts)

		// Prefer provided distances; fall back to derived, never decreasing.
		provided := false
		for _, s := range r.Stops[1:] {
			if s.DistKM > 0 {
				provided = true
				break
			}
		}
		if !provided {
			for j := range r.Stops {
				r.Stops[j].DistKM = cum[j]
			}
		}
		prev := 0.0
		for j := range r.Stops {
			if r.Stops[j].DistKM < prev {
				r.Stops[j].DistKM = prev
			}
			prev = r.Stops[j].DistKM
		}

		idx.routes[r.ID] = &r
		idx.polylines[r.ID] = pts
		idx.cumKM[r.ID] = cum
	}

	for _, v := range doc.Vehicles {
		if _, ok := idx.routes[v.RouteID]; !ok {
			return nil, fmt.Errorf("vehicle %q assigned to unknown route %q", v.ID, v.RouteID)
		}
		idx.vehicleRoute[v.ID] = v.RouteID
	}

	return idx, nil
}

// Accessor methods

func (idx *Index) Route(routeID string) (*Route, bool) {
	r, ok := idx.routes[routeID]
	return r, ok
}

func (idx *Index) RouteForVehicle(vehicleID string) (string, bool) {
	rid, ok := idx.vehicleRoute[vehicleID]
	return rid, ok
}

func (idx *Index) KnownVehicle(vehicleID string) bool {
	_, ok := idx.vehicleRoute[vehicleID]
	return ok
}

func (idx *Index) VehicleIDs() []string {
	ids := make([]string, 0, len(idx.vehicleRoute))
	for id := range idx.vehicleRoute {
		ids = append(ids, id)
	}
	return ids
}

func (idx *Index) RouteIDs() []string {
	ids := make([]string, 0, len(idx.routes))
	for id := range idx.routes {
		ids = append(ids, id)
	}
	return ids
}

// RouteLengthKM returns the total distance-along-route of the final stop.
func (idx *Index) RouteLengthKM(routeID string) float64 {
	r, ok := idx.routes[routeID]
	if !ok || len(r.Stops) == 0 {
		return 0
	}
	return r.Stops[len(r.Stops)-1].DistKM
}

// ScheduledSpeedKMH returns the route's scheduled speed, used when a
// vehicle's observed speed cannot drive a projection.
func (idx *Index) ScheduledSpeedKMH(routeID string) float64 {
	r, ok := idx.routes[routeID]
	if !ok || r.AvgSpeedKMH <= 0 {
		return 0
	}
	return r.AvgSpeedKMH
}

// Project locates a point along the route's stop polyline by nearest-segment
// projection. Returns false when the route is unknown or degenerate.
func (idx *Index) Project(routeID string, lat, lon float64) (Progress, bool) {
	pts := idx.polylines[routeID]
	cum := idx.cumKM[routeID]
	proj, ok := geo.NearestSegmentProjection(pts, lat, lon)
	if !ok {
		return Progress{}, false
	}

	distKM := cum[proj.SegmentIndex]
	segKM := cum[proj.SegmentIndex+1] - cum[proj.SegmentIndex]
	distKM += proj.T * segKM

	return Progress{
		DistAlongKM:  distKM,
		OffsetKM:     proj.OffsetKM,
		SegmentIndex: proj.SegmentIndex,
	}, true
}

// StopsDownstream returns the stops at or beyond the given
// distance-along-route, in stop order. A stop within atStopToleranceKM behind
// the position is considered reached and excluded.
func (idx *Index) StopsDownstream(routeID string, distAlongKM float64) []Stop {
	r, ok := idx.routes[routeID]
	if !ok {
		return nil
	}
	out := make([]Stop, 0, len(r.Stops))
	for _, s := range r.Stops {
		if s.DistKM >= distAlongKM-atStopToleranceKM {
			out = append(out, s)
		}
	}
	return out
}

// LastStopReached returns the most recent stop at or behind the given
// distance-along-route.
func (idx *Index) LastStopReached(routeID string, distAlongKM float64) (Stop, bool) {
	r, ok := idx.routes[routeID]
	if !ok {
		return Stop{}, false
	}
	var last Stop
	found := false
	for _, s := range r.Stops {
		if s.DistKM <= distAlongKM+atStopToleranceKM {
			last = s
			found = true
			continue
		}
		break
	}
	return last, found
}

// A vehicle sitting a few meters short of a stop is treated as at the stop.
const atStopToleranceKM = 0.02
