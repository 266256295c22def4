package eta

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/transitops/fleetengine/registry"
	"github.com/transitops/fleetengine/store"
)

const kmPerDegLat = math.Pi * 6371.0 / 180

func latForKM(km float64) float64 { return km / kmPerDegLat }

var now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// Stops A, B, C at 0, 1, and 3 km along a meridian, scheduled at 20 km/h.
func testIndex(t *testing.T, active bool) *registry.Index {
	t.Helper()
	idx, err := registry.NewIndex(&registry.Document{
		Routes: []registry.Route{
			{
				ID:          "line-9",
				Active:      active,
				AvgSpeedKMH: 20,
				Stops: []registry.Stop{
					{ID: "A", Name: "Alpha", Lat: latForKM(0), Lon: 0},
					{ID: "B", Name: "Bravo", Lat: latForKM(1), Lon: 0},
					{ID: "C", Name: "Charlie", Lat: latForKM(3), Lon: 0},
				},
			},
		},
		Vehicles: []registry.Vehicle{{ID: "bus-1", RouteID: "line-9"}},
	})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return idx
}

func testEngine(t *testing.T, idx *registry.Index, st *store.Store) *Engine {
	t.Helper()
	e := NewEngine(func() *registry.Index { return idx }, st, Options{
		MinMovingKMH:    3,
		DefaultSpeedKMH: 18,
		MaxOffRouteKM:   0.25,
		Staleness:       60 * time.Second,
	})
	e.now = func() time.Time { return now }
	return e
}

func stateAt(km, smoothedKMH float64) store.VehicleState {
	return store.VehicleState{
		VehicleID:        "bus-1",
		RouteID:          "line-9",
		Lat:              latForKM(km),
		Lon:              0,
		SmoothedSpeedKMH: smoothedKMH,
		Status:           store.StatusOnTime,
		LastReport:       now.Add(-5 * time.Second),
	}
}

func TestProjectDownstreamStops(t *testing.T) {
	e := testEngine(t, testIndex(t, true), store.NewStore(0.4))

	// 500 m along the route at 20 km/h: B is 1.5 min away, C is 7.5.
	projs, err := e.ProjectState(stateAt(0.5, 20))
	if err != nil {
		t.Fatalf("ProjectState failed: %v", err)
	}
	if len(projs) != 2 {
		t.Fatalf("expected projections for B and C, got %d", len(projs))
	}

	tests := []struct {
		idx         int
		stopID      string
		wantMinutes float64
	}{
		{idx: 0, stopID: "B", wantMinutes: 1.5},
		{idx: 1, stopID: "C", wantMinutes: 7.5},
	}
	for _, tt := range tests {
		p := projs[tt.idx]
		if p.StopID != tt.stopID {
			t.Errorf("projection %d: expected stop %s, got %s", tt.idx, tt.stopID, p.StopID)
		}
		if math.Abs(p.MinutesAway-tt.wantMinutes) > 0.05 {
			t.Errorf("stop %s: expected %.2f min, got %.2f min", tt.stopID, tt.wantMinutes, p.MinutesAway)
		}
		wantArrival := now.Add(time.Duration(tt.wantMinutes * float64(time.Minute)))
		if d := p.ArrivalAt.Sub(wantArrival); d < -3*time.Second || d > 3*time.Second {
			t.Errorf("stop %s: arrival %v, want about %v", tt.stopID, p.ArrivalAt, wantArrival)
		}
		if p.LowConfidence {
			t.Errorf("stop %s: on-route projection must not be low confidence", tt.stopID)
		}
	}

	if projs[0].MinutesAway >= projs[1].MinutesAway {
		t.Error("arrival times must increase with stop order")
	}
	if math.Abs(projs[0].Progress-0.5/3) > 0.01 {
		t.Errorf("expected progress ~0.167, got %.4f", projs[0].Progress)
	}
}

func TestProjectAtStop(t *testing.T) {
	e := testEngine(t, testIndex(t, true), store.NewStore(0.4))

	projs, err := e.ProjectState(stateAt(1.0, 20))
	if err != nil {
		t.Fatalf("ProjectState failed: %v", err)
	}
	if len(projs) != 2 || projs[0].StopID != "B" {
		t.Fatalf("expected B and C, got %+v", projs)
	}
	if projs[0].MinutesAway > 0.1 {
		t.Errorf("vehicle at stop B should see ~0 minutes, got %.3f", projs[0].MinutesAway)
	}
}

func TestProjectFinalStop(t *testing.T) {
	e := testEngine(t, testIndex(t, true), store.NewStore(0.4))

	projs, err := e.ProjectState(stateAt(3.0, 20))
	if err != nil {
		t.Fatalf("ProjectState failed: %v", err)
	}
	if len(projs) != 1 || projs[0].StopID != "C" {
		t.Fatalf("expected only the final stop, got %+v", projs)
	}
	if projs[0].MinutesAway > 0.1 {
		t.Errorf("expected ~0 minutes at the terminus, got %.3f", projs[0].MinutesAway)
	}
	if projs[0].Progress < 0.999 {
		t.Errorf("expected progress ~1 at the terminus, got %.4f", projs[0].Progress)
	}
}

func TestProjectStoppedVehicleUsesScheduledSpeed(t *testing.T) {
	e := testEngine(t, testIndex(t, true), store.NewStore(0.4))

	// Smoothed speed below the moving threshold falls back to the route's
	// scheduled 20 km/h, so the result matches the moving case.
	projs, err := e.ProjectState(stateAt(0.5, 1))
	if err != nil {
		t.Fatalf("ProjectState failed: %v", err)
	}
	if math.Abs(projs[0].MinutesAway-1.5) > 0.05 {
		t.Errorf("expected scheduled-speed fallback of 1.5 min, got %.2f", projs[0].MinutesAway)
	}
}

func TestProjectUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		state   store.VehicleState
		active  bool
		wantErr error
	}{
		{
			name: "stale report",
			state: func() store.VehicleState {
				s := stateAt(0.5, 20)
				s.LastReport = now.Add(-2 * time.Minute)
				return s
			}(),
			active:  true,
			wantErr: ErrUnavailable,
		},
		{
			name: "out of service",
			state: func() store.VehicleState {
				s := stateAt(0.5, 20)
				s.Status = store.StatusOutOfService
				return s
			}(),
			active:  true,
			wantErr: ErrUnavailable,
		},
		{
			name:    "inactive route",
			state:   stateAt(0.5, 20),
			active:  false,
			wantErr: ErrRouteUnavailable,
		},
		{
			name: "unassigned route",
			state: func() store.VehicleState {
				s := stateAt(0.5, 20)
				s.RouteID = "no-such-route"
				return s
			}(),
			active:  true,
			wantErr: ErrRouteUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEngine(t, testIndex(t, tt.active), store.NewStore(0.4))
			if _, err := e.ProjectState(tt.state); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestProjectUnknownVehicle(t *testing.T) {
	e := testEngine(t, testIndex(t, true), store.NewStore(0.4))
	if _, err := e.Project("ghost"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestProjectOffRoute(t *testing.T) {
	e := testEngine(t, testIndex(t, true), store.NewStore(0.4))

	// One km east of the corridor, well beyond the off-route threshold.
	st := stateAt(1.0, 20)
	st.Lon = 1.0 / kmPerDegLat

	projs, err := e.ProjectState(st)
	if err != nil {
		t.Fatalf("ProjectState failed: %v", err)
	}
	if len(projs) == 0 {
		t.Fatal("expected low-confidence projections")
	}
	for _, p := range projs {
		if !p.LowConfidence {
			t.Errorf("stop %s: off-route projection must be low confidence", p.StopID)
		}
	}
	// Nearest stop is B; the straight-line distance to it is ~1 km.
	if projs[0].StopID != "B" {
		t.Errorf("expected projections from the nearest stop onward, got %s first", projs[0].StopID)
	}
	if math.Abs(projs[0].MinutesAway-3.0) > 0.1 {
		t.Errorf("expected ~3 min to the nearest stop, got %.2f", projs[0].MinutesAway)
	}
}
