package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/transitops/fleetengine/eta"
	"github.com/transitops/fleetengine/registry"
	"github.com/transitops/fleetengine/store"
)

func testFixtures(t *testing.T) (*store.Store, *eta.Engine) {
	t.Helper()
	idx, err := registry.NewIndex(&registry.Document{
		Routes: []registry.Route{
			{
				ID:          "line-9",
				Active:      true,
				AvgSpeedKMH: 20,
				Stops: []registry.Stop{
					{ID: "A", Lat: 0, Lon: 0},
					{ID: "B", Lat: 0.01, Lon: 0},
				},
			},
		},
		Vehicles: []registry.Vehicle{
			{ID: "bus-1", RouteID: "line-9"},
			{ID: "bus-2", RouteID: "line-9"},
		},
	})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	st := store.NewStore(0.4)
	engine := eta.NewEngine(func() *registry.Index { return idx }, st, eta.Options{
		MinMovingKMH:    3,
		DefaultSpeedKMH: 18,
		MaxOffRouteKM:   0.25,
		Staleness:       time.Minute,
	})
	return st, engine
}

func applyReport(t *testing.T, st *store.Store, vehicle, route string) {
	t.Helper()
	_, err := st.ApplyReport(store.Report{
		VehicleID: vehicle,
		RouteID:   route,
		Lat:       0.001,
		Lon:       0,
		Timestamp: time.Now(),
		SpeedKMH:  20,
		HasSpeed:  true,
	})
	if err != nil {
		t.Fatalf("ApplyReport failed: %v", err)
	}
}

func TestBuildSnapshotOrdersAndIsolatesFailures(t *testing.T) {
	st, engine := testFixtures(t)
	b := NewBroadcaster(st, engine, time.Second, nil, nil, nil)

	applyReport(t, st, "bus-2", "line-9")
	applyReport(t, st, "bus-1", "no-such-route") // projection will fail

	snap := b.BuildSnapshot()
	if len(snap.Vehicles) != 2 {
		t.Fatalf("expected 2 vehicles, got %d", len(snap.Vehicles))
	}
	if snap.Vehicles[0].State.VehicleID != "bus-1" || snap.Vehicles[1].State.VehicleID != "bus-2" {
		t.Errorf("vehicles not ordered by id: %s, %s",
			snap.Vehicles[0].State.VehicleID, snap.Vehicles[1].State.VehicleID)
	}

	broken := snap.Vehicles[0]
	if !broken.ETAUnavailable || broken.Projections != nil {
		t.Errorf("bus-1 should carry state with no projections: %+v", broken)
	}
	healthy := snap.Vehicles[1]
	if healthy.ETAUnavailable || len(healthy.Projections) == 0 {
		t.Errorf("bus-2 projections should be unaffected: %+v", healthy)
	}
}

func TestLatestIsCachedPerCycle(t *testing.T) {
	st, engine := testFixtures(t)
	b := NewBroadcaster(st, engine, time.Second, nil, nil, nil)

	if _, ok := b.Latest(); ok {
		t.Error("no snapshot should exist before the first cycle")
	}

	applyReport(t, st, "bus-1", "line-9")
	b.publish(b.BuildSnapshot())

	snap, ok := b.Latest()
	if !ok {
		t.Fatal("expected a cached snapshot after publish")
	}
	if len(snap.Vehicles) != 1 {
		t.Errorf("expected 1 vehicle in the cached snapshot, got %d", len(snap.Vehicles))
	}
}

func TestSubscribeDeliversAndCancels(t *testing.T) {
	st, engine := testFixtures(t)
	b := NewBroadcaster(st, engine, time.Second, nil, nil, nil)
	applyReport(t, st, "bus-1", "line-9")

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	ctxB, cancelB := context.WithCancel(context.Background())

	chA := b.Subscribe(ctxA)
	chB := b.Subscribe(ctxB)

	b.publish(b.BuildSnapshot())

	for name, ch := range map[string]<-chan FleetSnapshot{"A": chA, "B": chB} {
		select {
		case snap := <-ch:
			if len(snap.Vehicles) != 1 {
				t.Errorf("subscriber %s: unexpected snapshot %+v", name, snap)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s did not receive the snapshot", name)
		}
	}

	// Cancelling one subscriber must not disturb the other.
	cancelB()
	for {
		if _, open := <-chB; !open {
			break
		}
	}

	b.publish(b.BuildSnapshot())
	select {
	case snap, open := <-chA:
		if !open {
			t.Fatal("remaining subscription was closed")
		}
		if len(snap.Vehicles) != 1 {
			t.Errorf("unexpected snapshot %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber did not receive the snapshot")
	}
}

func TestSlowSubscriberSeesNewestSnapshot(t *testing.T) {
	st, engine := testFixtures(t)
	b := NewBroadcaster(st, engine, time.Second, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx)

	applyReport(t, st, "bus-1", "line-9")
	b.publish(b.BuildSnapshot())

	// Second cycle arrives before the consumer reads the first.
	applyReport(t, st, "bus-2", "line-9")
	b.publish(b.BuildSnapshot())

	select {
	case snap := <-ch:
		if len(snap.Vehicles) != 2 {
			t.Errorf("slow consumer should see the newest snapshot, got %d vehicles", len(snap.Vehicles))
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}
