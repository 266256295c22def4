package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/transitops/fleetengine/eta"
	"github.com/transitops/fleetengine/store"
)

// VehicleEntry pairs one vehicle's state with its projections. A projection
// failure for one vehicle marks only that entry unavailable; it never blocks
// the rest of the fleet.
type VehicleEntry struct {
	State          store.VehicleState `json:"state"`
	Projections    []eta.Projection   `json:"projections,omitempty"`
	ETAUnavailable bool               `json:"etaUnavailable,omitempty"`
}

// FleetSnapshot is a consistent point-in-time read of the whole fleet plus
// derived ETAs. Consistency is per vehicle: each entry is a complete state
// record; cross-vehicle simultaneity is not promised.
type FleetSnapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Vehicles  []VehicleEntry `json:"vehicles"`
}

// Metrics is the subset of the metrics collector the broadcaster reports to.
type Metrics interface {
	SnapshotBuilt(d time.Duration)
	SnapshotPublished()
	SetSubscribers(n int)
}

// Broadcaster builds fleet snapshots on a fixed cadence, decoupled from how
// often individual vehicles report, and fans them out to subscribers and an
// optional NATS publisher.
type Broadcaster struct {
	store    *store.Store
	engine   *eta.Engine
	interval time.Duration
	pub      *Publisher
	metrics  Metrics
	log      *slog.Logger

	mu     sync.RWMutex
	subs   map[string]chan FleetSnapshot
	latest *FleetSnapshot
}

// NewBroadcaster creates a broadcaster. pub and metrics may be nil.
func NewBroadcaster(st *store.Store, engine *eta.Engine, interval time.Duration, pub *Publisher, m Metrics, log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Broadcaster{
		store:    st,
		engine:   engine,
		interval: interval,
		pub:      pub,
		metrics:  m,
		log:      log,
		subs:     map[string]chan FleetSnapshot{},
	}
}

// BuildSnapshot assembles a snapshot from the current store contents.
// Vehicles are ordered by id for stable output.
func (b *Broadcaster) BuildSnapshot() FleetSnapshot {
	start := time.Now()
	states := b.store.List()
	sort.Slice(states, func(i, j int) bool { return states[i].VehicleID < states[j].VehicleID })

	snap := FleetSnapshot{
		Timestamp: start,
		Vehicles:  make([]VehicleEntry, 0, len(states)),
	}
	for _, st := range states {
		entry := VehicleEntry{State: st}
		projs, err := b.engine.ProjectState(st)
		switch {
		case err == nil:
			entry.Projections = projs
		case errors.Is(err, eta.ErrUnavailable) || errors.Is(err, eta.ErrRouteUnavailable):
			entry.ETAUnavailable = true
		default:
			entry.ETAUnavailable = true
			b.log.Warn("projection failed", "vehicle", st.VehicleID, "error", err)
		}
		snap.Vehicles = append(snap.Vehicles, entry)
	}

	if b.metrics != nil {
		b.metrics.SnapshotBuilt(time.Since(start))
	}
	return snap
}

// Latest returns the snapshot from the most recent broadcast cycle, so read
// handlers do not rebuild per request. The second return is false before the
// first cycle completes.
func (b *Broadcaster) Latest() (FleetSnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latest == nil {
		return FleetSnapshot{}, false
	}
	return *b.latest, true
}

// Subscribe registers a push subscriber. The channel holds the most recent
// snapshot only: a slow consumer sees the newest, not a backlog. Cancelling
// the context releases the subscription with no effect on other subscribers.
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan FleetSnapshot {
	id := uuid.NewString()
	ch := make(chan FleetSnapshot, 1)

	b.mu.Lock()
	b.subs[id] = ch
	n := len(b.subs)
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.SetSubscribers(n)
	}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if cur, ok := b.subs[id]; ok && cur == ch {
			delete(b.subs, id)
			close(ch)
		}
		n := len(b.subs)
		b.mu.Unlock()
		if b.metrics != nil {
			b.metrics.SetSubscribers(n)
		}
	}()

	return ch
}

// Run publishes snapshots on the configured interval until the context is
// cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.publish(b.BuildSnapshot())
		}
	}
}

func (b *Broadcaster) publish(snap FleetSnapshot) {
	b.mu.Lock()
	b.latest = &snap
	for _, ch := range b.subs {
		// Keep only the newest snapshot for slow consumers.
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	b.mu.Unlock()

	if b.pub != nil {
		if err := b.pub.Publish(snap); err != nil {
			b.log.Warn("snapshot publish failed", "error", err)
		}
	}
	if b.metrics != nil {
		b.metrics.SnapshotPublished()
	}
}
