package store

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/transitops/fleetengine/geo"
)

var (
	// ErrOutOfOrder rejects a report whose ordering key does not supersede
	// the stored state. The store is left untouched.
	ErrOutOfOrder = errors.New("out-of-order report")

	// ErrNotFound is returned for vehicles the store has never seen.
	ErrNotFound = errors.New("vehicle not found")
)

const shardCount = 16

type shard struct {
	mu       sync.RWMutex
	vehicles map[string]*VehicleState
}

// Store is the authoritative, concurrency-safe table of per-vehicle state.
// Vehicle ids are partitioned across shards so that writers for different
// vehicles proceed in parallel; a single vehicle's updates serialize on its
// shard lock. Stored records are immutable: updates build a fresh record and
// swap the pointer, so readers never observe a half-applied update.
type Store struct {
	smoothingAlpha float64
	shards         [shardCount]shard
}

// NewStore creates an empty store. smoothingAlpha is the EWMA weight applied
// to new speed observations, clamped to (0, 1].
func NewStore(smoothingAlpha float64) *Store {
	if smoothingAlpha <= 0 || smoothingAlpha > 1 {
		smoothingAlpha = 0.4
	}
	s := &Store{smoothingAlpha: smoothingAlpha}
	for i := range s.shards {
		s.shards[i].vehicles = map[string]*VehicleState{}
	}
	return s
}

func (s *Store) shardFor(vehicleID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(vehicleID))
	return &s.shards[h.Sum32()%shardCount]
}

// ApplyReport folds a report into the vehicle's state, last-writer-wins by
// ordering key. Heading and speed are derived from the previous position when
// the report does not carry them. A report that does not supersede the stored
// state returns ErrOutOfOrder and changes nothing.
func (s *Store) ApplyReport(r Report) (VehicleState, error) {
	sh := s.shardFor(r.VehicleID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur := sh.vehicles[r.VehicleID]
	if cur != nil && !r.supersedes(cur) {
		return VehicleState{}, ErrOutOfOrder
	}

	next := &VehicleState{
		VehicleID:  r.VehicleID,
		RouteID:    r.RouteID,
		Lat:        r.Lat,
		Lon:        r.Lon,
		Status:     StatusOnTime,
		LastReport: r.Timestamp,
		Seq:        r.Seq,
		LastStopID: r.LastStopID,
	}

	speed := r.SpeedKMH
	hasSpeed := r.HasSpeed
	if cur != nil {
		// A valid report reactivates an out-of-service vehicle; a delayed
		// vehicle stays delayed until the monitor clears it.
		if cur.Status == StatusDelayed {
			next.Status = StatusDelayed
		}
		if next.LastStopID == "" {
			next.LastStopID = cur.LastStopID
		}
		if !hasSpeed {
			if dt := r.Timestamp.Sub(cur.LastReport).Hours(); dt > 0 {
				speed = geo.HaversineKM(cur.Lat, cur.Lon, r.Lat, r.Lon) / dt
				hasSpeed = true
			}
		}
	}
	if !hasSpeed {
		speed = 0
	}
	next.SpeedKMH = speed

	switch {
	case cur == nil:
		next.SmoothedSpeedKMH = speed
	default:
		next.SmoothedSpeedKMH = s.smoothingAlpha*speed + (1-s.smoothingAlpha)*cur.SmoothedSpeedKMH
	}

	switch {
	case r.HasHeading:
		next.HeadingDeg = r.HeadingDeg
	case cur != nil && (cur.Lat != r.Lat || cur.Lon != r.Lon):
		next.HeadingDeg = geo.BearingDeg(cur.Lat, cur.Lon, r.Lat, r.Lon)
	case cur != nil:
		next.HeadingDeg = cur.HeadingDeg
	}

	sh.vehicles[r.VehicleID] = next
	return *next, nil
}

// Get returns a copy of the vehicle's current state.
func (s *Store) Get(vehicleID string) (VehicleState, error) {
	sh := s.shardFor(vehicleID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	cur, ok := sh.vehicles[vehicleID]
	if !ok {
		return VehicleState{}, ErrNotFound
	}
	return *cur, nil
}

// List returns a copy of every vehicle's current state. Each shard is read
// under its own lock, so the result is point-in-time consistent per vehicle
// and never blocks writers for longer than one shard scan.
func (s *Store) List() []VehicleState {
	out := make([]VehicleState, 0, s.Len())
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, v := range sh.vehicles {
			out = append(out, *v)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Len returns the number of vehicles the store has seen.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.vehicles)
		sh.mu.RUnlock()
	}
	return n
}

// MarkOutOfService transitions a vehicle to out-of-service, but only while
// its last report is still older than the given cutoff. The cutoff re-check
// under the shard lock prevents a sweep from deactivating a vehicle that
// reported between the sweep's read and this write. Returns true when the
// status actually changed.
func (s *Store) MarkOutOfService(vehicleID string, reportedBefore time.Time) bool {
	return s.setStatus(vehicleID, StatusOutOfService, func(cur *VehicleState) bool {
		return cur.LastReport.Before(reportedBefore)
	})
}

// MarkDelayed flags a vehicle as delayed. Out-of-service vehicles are left
// alone. Returns true when the status actually changed.
func (s *Store) MarkDelayed(vehicleID string) bool {
	return s.setStatus(vehicleID, StatusDelayed, func(cur *VehicleState) bool {
		return cur.Status != StatusOutOfService
	})
}

// MarkOnTime clears a delayed flag. Out-of-service vehicles are left alone.
func (s *Store) MarkOnTime(vehicleID string) bool {
	return s.setStatus(vehicleID, StatusOnTime, func(cur *VehicleState) bool {
		return cur.Status == StatusDelayed
	})
}

func (s *Store) setStatus(vehicleID string, status Status, when func(*VehicleState) bool) bool {
	sh := s.shardFor(vehicleID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := sh.vehicles[vehicleID]
	if !ok || cur.Status == status || !when(cur) {
		return false
	}
	next := *cur
	next.Status = status
	sh.vehicles[vehicleID] = &next
	return true
}
