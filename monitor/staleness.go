package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/transitops/fleetengine/registry"
	"github.com/transitops/fleetengine/store"
)

// Metrics is the subset of the metrics collector the monitor reports to.
type Metrics interface {
	SetVehicleCounts(active, stale int)
	StaleTransition()
}

// Monitor sweeps the store on a fixed interval, marking vehicles
// out-of-service when reports stop arriving. The sweep is the only place the
// engine itself sets that status; a fresh valid report reactivates the
// vehicle on its way through the store. The sweep also maintains the delayed
// flag for vehicles running well under their route's scheduled speed.
type Monitor struct {
	store     *store.Store
	index     func() *registry.Index
	threshold time.Duration
	interval  time.Duration
	metrics   Metrics
	log       *slog.Logger
	now       func() time.Time
}

// NewMonitor creates a monitor. metrics may be nil.
func NewMonitor(st *store.Store, index func() *registry.Index, threshold, interval time.Duration, m Metrics, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	if threshold <= 0 {
		threshold = 60 * time.Second
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		store:     st,
		index:     index,
		threshold: threshold,
		interval:  interval,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// Run sweeps until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep walks every vehicle once, O(number of vehicles). Per-vehicle
// transitions are independent; one vehicle never blocks the rest.
func (m *Monitor) Sweep() {
	now := m.now()
	cutoff := now.Add(-m.threshold)
	idx := m.index()

	active, stale := 0, 0
	for _, st := range m.store.List() {
		if st.LastReport.Before(cutoff) {
			stale++
			if m.store.MarkOutOfService(st.VehicleID, cutoff) {
				if m.metrics != nil {
					m.metrics.StaleTransition()
				}
				m.log.Info("vehicle out of service",
					"vehicle", st.VehicleID,
					"lastReport", st.LastReport,
				)
			}
			continue
		}
		active++
		m.checkDelay(idx, st)
	}

	if m.metrics != nil {
		m.metrics.SetVehicleCounts(active, stale)
	}
}

// checkDelay flags vehicles whose smoothed speed has fallen under half the
// route's scheduled speed, and clears the flag once they recover.
func (m *Monitor) checkDelay(idx *registry.Index, st store.VehicleState) {
	sched := idx.ScheduledSpeedKMH(st.RouteID)
	if sched <= 0 {
		return
	}
	if st.SmoothedSpeedKMH < sched/2 {
		if m.store.MarkDelayed(st.VehicleID) {
			m.log.Debug("vehicle delayed", "vehicle", st.VehicleID, "smoothedKMH", st.SmoothedSpeedKMH)
		}
		return
	}
	m.store.MarkOnTime(st.VehicleID)
}
