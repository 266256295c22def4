package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the engine's Prometheus registry. It satisfies the small
// metrics interfaces declared by the ingest, snapshot, and monitor packages.
type Collector struct {
	reg *prometheus.Registry

	ReportsAccepted prometheus.Counter
	ReportsRejected *prometheus.CounterVec // reason label

	ActiveVehicles prometheus.Gauge
	StaleVehicles  prometheus.Gauge
	StaleTotal     prometheus.Counter

	SnapshotsTotal   prometheus.Counter
	SnapshotDuration prometheus.Histogram
	Subscribers      prometheus.Gauge
}

// NewCollector builds and registers all engine metrics on a private registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ReportsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetd_reports_accepted_total",
			Help: "Total position reports accepted by the ingest pipeline.",
		}),
		ReportsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetd_reports_rejected_total",
			Help: "Total position reports rejected, by reason.",
		}, []string{"reason"}),
		ActiveVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetd_active_vehicles",
			Help: "Vehicles with a recent valid report.",
		}),
		StaleVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetd_stale_vehicles",
			Help: "Vehicles past the staleness threshold.",
		}),
		StaleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetd_stale_transitions_total",
			Help: "Total active-to-out-of-service transitions.",
		}),
		SnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetd_snapshots_published_total",
			Help: "Total fleet snapshots published.",
		}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetd_snapshot_build_duration_seconds",
			Help:    "Duration of snapshot assembly including projections.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetd_snapshot_subscribers",
			Help: "Currently registered snapshot subscribers.",
		}),
	}

	reg.MustRegister(
		c.ReportsAccepted, c.ReportsRejected,
		c.ActiveVehicles, c.StaleVehicles, c.StaleTotal,
		c.SnapshotsTotal, c.SnapshotDuration, c.Subscribers,
	)
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// ingest.Metrics

func (c *Collector) ReportAccepted()              { c.ReportsAccepted.Inc() }
func (c *Collector) ReportRejected(reason string) { c.ReportsRejected.WithLabelValues(reason).Inc() }

// snapshot.Metrics

func (c *Collector) SnapshotBuilt(d time.Duration) { c.SnapshotDuration.Observe(d.Seconds()) }
func (c *Collector) SnapshotPublished()            { c.SnapshotsTotal.Inc() }
func (c *Collector) SetSubscribers(n int)          { c.Subscribers.Set(float64(n)) }

// monitor.Metrics

func (c *Collector) SetVehicleCounts(active, stale int) {
	c.ActiveVehicles.Set(float64(active))
	c.StaleVehicles.Set(float64(stale))
}
func (c *Collector) StaleTransition() { c.StaleTotal.Inc() }
