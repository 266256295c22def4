package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/transitops/fleetengine/registry"
	"github.com/transitops/fleetengine/store"
)

var (
	// ErrUnknownVehicle rejects reports for vehicles the registry has no
	// assignment for.
	ErrUnknownVehicle = errors.New("unknown vehicle")

	// ErrImplausibleValue rejects reports with coordinates outside bounds,
	// negative or runaway speeds, or a missing timestamp.
	ErrImplausibleValue = errors.New("implausible value")
)

// RawReport is a position report as delivered by a feed, before validation.
type RawReport struct {
	VehicleID  string   `json:"vehicleId"`
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	SpeedKMH   *float64 `json:"speedKMH,omitempty"`
	HeadingDeg *float64 `json:"headingDeg,omitempty"`
	Timestamp  int64    `json:"timestamp"` // unix seconds
	Seq        uint64   `json:"seq,omitempty"`
}

// Metrics is the subset of the metrics collector the pipeline reports to.
type Metrics interface {
	ReportAccepted()
	ReportRejected(reason string)
}

// Pipeline validates raw position reports and folds accepted ones into the
// store. Rejected reports are dropped, never retried; the rejection reason is
// returned to the caller and counted. Duplicate redelivery is rejected as
// out-of-order, which makes the pipeline idempotent per ordering key.
type Pipeline struct {
	index       func() *registry.Index
	store       *store.Store
	maxSpeedKMH float64
	metrics     Metrics
	log         *slog.Logger
}

// NewPipeline creates a pipeline. index is called per report so that
// out-of-band registry reloads take effect without restarting feeds.
// metrics may be nil.
func NewPipeline(index func() *registry.Index, st *store.Store, maxSpeedKMH float64, m Metrics, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		index:       index,
		store:       st,
		maxSpeedKMH: maxSpeedKMH,
		metrics:     m,
		log:         log,
	}
}

// Ingest validates one report and applies it to the store. A nil return
// means accepted. Rejections are one of ErrUnknownVehicle,
// ErrImplausibleValue, or store.ErrOutOfOrder.
func (p *Pipeline) Ingest(r RawReport) error {
	idx := p.index()

	err := p.apply(idx, r)
	if err != nil {
		if p.metrics != nil {
			p.metrics.ReportRejected(reasonFor(err))
		}
		p.log.Debug("report rejected",
			"vehicle", r.VehicleID,
			"seq", r.Seq,
			"reason", reasonFor(err),
		)
		return err
	}
	if p.metrics != nil {
		p.metrics.ReportAccepted()
	}
	return nil
}

func (p *Pipeline) apply(idx *registry.Index, r RawReport) error {
	routeID, known := idx.RouteForVehicle(r.VehicleID)
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownVehicle, r.VehicleID)
	}
	if r.Lat < -90 || r.Lat > 90 || r.Lon < -180 || r.Lon > 180 {
		return fmt.Errorf("%w: position (%f, %f)", ErrImplausibleValue, r.Lat, r.Lon)
	}
	if r.Timestamp <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrImplausibleValue)
	}
	if r.SpeedKMH != nil && (*r.SpeedKMH < 0 || *r.SpeedKMH > p.maxSpeedKMH) {
		return fmt.Errorf("%w: speed %.1f km/h", ErrImplausibleValue, *r.SpeedKMH)
	}

	rep := store.Report{
		VehicleID: r.VehicleID,
		RouteID:   routeID,
		Lat:       r.Lat,
		Lon:       r.Lon,
		Timestamp: time.Unix(r.Timestamp, 0),
		Seq:       r.Seq,
	}
	if r.SpeedKMH != nil {
		rep.SpeedKMH = *r.SpeedKMH
		rep.HasSpeed = true
	}
	if r.HeadingDeg != nil {
		rep.HeadingDeg = *r.HeadingDeg
		rep.HasHeading = true
	}

	// Resolve the last confirmed stop from the route projection. An
	// off-route position leaves the previous value in place.
	if prog, ok := idx.Project(routeID, r.Lat, r.Lon); ok {
		if stop, reached := idx.LastStopReached(routeID, prog.DistAlongKM); reached {
			rep.LastStopID = stop.ID
		}
	}

	_, err := p.store.ApplyReport(rep)
	return err
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrUnknownVehicle):
		return "unknown_vehicle"
	case errors.Is(err, store.ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, ErrImplausibleValue):
		return "implausible_value"
	default:
		return "other"
	}
}
