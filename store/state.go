package store

import "time"

// Status is a vehicle's operational status.
type Status string

const (
	StatusOnTime       Status = "on-time"
	StatusDelayed      Status = "delayed"
	StatusOutOfService Status = "out-of-service"
)

// Report is a validated position report ready to be folded into the store.
// Seq is the per-vehicle sequence number; when a feed does not carry one,
// Timestamp alone decides ordering.
type Report struct {
	VehicleID  string
	RouteID    string
	Lat        float64
	Lon        float64
	SpeedKMH   float64
	HasSpeed   bool
	HeadingDeg float64
	HasHeading bool
	Timestamp  time.Time
	Seq        uint64
	LastStopID string
}

// VehicleState is the authoritative current state of one vehicle. Records
// handed out by the store are value copies; the store's own records are
// replaced wholesale on update, never mutated in place.
type VehicleState struct {
	VehicleID        string    `json:"vehicleId"`
	RouteID          string    `json:"routeId"`
	Lat              float64   `json:"lat"`
	Lon              float64   `json:"lon"`
	SpeedKMH         float64   `json:"speedKMH"`
	SmoothedSpeedKMH float64   `json:"smoothedSpeedKMH"`
	HeadingDeg       float64   `json:"headingDeg"`
	Status           Status    `json:"status"`
	LastReport       time.Time `json:"lastReport"`
	Seq              uint64    `json:"seq"`
	LastStopID       string    `json:"lastStopId,omitempty"`
}

// supersedes reports whether r should replace the stored state. Sequence
// numbers win when both sides carry one; otherwise the report timestamp
// decides. Equal keys do not supersede, which makes duplicate redelivery
// a no-op rejection.
func (r Report) supersedes(cur *VehicleState) bool {
	if r.Seq > 0 && cur.Seq > 0 {
		return r.Seq > cur.Seq
	}
	return r.Timestamp.After(cur.LastReport)
}
