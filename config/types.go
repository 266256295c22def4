package config

import "time"

// ServerConfig contains the HTTP listener configuration
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0"`
}

// RegistryConfig selects the route/vehicle registry source.
// Exactly one of Path or PostgresDSN is expected; Path wins when both are set.
type RegistryConfig struct {
	Path        string `yaml:"path" validate:"omitempty"`
	PostgresDSN string `yaml:"postgresDSN" validate:"omitempty"`
}

// IngestConfig contains position-report intake configuration
type IngestConfig struct {
	MaxSpeedKMH float64 `yaml:"maxSpeedKMH" validate:"gte=0"`

	// NATS report feed (optional)
	NATSURL     string `yaml:"natsURL" validate:"omitempty"`
	NATSSubject string `yaml:"natsSubject" validate:"omitempty"`

	// GTFS-RT VehiclePositions feed (optional), URL or local file path
	VehiclePositionsURL string `yaml:"vehiclePositionsURL" validate:"omitempty"`
	PollIntervalMS      int    `yaml:"pollIntervalMS" validate:"gte=0"`
}

// ETAConfig contains arrival-projection tuning
type ETAConfig struct {
	SmoothingAlpha   float64 `yaml:"smoothingAlpha" validate:"gte=0,lte=1"`
	MinMovingKMH     float64 `yaml:"minMovingKMH" validate:"gte=0"`
	DefaultSpeedKMH  float64 `yaml:"defaultSpeedKMH" validate:"gte=0"`
	MaxOffRouteKM    float64 `yaml:"maxOffRouteKM" validate:"gte=0"`
	StalenessSeconds int     `yaml:"stalenessSeconds" validate:"gte=0"`
}

// SnapshotConfig contains broadcaster cadence and fan-out configuration
type SnapshotConfig struct {
	IntervalMS  int    `yaml:"intervalMS" validate:"gte=0"`
	NATSURL     string `yaml:"natsURL" validate:"omitempty"`
	NATSSubject string `yaml:"natsSubject" validate:"omitempty"`
}

// MonitorConfig contains the staleness sweep configuration
type MonitorConfig struct {
	SweepIntervalMS  int `yaml:"sweepIntervalMS" validate:"gte=0"`
	StalenessSeconds int `yaml:"stalenessSeconds" validate:"gte=0"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server   ServerConfig   `yaml:"server" validate:"required"`
	Registry RegistryConfig `yaml:"registry"`
	Ingest   IngestConfig   `yaml:"ingest"`
	ETA      ETAConfig      `yaml:"eta"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	LogLevel string         `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
}

// PollInterval returns the GTFS-RT poll cadence as a duration
func (c IngestConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Interval returns the snapshot publish cadence as a duration
func (c SnapshotConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// SweepInterval returns the staleness sweep cadence as a duration
func (c MonitorConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

// StalenessThreshold returns the report gap after which a vehicle is
// marked out of service.
func (c MonitorConfig) StalenessThreshold() time.Duration {
	return time.Duration(c.StalenessSeconds) * time.Second
}

// Staleness returns the report gap after which projections are withheld
func (c ETAConfig) Staleness() time.Duration {
	return time.Duration(c.StalenessSeconds) * time.Second
}
