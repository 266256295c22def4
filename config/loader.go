package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load reads, validates, and defaults the application configuration.
// When path is empty, FLEETD_CONFIG and then ./config.yml are tried.
func Load(path string) (*AppConfig, error) {
	paths := []string{path, os.Getenv("FLEETD_CONFIG"), "config.yml"}
	var data []byte
	var err error
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 16780
	}
	if cfg.Ingest.MaxSpeedKMH == 0 {
		cfg.Ingest.MaxSpeedKMH = 150
	}
	if cfg.Ingest.PollIntervalMS == 0 {
		cfg.Ingest.PollIntervalMS = 15000
	}
	if cfg.Ingest.NATSSubject == "" {
		cfg.Ingest.NATSSubject = "fleet.reports.>"
	}
	if cfg.ETA.SmoothingAlpha == 0 {
		cfg.ETA.SmoothingAlpha = 0.4
	}
	if cfg.ETA.MinMovingKMH == 0 {
		cfg.ETA.MinMovingKMH = 3
	}
	if cfg.ETA.DefaultSpeedKMH == 0 {
		cfg.ETA.DefaultSpeedKMH = 18
	}
	if cfg.ETA.MaxOffRouteKM == 0 {
		cfg.ETA.MaxOffRouteKM = 0.25
	}
	if cfg.ETA.StalenessSeconds == 0 {
		cfg.ETA.StalenessSeconds = 60
	}
	if cfg.Snapshot.IntervalMS == 0 {
		cfg.Snapshot.IntervalMS = 3000
	}
	if cfg.Snapshot.NATSSubject == "" {
		cfg.Snapshot.NATSSubject = "fleet.snapshots"
	}
	if cfg.Monitor.SweepIntervalMS == 0 {
		cfg.Monitor.SweepIntervalMS = 5000
	}
	if cfg.Monitor.StalenessSeconds == 0 {
		cfg.Monitor.StalenessSeconds = 60
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}
