package fleetengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/transitops/fleetengine/config"
	"github.com/transitops/fleetengine/eta"
	"github.com/transitops/fleetengine/ingest"
	"github.com/transitops/fleetengine/metrics"
	"github.com/transitops/fleetengine/monitor"
	"github.com/transitops/fleetengine/registry"
	"github.com/transitops/fleetengine/snapshot"
	"github.com/transitops/fleetengine/store"
)

// Engine wires the registry, store, ingest pipeline, ETA engine, snapshot
// broadcaster, and staleness monitor into one runnable service.
type Engine struct {
	cfg     *config.AppConfig
	log     *slog.Logger
	metrics *metrics.Collector

	index atomic.Pointer[registry.Index]

	store       *store.Store
	pipeline    *ingest.Pipeline
	eta         *eta.Engine
	broadcaster *snapshot.Broadcaster
	monitor     *monitor.Monitor

	subscriber *ingest.Subscriber
	poller     *ingest.Poller
	snapPub    *snapshot.Publisher
}

// New builds the engine. A registry that cannot be loaded is fatal: without
// route geometry there is nothing to project against.
func New(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewCollector(),
	}

	idx, err := loadRegistry(ctx, cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	e.index.Store(idx)
	log.Info("registry loaded", "routes", len(idx.RouteIDs()), "vehicles", len(idx.VehicleIDs()))

	e.store = store.NewStore(cfg.ETA.SmoothingAlpha)
	e.pipeline = ingest.NewPipeline(e.Index, e.store, cfg.Ingest.MaxSpeedKMH, e.metrics, log)
	e.eta = eta.NewEngine(e.Index, e.store, eta.Options{
		MinMovingKMH:    cfg.ETA.MinMovingKMH,
		DefaultSpeedKMH: cfg.ETA.DefaultSpeedKMH,
		MaxOffRouteKM:   cfg.ETA.MaxOffRouteKM,
		Staleness:       cfg.ETA.Staleness(),
	})

	if cfg.Snapshot.NATSURL != "" {
		pub, err := snapshot.NewPublisher(cfg.Snapshot.NATSURL, cfg.Snapshot.NATSSubject, log)
		if err != nil {
			return nil, err
		}
		e.snapPub = pub
	}
	e.broadcaster = snapshot.NewBroadcaster(e.store, e.eta, cfg.Snapshot.Interval(), e.snapPub, e.metrics, log)
	e.monitor = monitor.NewMonitor(e.store, e.Index, cfg.Monitor.StalenessThreshold(), cfg.Monitor.SweepInterval(), e.metrics, log)

	if cfg.Ingest.NATSURL != "" {
		sub, err := ingest.NewSubscriber(cfg.Ingest.NATSURL, cfg.Ingest.NATSSubject, e.pipeline, log)
		if err != nil {
			return nil, err
		}
		e.subscriber = sub
	}
	if cfg.Ingest.VehiclePositionsURL != "" {
		e.poller = ingest.NewPoller(cfg.Ingest.VehiclePositionsURL, cfg.Ingest.PollInterval(), e.pipeline, log)
	}

	return e, nil
}

func loadRegistry(ctx context.Context, cfg config.RegistryConfig) (*registry.Index, error) {
	switch {
	case cfg.Path != "":
		return registry.LoadFile(cfg.Path)
	case cfg.PostgresDSN != "":
		return registry.LoadPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("no registry source configured")
	}
}

// Index returns the current registry index. The pointer swaps atomically on
// reload, so callers always see a complete index.
func (e *Engine) Index() *registry.Index {
	return e.index.Load()
}

// ReloadRegistry reloads the registry from its configured source and swaps
// it in. In-flight reads keep the index they already hold.
func (e *Engine) ReloadRegistry(ctx context.Context) error {
	idx, err := loadRegistry(ctx, e.cfg.Registry)
	if err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	e.index.Store(idx)
	e.log.Info("registry reloaded", "routes", len(idx.RouteIDs()), "vehicles", len(idx.VehicleIDs()))
	return nil
}

// Ingest feeds a single raw report through the pipeline. It exists for
// embedding callers; the NATS and GTFS-RT feeds go through the same path.
func (e *Engine) Ingest(r ingest.RawReport) error {
	return e.pipeline.Ingest(r)
}

// GetFleetSnapshot returns the latest broadcast snapshot, building one on
// demand before the first cycle completes.
func (e *Engine) GetFleetSnapshot() snapshot.FleetSnapshot {
	if snap, ok := e.broadcaster.Latest(); ok {
		return snap
	}
	return e.broadcaster.BuildSnapshot()
}

// GetVehicle returns the current state of one vehicle.
func (e *Engine) GetVehicle(vehicleID string) (store.VehicleState, error) {
	return e.store.Get(vehicleID)
}

// GetETA returns the arrival projections for one vehicle.
func (e *Engine) GetETA(vehicleID string) ([]eta.Projection, error) {
	return e.eta.Project(vehicleID)
}

// Subscribe registers a push snapshot subscriber bound to ctx.
func (e *Engine) Subscribe(ctx context.Context) <-chan snapshot.FleetSnapshot {
	return e.broadcaster.Subscribe(ctx)
}

// Run starts the feeds, the monitor, the broadcaster, and the HTTP server,
// and blocks until the context is cancelled and everything has stopped.
func (e *Engine) Run(ctx context.Context) error {
	// A server failure must also stop the feeds, not just the reverse.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.broadcaster.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.monitor.Run(ctx)
	}()

	if e.subscriber != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.subscriber.Run(ctx); err != nil {
				e.log.Error("report feed stopped", "error", err)
			}
		}()
	}
	if e.poller != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.poller.Run(ctx)
		}()
	}

	err := e.serveHTTP(ctx)
	cancel()

	wg.Wait()
	if e.snapPub != nil {
		e.snapPub.Close()
	}
	return err
}
