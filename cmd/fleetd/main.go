package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	fleetengine "github.com/transitops/fleetengine"
	"github.com/transitops/fleetengine/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default $FLEETD_CONFIG, then ./config.yml)")
	flag.Parse()

	// Optional .env file for DSNs and broker URLs.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	log := fleetengine.InitLogging(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := fleetengine.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				log.Info("reloading registry on SIGHUP")
				if err := engine.ReloadRegistry(ctx); err != nil {
					log.Error("registry reload failed", "error", err)
				}
			default:
				log.Info("shutting down", "signal", sig.String())
				cancel()
				return
			}
		}
	}()

	if err := engine.Run(ctx); err != nil {
		log.Error("engine stopped", "error", err)
		os.Exit(1)
	}
}
