package fleetengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

func (e *Engine) router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", e.handleHealth)
	mux.HandleFunc("GET /api/fleet/snapshot", e.handleFleetSnapshot)
	mux.HandleFunc("GET /api/fleet/stream", e.handleFleetStream)
	mux.HandleFunc("GET /api/vehicles/{id}", e.handleVehicle)
	mux.HandleFunc("GET /api/vehicles/{id}/eta", e.handleVehicleETA)
	mux.Handle("GET /metrics", e.metrics.Handler())
	return mux
}

func (e *Engine) serveHTTP(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", e.cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           e.router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	e.log.Info("server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		e.log.Warn("server shutdown error", "error", err)
		return err
	}
	e.log.Info("server shut down")
	return <-errCh
}
