package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	pprofhttp "net/http/pprof"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"routeconv/internal/config"
)

const (
	debugShutdownTimeout = 3 * time.Second
	debugReadHeaderTO    = 2 * time.Second
)

// startDebugServer starts optional pprof and /metrics endpoint and wires graceful shutdown.
// Params: ctx controls lifecycle; cfg provides enabled/listen options; gatherer serves /metrics; logger reports runtime events.
// Returns: stop function (idempotent), bound address (empty when disabled) and startup error.
func startDebugServer(
	ctx context.Context,
	cfg config.DebugConfig,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) (func(), string, error) {
	if !cfg.Enabled {
		return func() {}, "", nil
	}

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, "", fmt.Errorf("listen %q: %w", cfg.Listen, err)
	}
	addr := listener.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprofhttp.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprofhttp.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprofhttp.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprofhttp.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprofhttp.Trace)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: debugReadHeaderTO,
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), debugShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("debug server shutdown error", slog.String("error", err.Error()))
			}
		})
	}

	go func() {
		<-ctx.Done()
		stop()
	}()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("debug server failed", slog.String("addr", addr), slog.String("error", err.Error()))
		}
	}()

	logger.Info("debug server started", slog.String("addr", addr))
	return stop, addr, nil
}
