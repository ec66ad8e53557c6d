package main

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/srediag/mutexchan/internal/health"
	"github.com/srediag/mutexchan/pkg/mutexchan"
	"github.com/srediag/mutexchan/pkg/primitive"
)

func debugMux(reg *prometheus.Registry, state func() mutexchan.State, dir string) *http.ServeMux {
	if dir == "" {
		dir = primitive.DefaultDir()
	}
	h := health.New(reg, health.Options{State: state, Dir: dir})
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/live", h)
	mux.Handle("/ready", h)
	// net/http/pprof registers on the default mux.
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	return mux
}

func startDebugServer(addr string, reg *prometheus.Registry, state func() mutexchan.State, dir string, log *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           debugMux(reg, state, dir),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("debug server", zap.String("addr", addr), zap.Error(err))
		}
	}()
	log.Info("debug server listening", zap.String("addr", addr))
	return srv
}

func shutdownDebugServer(srv *http.Server, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("debug server shutdown", zap.Error(err))
	}
}
