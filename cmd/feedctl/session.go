package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/promecieus/internal/conn"
	"github.com/danmuck/promecieus/internal/controller"
	"github.com/danmuck/promecieus/internal/logging"
	"github.com/danmuck/promecieus/internal/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// startSession builds the manager and controller and runs them until ctx
// ends. The returned wait func blocks until the session has stopped.
func startSession(ctx context.Context, cfg clientConfig) (*controller.Controller, func() error, error) {
	dialer, err := conn.NewWebsocketDialer(cfg.Server, cfg.Session)
	if err != nil {
		return nil, nil, err
	}
	log := logging.Component("feedctl")
	log.Info().Str("endpoint", dialer.Endpoint()).Msg("feedctl session starting")

	mgr := conn.NewManager(dialer, conn.Options{Session: cfg.Session})
	c := controller.New(mgr, controller.Options{})

	stopMetrics := serveMetrics(cfg.MetricsAddr)
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()
	return c, func() error {
		err := <-done
		stopMetrics()
		return err
	}, nil
}

func serveMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}
	observability.RegisterMetrics()
	log := logging.Component("feedctl")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("feedctl metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("feedctl metrics listening")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
