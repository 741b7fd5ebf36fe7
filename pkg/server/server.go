// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes a snapshot store over HTTP.
//
// # Routes
//
//	GET    /health                 liveness
//	GET    /metrics                Prometheus scrape (prometheus exporter only)
//	GET    /v1/keys                stored keys, ascending
//	GET    /v1/snapshots/*key      snapshot as JSON, or ?format=yaml|cbor
//	PUT    /v1/snapshots/*key      freeze the body and store it
//	DELETE /v1/snapshots/*key      remove a snapshot
//
// PUT accepts JSON or YAML bodies, which are frozen with the server's
// options, and application/cbor bodies in the codec format, which are
// decoded and frozen in place. Keys may contain slashes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/frost/pkg/freeze"
	"github.com/AleutianAI/frost/pkg/snapshot"
	"github.com/AleutianAI/frost/pkg/telemetry"
)

// DefaultMaxBodyBytes caps PUT bodies when Config.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 8 << 20

// Config configures a Server.
type Config struct {
	// Store holds the snapshots. Required. The server does not close it.
	Store *snapshot.Store

	// Logger receives one line per request. Nil uses slog.Default.
	Logger *slog.Logger

	// FreezeOptions apply to PUT bodies and to snapshots read back.
	FreezeOptions []freeze.Option

	// RateLimit is the sustained request rate per second. Zero disables
	// limiting.
	RateLimit float64

	// Burst is the number of requests allowed above RateLimit at once.
	// Zero means one.
	Burst int

	// MaxBodyBytes caps PUT bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Server is the HTTP front end of a snapshot store.
type Server struct {
	cfg     Config
	freezer *freeze.Freezer
	router  *gin.Engine
}

// New builds a Server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server: nil store")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	f, err := freeze.NewFreezer(cfg.FreezeOptions...)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{cfg: cfg, freezer: f}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("frost"))
	router.Use(requestLogger(s.cfg.Logger))
	if s.cfg.RateLimit > 0 {
		burst := max(s.cfg.Burst, 1)
		router.Use(rateLimit(rate.NewLimiter(rate.Limit(s.cfg.RateLimit), burst)))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/keys", listKeys(s.cfg.Store))
		v1.GET("/snapshots/*key", getSnapshot(s.cfg.Store, s.cfg.FreezeOptions))
		v1.PUT("/snapshots/*key", putSnapshot(s.cfg.Store, s.freezer, s.cfg.FreezeOptions, s.cfg.MaxBodyBytes))
		v1.DELETE("/snapshots/*key", deleteSnapshot(s.cfg.Store))
	}
	return router
}

// Handler returns the router, for tests and for embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is canceled, then shuts down gracefully.
// ready, if not nil, receives the bound address once listening.
func (s *Server) Run(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if ready != nil {
		ready(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
