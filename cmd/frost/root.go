// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/frost/pkg/config"
	"github.com/AleutianAI/frost/pkg/freeze"
	"github.com/AleutianAI/frost/pkg/logging"
	"github.com/AleutianAI/frost/pkg/snapshot"
	"github.com/AleutianAI/frost/pkg/telemetry"
)

const tracerName = "frost.cli"

// app carries the state shared by every subcommand of one invocation.
type app struct {
	configPath      string
	logLevel        string
	logJSON         bool
	traceExporter   string
	metricsExporter string
	metricsOut      string

	cfg      config.Config
	logger   *logging.Logger
	shutdown func(context.Context) error
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "frost",
		Short:         "Freeze JSON and YAML documents into immutable snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to frost.yaml")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.logJSON, "log-json", false, "log JSON lines instead of text")
	flags.StringVar(&a.traceExporter, "trace-exporter", "", "trace exporter: otlp, stdout, none")
	flags.StringVar(&a.metricsExporter, "metrics-exporter", "", "metric exporter: prometheus, stdout, none")
	flags.StringVar(&a.metricsOut, "metrics-out", "", "write a Prometheus scrape to this file on exit")

	root.AddCommand(
		a.freezeCmd(),
		a.thawCmd(),
		a.inspectCmd(),
		a.keysCmd(),
		a.deleteCmd(),
		a.watchCmd(),
		a.serveCmd(),
	)
	return root
}

// setup loads configuration, applies flag overrides, and starts logging
// and telemetry.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Logging.JSON = a.logJSON
	}
	if flags.Changed("trace-exporter") {
		cfg.Telemetry.TraceExporter = a.traceExporter
	}
	if flags.Changed("metrics-exporter") {
		cfg.Telemetry.MetricExporter = a.metricsExporter
	}
	if a.metricsOut != "" && !flags.Changed("metrics-exporter") {
		cfg.Telemetry.MetricExporter = telemetry.ExporterPrometheus
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	lc := cfg.LogConfig()
	lc.Output = cmd.ErrOrStderr()
	a.logger = logging.New(lc)

	tc := cfg.TelemetryConfig()
	tc.Output = cmd.ErrOrStderr()
	shutdown, err := telemetry.Init(cmd.Context(), tc)
	if err != nil {
		return err
	}
	a.shutdown = shutdown

	a.logger.Debug("frost started",
		"command", cmd.Name(),
		"on_update", cfg.Freeze.OnUpdate,
		"on_freeze", cfg.Freeze.OnFreeze,
	)
	return nil
}

// close writes the metrics scrape, flushes telemetry and closes the log
// file. Safe to call when setup never ran.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.metricsOut != "" {
		errs = append(errs, a.writeMetrics())
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
		a.shutdown = nil
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

func (a *app) writeMetrics() error {
	handler := telemetry.MetricsHandler()
	if handler == nil {
		return nil
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		return fmt.Errorf("metrics scrape: status %d", rec.Code)
	}
	if err := os.WriteFile(a.metricsOut, rec.Body.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// freezer builds a Freezer from the freeze section of the configuration.
func (a *app) freezer() (*freeze.Freezer, error) {
	return freeze.NewFreezer(a.cfg.FreezeOptions(a.logger.Slog())...)
}

// openStore opens the snapshot store in dir, falling back to store.dir
// from the configuration.
func (a *app) openStore(dir string) (*snapshot.Store, error) {
	if dir == "" {
		dir = a.cfg.Store.Dir
	}
	if dir == "" {
		return nil, errors.New("no snapshot store: pass --store or set store.dir")
	}
	cfg := snapshot.DefaultConfig(dir)
	cfg.Logger = a.logger.Slog()
	return snapshot.Open(cfg)
}
