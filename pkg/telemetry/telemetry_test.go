// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "stdout")
	t.Setenv("FROST_ENV", "ci")

	cfg := DefaultConfig()
	if cfg.ServiceName != "frost" {
		t.Errorf("ServiceName = %q, want frost", cfg.ServiceName)
	}
	if cfg.TraceExporter != ExporterNone {
		t.Errorf("TraceExporter = %q, want none", cfg.TraceExporter)
	}
	if cfg.MetricExporter != ExporterStdout {
		t.Errorf("MetricExporter = %q, want stdout", cfg.MetricExporter)
	}
	if cfg.Environment != "ci" {
		t.Errorf("Environment = %q, want ci", cfg.Environment)
	}
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // a nil context is the case under test
	_, err := Init(nil, Config{})
	if !errors.Is(err, ErrNilContext) {
		t.Errorf("Init(nil) error = %v, want %v", err, ErrNilContext)
	}
}

func TestInit_None(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: ExporterNone, MetricExporter: ExporterNone})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	tests := []Config{
		{TraceExporter: "zipkin"},
		{MetricExporter: "statsd"},
	}
	for _, cfg := range tests {
		_, err := Init(context.Background(), cfg)
		if !errors.Is(err, ErrUnknownExporter) {
			t.Errorf("Init(%+v) error = %v, want ErrUnknownExporter", cfg, err)
		}
	}
}

func TestInit_StdoutTraces(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{
		ServiceName:   "frost-test",
		TraceExporter: ExporterStdout,
		Output:        &buf,
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	_, span := StartSpan(context.Background(), "frost.test", "freeze.file")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), "freeze.file") {
		t.Errorf("exported spans missing span name: %q", buf.String())
	}
}

func TestInit_PrometheusHandler(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{MetricExporter: ExporterPrometheus})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	handler := MetricsHandler()
	if handler == nil {
		t.Fatal("MetricsHandler() = nil after prometheus init")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := tp.Tracer("t").Start(context.Background(), "op")
	RecordError(span, errors.New("boom"), attribute.String("path", "a.json"))
	RecordError(span, nil)
	RecordError(nil, errors.New("ignored"))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("got %d spans, want 1", len(ended))
	}
	if ended[0].Status().Description != "boom" {
		t.Errorf("status = %+v", ended[0].Status())
	}
	if len(ended[0].Events()) != 1 {
		t.Errorf("got %d events, want 1", len(ended[0].Events()))
	}
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	if got := LoggerWithTrace(context.Background(), logger); got != logger {
		t.Error("logger without span should be returned unchanged")
	}
	if TraceID(context.Background()) != "" {
		t.Error("TraceID without span should be empty")
	}

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("t").Start(context.Background(), "op")
	defer span.End()

	LoggerWithTrace(ctx, logger).Info("hello")
	out := buf.String()
	if !strings.Contains(out, TraceID(ctx)) || !strings.Contains(out, "span_id") {
		t.Errorf("log line missing trace fields: %s", out)
	}
}
