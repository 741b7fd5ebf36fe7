// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package freeze

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for freeze operations.
var (
	tracer = otel.Tracer("frost.freeze")
	meter  = otel.Meter("frost.freeze")
)

// Metrics for freeze operations.
var (
	freezeCalls    metric.Int64Counter
	freezeObjects  metric.Int64Counter
	freezeDuration metric.Float64Histogram
	typesCreated   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		freezeCalls, err = meter.Int64Counter(
			"frost.freeze.calls",
			metric.WithDescription("Total number of Freeze calls"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		freezeObjects, err = meter.Int64Counter(
			"frost.freeze.objects",
			metric.WithDescription("Total number of struct values frozen into Objects"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		freezeDuration, err = meter.Float64Histogram(
			"frost.freeze.duration",
			metric.WithDescription("Duration of Freeze calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		typesCreated, err = meter.Int64Counter(
			"frost.registry.types_created",
			metric.WithDescription("Total number of frozen types created by the registry"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordFreeze records one finished Freeze call.
func recordFreeze(ctx context.Context, strategy string, objects int, duration time.Duration, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.Bool("success", err == nil),
	)
	freezeCalls.Add(ctx, 1, attrs)
	freezeObjects.Add(ctx, int64(objects), attrs)
	freezeDuration.Record(ctx, duration.Seconds(), attrs)
}

// recordTypeCreated records a registry miss.
func recordTypeCreated(ctx context.Context, name string) {
	if initMetrics() != nil {
		return
	}
	typesCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("type", name)))
}

// startFreezeSpan creates the span for one Freeze call.
func startFreezeSpan(ctx context.Context, f *Freezer, id string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "freeze.Freeze",
		trace.WithAttributes(
			attribute.String("freeze.id", id),
			attribute.String("freeze.policy", f.policy.Mode()),
			attribute.String("freeze.strategy", f.strategy.Name()),
		),
	)
}

// endFreezeSpan sets the result attributes on a Freeze span.
func endFreezeSpan(span trace.Span, objects int, err error) {
	span.SetAttributes(attribute.Int("freeze.objects", objects))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
