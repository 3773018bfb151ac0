// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("ttlpref.resolver")
	meter  = otel.Meter("ttlpref.resolver")
)

// Metrics for namespace resolution.
var (
	fetchLatency   metric.Float64Histogram
	fetchTotal     metric.Int64Counter
	labelsResolved metric.Int64Counter
	joinedTotal    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		fetchLatency, err = meter.Float64Histogram(
			"resolver_fetch_duration_seconds",
			metric.WithDescription("Duration of namespace fetch and parse"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fetchTotal, err = meter.Int64Counter(
			"resolver_fetch_total",
			metric.WithDescription("Namespace fetches by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		labelsResolved, err = meter.Int64Counter(
			"resolver_labels_total",
			metric.WithDescription("Labels obtained from remote namespaces"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		joinedTotal, err = meter.Int64Counter(
			"resolver_joined_total",
			metric.WithDescription("Resolution requests that joined an in-flight fetch"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordFetchMetrics records one completed fetch. outcome is "ok" or a
// FailureReason name.
func recordFetchMetrics(ctx context.Context, duration time.Duration, outcome string, labels int) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	fetchLatency.Record(ctx, duration.Seconds(), attrs)
	fetchTotal.Add(ctx, 1, attrs)
	if labels > 0 {
		labelsResolved.Add(ctx, int64(labels))
	}
}

// recordJoin records a request that shared an in-flight fetch.
func recordJoin(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	joinedTotal.Add(ctx, 1)
}
