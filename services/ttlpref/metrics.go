// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttlpref

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("ttlpref.service")

// Metrics for the enrichment loop.
var (
	rebuildTotal     metric.Int64Counter
	diagnosticsTotal metric.Int64Counter
	labelsMerged     metric.Int64Counter
	openDocuments    metric.Int64UpDownCounter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		rebuildTotal, err = meter.Int64Counter(
			"ttlpref_rebuild_total",
			metric.WithDescription("Document index rebuilds by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		diagnosticsTotal, err = meter.Int64Counter(
			"ttlpref_diagnostics_published_total",
			metric.WithDescription("Diagnostics published to the client"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		labelsMerged, err = meter.Int64Counter(
			"ttlpref_labels_merged_total",
			metric.WithDescription("Remote labels merged into open documents"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		openDocuments, err = meter.Int64UpDownCounter(
			"ttlpref_open_documents",
			metric.WithDescription("Number of open documents"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordRebuild(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	rebuildTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func recordDiagnostics(ctx context.Context, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	diagnosticsTotal.Add(ctx, int64(n))
}

func recordLabelsMerged(ctx context.Context, n int) {
	if err := initMetrics(); err != nil || n == 0 {
		return
	}
	labelsMerged.Add(ctx, int64(n))
}

func recordOpenDocuments(ctx context.Context, delta int) {
	if err := initMetrics(); err != nil {
		return
	}
	openDocuments.Add(ctx, int64(delta))
}
