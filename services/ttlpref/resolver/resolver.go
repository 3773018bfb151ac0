// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver fetches remote namespace documents and caches the labels
// they define.
//
// A Resolver owns three caches: resolved labels per namespace (grows, never
// evicted), the set of namespaces with a fetch in flight, and the set of
// namespaces that failed. Failure is permanent for the lifetime of the
// Resolver; there is no retry.
//
// At most one fetch per namespace is ever in flight. Requests that arrive
// while a fetch is running join it and receive the same Result.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/rdfparse"
)

// Resolver resolves namespaces to label maps.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Resolver struct {
	fetcher Fetcher
	options Options
	limiter *rate.Limiter
	logger  *slog.Logger
	flight  singleflight.Group

	mu       sync.RWMutex
	resolved map[string]map[string]string
	pending  map[string]struct{}
	failed   map[string]Failure

	fetchCount int64
}

// New creates a Resolver that retrieves documents with fetcher.
func New(fetcher Fetcher, opts ...Option) *Resolver {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	limit := rate.Inf
	if options.RateLimit > 0 {
		limit = rate.Limit(options.RateLimit)
	}
	burst := options.RateBurst
	if burst < 1 {
		burst = 1
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		fetcher:  fetcher,
		options:  options,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.With(slog.String("component", "resolver")),
		resolved: make(map[string]map[string]string),
		pending:  make(map[string]struct{}),
		failed:   make(map[string]Failure),
	}
}

// RequestResolution starts, or joins, the fetch for ns.
//
// Description:
//
//	Returns immediately. When ns is already resolved or has failed the call
//	is a no-op and returns (nil, false). Otherwise the returned channel
//	receives exactly one Result once the fetch finishes, and is then never
//	written again. Callers that arrive while the fetch is in flight share
//	its Result.
//
// Inputs:
//
//	ns - The namespace IRI. Fetched as-is.
//
// Outputs:
//
//	<-chan Result - Receives the outcome. Buffered; never blocks the worker.
//	bool - False when no resolution was started or joined.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (r *Resolver) RequestResolution(ns string) (<-chan Result, bool) {
	if ns == "" {
		return nil, false
	}

	r.mu.Lock()
	if _, ok := r.failed[ns]; ok {
		r.mu.Unlock()
		return nil, false
	}
	if len(r.resolved[ns]) > 0 {
		r.mu.Unlock()
		return nil, false
	}
	_, joined := r.pending[ns]
	r.pending[ns] = struct{}{}
	// DoChan is called under the lock so the pending marker and the flight
	// key are always created together.
	ch := r.flight.DoChan(ns, func() (any, error) {
		return r.resolve(ns), nil
	})
	r.mu.Unlock()

	if joined {
		recordJoin(context.Background())
	}

	out := make(chan Result, 1)
	go func() {
		res := <-ch
		result, ok := res.Val.(Result)
		if !ok {
			result = Result{Namespace: ns, Labels: map[string]string{}, Err: ErrWorkerPanic}
		}
		result.Labels = maps.Clone(result.Labels)
		out <- result
	}()
	return out, true
}

// ResolveNow returns labels for ns, waiting at most timeout.
//
// Description:
//
//	Cached labels are returned immediately. A failed namespace yields an
//	empty map. Otherwise the fetch is started or joined and awaited up to
//	timeout or until ctx is done; when the wait ends first, the current
//	snapshot (usually empty) is returned and the fetch keeps running in the
//	background.
//
// Outputs:
//
//	map[string]string - IRI to label. Never nil. Owned by the caller.
func (r *Resolver) ResolveNow(ctx context.Context, ns string, timeout time.Duration) map[string]string {
	if labels, ok := r.Cached(ns); ok {
		return labels
	}

	ch, ok := r.RequestResolution(ns)
	if !ok {
		return r.snapshot(ns)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.Labels
	case <-timer.C:
	case <-ctx.Done():
	}
	return r.snapshot(ns)
}

// Cached returns a copy of the resolved labels for ns.
func (r *Resolver) Cached(ns string) (map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	labels, ok := r.resolved[ns]
	if !ok || len(labels) == 0 {
		return nil, false
	}
	return maps.Clone(labels), true
}

// Failed returns the failure recorded for ns.
func (r *Resolver) Failed(ns string) (Failure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.failed[ns]
	return f, ok
}

// Pending reports whether a fetch for ns is in flight.
func (r *Resolver) Pending(ns string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.pending[ns]
	return ok
}

// Stats returns a snapshot of the caches.
func (r *Resolver) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	labels := 0
	for _, m := range r.resolved {
		labels += len(m)
	}
	return Stats{
		Resolved: len(r.resolved),
		Labels:   labels,
		Pending:  len(r.pending),
		Failed:   maps.Clone(r.failed),
		Fetches:  atomic.LoadInt64(&r.fetchCount),
	}
}

func (r *Resolver) snapshot(ns string) map[string]string {
	if labels, ok := r.Cached(ns); ok {
		return labels
	}
	return map[string]string{}
}

// resolve runs the fetch for ns. It always returns a Result and always
// clears the pending marker before returning.
func (r *Resolver) resolve(ns string) (result Result) {
	atomic.AddInt64(&r.fetchCount, 1)
	start := time.Now()

	ctx, span := tracer.Start(context.Background(), "resolver.Resolve",
		trace.WithAttributes(attribute.String("namespace", ns)),
	)
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			result = r.fail(ns, FailurePanic, fmt.Errorf("%w: %v", ErrWorkerPanic, p))
		}
		outcome := "ok"
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, result.Err.Error())
			outcome = r.failureReason(ns)
		}
		span.SetAttributes(attribute.Int("labels", len(result.Labels)))
		recordFetchMetrics(ctx, time.Since(start), outcome, len(result.Labels))
	}()

	if err := r.limiter.Wait(ctx); err != nil {
		return r.fail(ns, FailureFetch, fmt.Errorf("%w: %v", ErrFetchFailed, err))
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.options.FetchTimeout)
	defer cancel()

	resp, err := r.fetcher.Fetch(fetchCtx, ns)
	if err != nil {
		return r.fail(ns, FailureFetch, fmt.Errorf("%w: %w", ErrFetchFailed, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return r.fail(ns, FailureStatus, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode))
	}

	g, err := parseDocument(resp.Body)
	if err != nil {
		return r.fail(ns, FailureParse, fmt.Errorf("%w: %w", ErrUnparsable, err))
	}

	labels := g.Labels(r.options.LabelPredicate, r.options.Language)
	if len(labels) == 0 {
		return r.fail(ns, FailureEmpty, ErrNoLabels)
	}
	return r.succeed(ns, labels)
}

// parseDocument tries Turtle first and RDF/XML second.
func parseDocument(body string) (*rdfparse.Graph, error) {
	g, turtleErr := rdfparse.Parse(body, rdfparse.FormatTurtle)
	if turtleErr == nil && len(g.Triples) > 0 {
		return g, nil
	}
	g, xmlErr := rdfparse.Parse(body, rdfparse.FormatRDFXML)
	if xmlErr == nil {
		return g, nil
	}
	if turtleErr == nil {
		// Valid but empty Turtle.
		return &rdfparse.Graph{Prefixes: map[string]string{}}, nil
	}
	return nil, errors.Join(turtleErr, xmlErr)
}

func (r *Resolver) succeed(ns string, labels map[string]string) Result {
	r.mu.Lock()
	existing := r.resolved[ns]
	if existing == nil {
		existing = make(map[string]string, len(labels))
		r.resolved[ns] = existing
	}
	maps.Copy(existing, labels)
	delete(r.pending, ns)
	r.mu.Unlock()

	r.logger.Debug("namespace resolved",
		slog.String("namespace", ns),
		slog.Int("labels", len(labels)),
	)
	return Result{Namespace: ns, Labels: labels}
}

func (r *Resolver) fail(ns string, reason FailureReason, err error) Result {
	r.mu.Lock()
	r.failed[ns] = Failure{Reason: reason, Error: err.Error(), FailedAt: time.Now()}
	delete(r.pending, ns)
	r.mu.Unlock()

	r.logger.Debug("namespace resolution failed",
		slog.String("namespace", ns),
		slog.String("reason", reason.String()),
		slog.String("error", err.Error()),
	)
	return Result{Namespace: ns, Labels: map[string]string{}, Err: err}
}

func (r *Resolver) failureReason(ns string) string {
	f, ok := r.Failed(ns)
	if !ok {
		return "unknown"
	}
	return f.Reason.String()
}
