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
	"log/slog"
	"time"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/vocab"
)

// Default configuration values.
const (
	// DefaultFetchTimeout bounds one namespace fetch.
	DefaultFetchTimeout = 2 * time.Second

	// DefaultRateLimit is the sustained outbound fetch rate per second.
	DefaultRateLimit = 4.0

	// DefaultRateBurst is the outbound fetch burst size.
	DefaultRateBurst = 4

	// DefaultMaxBodyBytes caps a fetched document.
	DefaultMaxBodyBytes = 8 << 20

	// DefaultUserAgent identifies outbound requests.
	DefaultUserAgent = "ttl-pref-ls"

	// AcceptHeader lists the serializations the resolver can parse, in
	// preference order.
	AcceptHeader = "text/turtle, application/rdf+xml, application/n-quads;q=0.9, */*;q=0.1"
)

// Fetcher retrieves the document published at a namespace IRI.
//
// Implementations must honour ctx cancellation. A non-nil error means the
// request never produced a response (connection refused, timeout, ...).
// Non-success statuses are reported through Response.StatusCode.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (*Response, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (*Response, error) {
	return f(ctx, url)
}

// Response is a fetched document.
type Response struct {
	// StatusCode is the HTTP status.
	StatusCode int

	// ContentType is the raw Content-Type header.
	ContentType string

	// Body is the decoded document text.
	Body string
}

// Result is delivered exactly once to every waiter of a resolution.
type Result struct {
	// Namespace is the resolved namespace.
	Namespace string

	// Labels maps IRI to label. Empty, never nil, when the resolution failed.
	Labels map[string]string

	// Err is non-nil when the namespace was marked failed.
	Err error
}

// FailureReason classifies why a namespace was marked failed.
type FailureReason int

const (
	// FailureFetch means no response was received.
	FailureFetch FailureReason = iota

	// FailureStatus means the server answered with a non-success status.
	FailureStatus

	// FailureParse means the body was neither Turtle nor RDF/XML.
	FailureParse

	// FailureEmpty means the body parsed but contained no labels.
	FailureEmpty

	// FailurePanic means the worker panicked.
	FailurePanic
)

// String returns the reason name used in logs and metrics.
func (r FailureReason) String() string {
	switch r {
	case FailureFetch:
		return "fetch"
	case FailureStatus:
		return "status"
	case FailureParse:
		return "parse"
	case FailureEmpty:
		return "empty"
	case FailurePanic:
		return "panic"
	default:
		return "unknown"
	}
}

// MarshalText renders the reason for JSON output.
func (r FailureReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Failure records a permanently failed namespace.
type Failure struct {
	Reason   FailureReason `json:"reason"`
	Error    string        `json:"error"`
	FailedAt time.Time     `json:"failed_at"`
}

// Stats is a snapshot of the resolver caches.
type Stats struct {
	// Resolved is the number of namespaces with labels.
	Resolved int `json:"resolved"`

	// Labels is the total number of cached labels.
	Labels int `json:"labels"`

	// Pending is the number of fetches in flight.
	Pending int `json:"pending"`

	// Failed maps failed namespaces to their failure.
	Failed map[string]Failure `json:"failed"`

	// Fetches is the number of fetches started since creation.
	Fetches int64 `json:"fetches"`
}

// Options configures a Resolver.
type Options struct {
	// LabelPredicate selects label triples in fetched documents.
	LabelPredicate string

	// Language is the preferred label language tag.
	Language string

	// FetchTimeout bounds each fetch, including body transfer.
	FetchTimeout time.Duration

	// RateLimit is the sustained fetch rate per second. Zero or less
	// disables limiting.
	RateLimit float64

	// RateBurst is the limiter burst size.
	RateBurst int

	// Logger receives resolver logs.
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		LabelPredicate: vocab.SkosPrefLabel,
		Language:       "en",
		FetchTimeout:   DefaultFetchTimeout,
		RateLimit:      DefaultRateLimit,
		RateBurst:      DefaultRateBurst,
	}
}

// Option is a functional option for New.
type Option func(*Options)

// WithLabelPredicate sets the label predicate.
func WithLabelPredicate(iri string) Option {
	return func(o *Options) {
		if iri != "" {
			o.LabelPredicate = iri
		}
	}
}

// WithLanguage sets the preferred label language.
func WithLanguage(lang string) Option {
	return func(o *Options) {
		o.Language = lang
	}
}

// WithFetchTimeout sets the per-fetch timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.FetchTimeout = d
		}
	}
}

// WithRateLimit sets the outbound fetch rate. A limit <= 0 disables it.
func WithRateLimit(limit float64, burst int) Option {
	return func(o *Options) {
		o.RateLimit = limit
		o.RateBurst = burst
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}
