// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttlpref answers editor queries about Turtle documents using their
// skos:prefLabel values.
//
// The Service keeps one index.DocumentIndex per open document. Unlabeled
// resources are reported as Hint diagnostics; when their namespace is
// allowed by the EnrichPolicy the resolver fetches it in the background,
// and the labels it returns are merged into every open document, after
// which diagnostics are republished and the client is asked to refresh its
// inlay hints.
package ttlpref

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/index"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/lsp"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/rdfparse"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/resolver"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/vocab"
)

// Identity reported to clients.
const (
	ServerName       = "ttl-pref-ls"
	DiagnosticSource = "ttl-pref-ls"
)

// Version is the server version. Overridden at link time.
var Version = "0.1.1"

// DefaultCompletionWait bounds how long completion waits for a remote
// namespace.
const DefaultCompletionWait = 500 * time.Millisecond

// =============================================================================
// COLLABORATORS
// =============================================================================

// LabelResolver is the subset of *resolver.Resolver the service uses.
type LabelResolver interface {
	RequestResolution(ns string) (<-chan resolver.Result, bool)
	ResolveNow(ctx context.Context, ns string, timeout time.Duration) map[string]string
	Cached(ns string) (map[string]string, bool)
	Pending(ns string) bool
}

// Notifier pushes server-initiated messages to the client.
type Notifier interface {
	// PublishDiagnostics replaces the diagnostics shown for uri.
	PublishDiagnostics(ctx context.Context, uri string, version int, diags []lsp.Diagnostic) error

	// RefreshInlayHints asks the client to re-request inlay hints. May block
	// until the client answers; never called with the service lock held.
	RefreshInlayHints(ctx context.Context) error
}

// =============================================================================
// OPTIONS
// =============================================================================

type serviceOptions struct {
	policy         EnrichPolicy
	completionWait time.Duration
	labelPredicate string
	language       string
	logger         *slog.Logger
}

// ServiceOption configures NewService.
type ServiceOption func(*serviceOptions)

// WithEnrichPolicy sets the namespace allow-list. Default is EnrichNone.
func WithEnrichPolicy(p EnrichPolicy) ServiceOption {
	return func(o *serviceOptions) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithCompletionWait bounds the remote wait during completion.
func WithCompletionWait(d time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		if d >= 0 {
			o.completionWait = d
		}
	}
}

// WithLabels sets the label predicate and preferred language.
func WithLabels(predicate, language string) ServiceOption {
	return func(o *serviceOptions) {
		if predicate != "" {
			o.labelPredicate = predicate
		}
		o.language = language
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// =============================================================================
// SERVICE
// =============================================================================

// document is the per-uri state. text-derived fields track the latest
// edit; idx tracks the latest edit that parsed.
type document struct {
	version     int
	lines       []string
	prefixes    map[string]string
	idx         *index.DocumentIndex
	parseErr    string
	diagnostics []lsp.Diagnostic
}

// DocumentInfo summarizes an open document for debugging.
type DocumentInfo struct {
	URI         string       `json:"uri"`
	Version     int          `json:"version"`
	Indexed     bool         `json:"indexed"`
	ParseError  string       `json:"parse_error,omitempty"`
	Diagnostics int          `json:"diagnostics"`
	Index       *index.Stats `json:"index,omitempty"`
}

// Stats summarizes the service.
type Stats struct {
	Documents int      `json:"documents"`
	Awaiting  []string `json:"awaiting"`
}

// Service holds open documents and answers queries against them.
//
// Thread Safety:
//
//	Safe for concurrent use. A single mutex covers every document, so a
//	rebuild of one document never interleaves with a label merge touching
//	it. The mutex is never held while waiting on the network.
type Service struct {
	resolver LabelResolver
	notifier Notifier
	logger   *slog.Logger

	indexOpts      []index.Option
	labelName      string
	completionWait time.Duration

	mu       sync.Mutex
	docs     map[string]*document
	policy   EnrichPolicy
	awaiting map[string]struct{}
	closed   bool

	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// NewService creates a Service.
//
// Inputs:
//
//	res - Namespace resolver. Required.
//	notifier - Client notification sink. Required.
//	opts - Optional policy, labels, completion wait and logger.
func NewService(res LabelResolver, notifier Notifier, opts ...ServiceOption) *Service {
	o := serviceOptions{
		policy:         EnrichNone,
		completionWait: DefaultCompletionWait,
		labelPredicate: vocab.SkosPrefLabel,
		language:       "en",
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Service{
		resolver: res,
		notifier: notifier,
		logger:   o.logger.With(slog.String("component", "ttlpref")),
		indexOpts: []index.Option{
			index.WithLabelPredicate(o.labelPredicate),
			index.WithLanguage(o.language),
		},
		labelName:      vocab.Compact(o.labelPredicate),
		completionWait: o.completionWait,
		docs:           make(map[string]*document),
		policy:         o.policy,
		awaiting:       make(map[string]struct{}),
		done:           make(chan struct{}),
	}
}

// SetEnrichPolicy replaces the enrich policy. Namespaces already fetched
// or in flight are unaffected. Open documents are rescanned so namespaces
// the new policy allows are requested right away.
func (s *Service) SetEnrichPolicy(p EnrichPolicy) {
	if p == nil {
		p = EnrichNone
	}
	s.mu.Lock()
	s.policy = p
	if s.closed {
		s.mu.Unlock()
		return
	}
	namespaces := make(map[string]struct{})
	for _, doc := range s.docs {
		if doc.idx == nil {
			continue
		}
		maps.Copy(namespaces, unlabeledNamespaces(doc.idx))
	}
	toRequest := s.claimRequestsLocked(namespaces)
	s.mu.Unlock()

	s.requestAll(toRequest)
}

// =============================================================================
// DOCUMENT LIFECYCLE
// =============================================================================

// Open indexes a newly opened document.
func (s *Service) Open(ctx context.Context, uri string, version int, text string) error {
	return s.rebuild(ctx, uri, version, text)
}

// Change re-indexes a document from its full new text.
func (s *Service) Change(ctx context.Context, uri string, version int, text string) error {
	return s.rebuild(ctx, uri, version, text)
}

// Close forgets a document and clears its diagnostics.
func (s *Service) Close(ctx context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[uri]
	if !ok {
		return nil
	}
	delete(s.docs, uri)
	recordOpenDocuments(ctx, -1)
	return s.notifier.PublishDiagnostics(ctx, uri, doc.version, []lsp.Diagnostic{})
}

// rebuild re-indexes uri.
//
// Description:
//
//	On parse failure the previous index and diagnostics are kept, nothing
//	is published, and the *rdfparse.ParseError is returned. On success
//	cached remote labels are merged, diagnostics are published and the
//	enrichable namespaces of unlabeled resources are requested.
func (s *Service) rebuild(ctx context.Context, uri string, version int, text string) error {
	idx, buildErr := index.Build(text, s.indexOpts...)
	prefixes, _ := rdfparse.ScanDirectives(text)
	recordRebuild(ctx, buildErr == nil)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}

	doc, ok := s.docs[uri]
	if !ok {
		doc = &document{}
		s.docs[uri] = doc
		recordOpenDocuments(ctx, 1)
	}
	doc.version = version
	doc.lines = index.SplitLines(text)
	doc.prefixes = prefixes

	if buildErr != nil {
		doc.parseErr = buildErr.Error()
		s.mu.Unlock()
		s.logger.Warn("document failed to parse, keeping previous index",
			slog.String("uri", uri),
			slog.Int("version", version),
			slog.String("error", buildErr.Error()),
		)
		return buildErr
	}

	doc.idx = idx
	doc.parseErr = ""

	namespaces := unlabeledNamespaces(idx)
	for ns := range namespaces {
		if labels, ok := s.resolver.Cached(ns); ok {
			idx.MergeLabels(labels)
		}
	}

	doc.diagnostics = s.deriveDiagnostics(idx)
	pubErr := s.publishLocked(ctx, uri, doc)

	toRequest := s.claimRequestsLocked(namespaces)
	s.mu.Unlock()

	stats := idx.Stats()
	s.logger.Info("indexed document",
		slog.String("uri", uri),
		slog.Int("version", version),
		slog.Int("uris", stats.URIs),
		slog.Int("labels", stats.Labels),
	)

	s.requestAll(toRequest)
	return pubErr
}

// claimRequestsLocked marks every enrichable namespace that is neither
// awaited nor cached as awaited and returns them sorted. Caller holds s.mu
// and must pass the result to requestAll after unlocking.
func (s *Service) claimRequestsLocked(namespaces map[string]struct{}) []string {
	var out []string
	for ns := range namespaces {
		if _, waiting := s.awaiting[ns]; waiting {
			continue
		}
		if !s.policy.Enrichable(ns) {
			continue
		}
		if _, cached := s.resolver.Cached(ns); cached {
			continue
		}
		s.awaiting[ns] = struct{}{}
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func (s *Service) requestAll(namespaces []string) {
	for _, ns := range namespaces {
		s.requestResolution(ns)
	}
}

// unlabeledNamespaces returns the namespaces of idx's unlabeled resources.
func unlabeledNamespaces(idx *index.DocumentIndex) map[string]struct{} {
	out := make(map[string]struct{})
	for _, iri := range idx.Unlabeled() {
		if ns := idx.Namespace(iri); ns != "" {
			out[ns] = struct{}{}
		}
	}
	return out
}

// =============================================================================
// ENRICHMENT
// =============================================================================

// requestResolution starts one background waiter for ns.
func (s *Service) requestResolution(ns string) {
	ch, started := s.resolver.RequestResolution(ns)
	if !started {
		s.mu.Lock()
		delete(s.awaiting, ns)
		s.mu.Unlock()
		// Resolved between the cache check and the request.
		if labels, ok := s.resolver.Cached(ns); ok {
			s.applyResult(resolver.Result{Namespace: ns, Labels: labels})
		}
		return
	}

	s.logger.Debug("requested namespace resolution", slog.String("namespace", ns))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case res := <-ch:
			s.applyResult(res)
		case <-s.done:
		}
	}()
}

// applyResult merges a resolver result into every open document. Panics
// are logged and swallowed.
func (s *Service) applyResult(res resolver.Result) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("label merge panicked",
				slog.String("namespace", res.Namespace),
				slog.Any("panic", p),
			)
		}
	}()

	ctx := context.Background()
	if !s.mergeLabels(ctx, res) {
		return
	}
	if err := s.notifier.RefreshInlayHints(ctx); err != nil {
		s.logger.Debug("inlay hint refresh failed", slog.String("error", err.Error()))
	}
}

// mergeLabels runs the merge and diagnostic republish as one critical
// section. Returns false when there was nothing to merge.
func (s *Service) mergeLabels(ctx context.Context, res resolver.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.awaiting, res.Namespace)
	if len(res.Labels) == 0 {
		if res.Err != nil {
			s.logger.Debug("namespace not enriched",
				slog.String("namespace", res.Namespace),
				slog.String("error", res.Err.Error()),
			)
		}
		return false
	}
	if s.closed {
		return false
	}

	merged := 0
	for _, uri := range s.sortedURIsLocked() {
		doc := s.docs[uri]
		if doc.idx == nil {
			continue
		}
		merged += doc.idx.MergeLabels(res.Labels)
		doc.diagnostics = s.deriveDiagnostics(doc.idx)
		if err := s.publishLocked(ctx, uri, doc); err != nil {
			s.logger.Warn("failed to publish diagnostics",
				slog.String("uri", uri),
				slog.String("error", err.Error()),
			)
		}
	}
	recordLabelsMerged(ctx, merged)

	s.logger.Info("merged remote labels",
		slog.String("namespace", res.Namespace),
		slog.Int("labels", len(res.Labels)),
		slog.Int("applied", merged),
	)
	return true
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// deriveDiagnostics emits one Hint per lexical occurrence of every
// unlabeled resource, ordered by position.
func (s *Service) deriveDiagnostics(idx *index.DocumentIndex) []lsp.Diagnostic {
	diags := []lsp.Diagnostic{}
	for _, iri := range idx.Unlabeled() {
		msg := fmt.Sprintf("No %s defined for %s", s.labelName, idx.Pretty(iri))
		for _, occ := range idx.Occurrences(iri) {
			diags = append(diags, lsp.Diagnostic{
				Range:    spanRange(occ.Line, occ.Span),
				Severity: lsp.SeverityHint,
				Source:   DiagnosticSource,
				Message:  msg,
			})
		}
	}
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i].Range.Start, diags[j].Range.Start
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Character < b.Character
	})
	return diags
}

func (s *Service) publishLocked(ctx context.Context, uri string, doc *document) error {
	recordDiagnostics(ctx, len(doc.diagnostics))
	return s.notifier.PublishDiagnostics(ctx, uri, doc.version, cloneDiagnostics(doc.diagnostics))
}

// Diagnostics returns the current diagnostics for uri.
func (s *Service) Diagnostics(uri string) []lsp.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[uri]
	if !ok {
		return nil
	}
	return cloneDiagnostics(doc.diagnostics)
}

// =============================================================================
// QUERIES
// =============================================================================

// Hover returns the label of the resource under pos, or nil.
//
// Description:
//
//	The first span containing pos wins. Without a span, a bare "a" token
//	under the cursor is treated as rdf:type and the hover range covers
//	exactly that token. Resources without a label produce no hover.
func (s *Service) Hover(ctx context.Context, uri string, pos lsp.Position) (*lsp.Hover, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[uri]
	if !ok || doc.idx == nil {
		return nil, nil
	}
	idx := doc.idx

	if span, ok := idx.IRIAt(pos.Line, pos.Character); ok {
		label := idx.Labels[span.IRI]
		if label == "" {
			return nil, nil
		}
		rng := spanRange(pos.Line, span)
		return hoverFor(label, idx.Pretty(span.IRI), &rng), nil
	}

	word, start, end, ok := standaloneWordAt(lineAt(doc.lines, pos.Line), pos.Character)
	if !ok || word != vocab.TypeKeyword {
		return nil, nil
	}
	label := idx.Labels[vocab.RdfType]
	if label == "" {
		label = vocab.Compact(vocab.RdfType)
	}
	rng := lsp.Range{
		Start: lsp.Position{Line: pos.Line, Character: start},
		End:   lsp.Position{Line: pos.Line, Character: end},
	}
	return hoverFor(label, idx.Pretty(vocab.RdfType), &rng), nil
}

func hoverFor(label, display string, rng *lsp.Range) *lsp.Hover {
	return &lsp.Hover{
		Contents: lsp.MarkupContent{
			Kind:  lsp.MarkupMarkdown,
			Value: fmt.Sprintf("**prefLabel:** %s\n\n`%s`", label, display),
		},
		Range: rng,
	}
}

// Completion proposes labeled resources for a "prefix:fragment" token.
//
// Description:
//
//	Returns nil, letting the client fall back to its own completion, when
//	the token under the cursor does not contain exactly one ':' or its
//	prefix is undeclared. Candidates are the document's labels in the
//	prefix namespace plus the resolver's, waiting at most the completion
//	wait for an enrichable namespace. Items display "prefix:Label" and
//	insert the local name. When no candidate exists at all a single
//	placeholder re-inserting the typed token is returned.
func (s *Service) Completion(ctx context.Context, uri string, pos lsp.Position) (*lsp.CompletionList, error) {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	token := completionToken(lineAt(doc.lines, pos.Line), pos.Character)
	if strings.Count(token, ":") != 1 {
		s.mu.Unlock()
		return nil, nil
	}
	prefix, fragment, _ := strings.Cut(token, ":")
	ns, declared := doc.prefixes[prefix]
	if !declared && doc.idx != nil {
		ns, declared = doc.idx.Prefixes[prefix]
	}
	if !declared || ns == "" {
		s.mu.Unlock()
		return nil, nil
	}
	candidates := map[string]string{}
	if doc.idx != nil {
		candidates = doc.idx.LabelsInNamespace(ns)
	}
	enrichable := s.policy.Enrichable(ns)
	var toRequest []string
	if enrichable && !s.closed {
		// Registered first so the fetch ResolveNow joins is merged into
		// every open document when it lands.
		toRequest = s.claimRequestsLocked(map[string]struct{}{ns: {}})
	}
	s.mu.Unlock()
	s.requestAll(toRequest)

	if enrichable {
		remote := s.resolver.ResolveNow(ctx, ns, s.completionWait)
		for iri, label := range remote {
			if _, local := candidates[iri]; !local && strings.HasPrefix(iri, ns) {
				candidates[iri] = label
			}
		}
	}

	incomplete := enrichable && s.resolver.Pending(ns)
	if len(candidates) == 0 {
		return &lsp.CompletionList{
			IsIncomplete: incomplete,
			Items: []lsp.CompletionItem{{
				Label:      token,
				Kind:       lsp.CompletionItemKindText,
				Detail:     "no labels known for " + ns,
				InsertText: token,
				FilterText: token,
			}},
		}, nil
	}

	items := make([]lsp.CompletionItem, 0, len(candidates))
	for iri, label := range candidates {
		local := iri[len(ns):]
		if local == "" {
			continue
		}
		if fragment != "" && !hasPrefixFold(label, fragment) {
			continue
		}
		items = append(items, lsp.CompletionItem{
			Label:      prefix + ":" + label,
			Kind:       lsp.CompletionItemKindReference,
			Detail:     "<" + iri + ">",
			InsertText: local,
			FilterText: label,
			SortText:   strings.ToLower(label),
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].SortText != items[j].SortText {
			return items[i].SortText < items[j].SortText
		}
		return items[i].InsertText < items[j].InsertText
	})
	return &lsp.CompletionList{IsIncomplete: incomplete, Items: items}, nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// InlayHints returns the label of every labeled span on lines within rng,
// placed after the span.
func (s *Service) InlayHints(ctx context.Context, uri string, rng lsp.Range) ([]lsp.InlayHint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hints := []lsp.InlayHint{}
	doc, ok := s.docs[uri]
	if !ok || doc.idx == nil {
		return hints, nil
	}

	first, last := max(rng.Start.Line, 0), min(rng.End.Line, len(doc.lines)-1)
	for line := first; line <= last; line++ {
		for _, span := range doc.idx.Ranges[line] {
			label := doc.idx.Labels[span.IRI]
			if label == "" {
				continue
			}
			hints = append(hints, lsp.InlayHint{
				Position:    lsp.Position{Line: line, Character: span.End},
				Label:       label,
				PaddingLeft: true,
			})
		}
	}
	return hints, nil
}

// =============================================================================
// INTROSPECTION & SHUTDOWN
// =============================================================================

// Documents describes every open document, sorted by URI.
func (s *Service) Documents() []DocumentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DocumentInfo, 0, len(s.docs))
	for _, uri := range s.sortedURIsLocked() {
		doc := s.docs[uri]
		info := DocumentInfo{
			URI:         uri,
			Version:     doc.version,
			Indexed:     doc.idx != nil,
			ParseError:  doc.parseErr,
			Diagnostics: len(doc.diagnostics),
		}
		if doc.idx != nil {
			st := doc.idx.Stats()
			info.Index = &st
		}
		out = append(out, info)
	}
	return out
}

// Stats summarizes the service.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	awaiting := make([]string, 0, len(s.awaiting))
	for ns := range s.awaiting {
		awaiting = append(awaiting, ns)
	}
	sort.Strings(awaiting)
	return Stats{Documents: len(s.docs), Awaiting: awaiting}
}

// Shutdown stops background waiters and waits for them to return, or for
// ctx to end. In-flight fetches are not cancelled.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })

	waited := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) sortedURIsLocked() []string {
	uris := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

func spanRange(line int, span index.Span) lsp.Range {
	return lsp.Range{
		Start: lsp.Position{Line: line, Character: span.Start},
		End:   lsp.Position{Line: line, Character: span.End},
	}
}

func cloneDiagnostics(diags []lsp.Diagnostic) []lsp.Diagnostic {
	out := make([]lsp.Diagnostic, len(diags))
	copy(out, diags)
	return out
}
