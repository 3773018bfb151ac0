// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index builds the per-document index of a Turtle buffer.
//
// A DocumentIndex correlates semantic facts (which resources carry a label)
// with lexical occurrences (which text spans name which resource). It is
// built wholesale from the document text by Build; there is no incremental
// update apart from MergeLabels.
//
// # Thread Safety
//
// Build is safe for concurrent use. A DocumentIndex is not synchronized:
// callers that merge labels while other goroutines read must serialize
// access themselves.
package index

import (
	"sort"
	"strings"
)

// Position is a zero-based line / UTF-16 column pair.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Span is one lexical occurrence of a resource on a line.
type Span struct {
	// Start is the inclusive UTF-16 start column.
	Start int `json:"start"`

	// End is the exclusive UTF-16 end column.
	End int `json:"end"`

	// IRI is the absolute identifier the token denotes.
	IRI string `json:"iri"`
}

// Contains reports whether column char falls inside the span.
func (s Span) Contains(char int) bool {
	return s.Start <= char && char < s.End
}

// Occurrence is a Span together with its line.
type Occurrence struct {
	Line int
	Span
}

// DocumentIndex is the semantic and lexical index of one document.
type DocumentIndex struct {
	// Labels maps absolute IRI to display label. Keys are a subset of URIs.
	Labels map[string]string

	// URIs holds every absolute IRI used as subject or object.
	URIs map[string]struct{}

	// Prefixes maps declared prefix names to namespace IRIs.
	Prefixes map[string]string

	// Base is the declared base IRI, if any.
	Base string

	// Ranges maps a line number to its spans ordered by start column.
	Ranges map[int][]Span

	// FirstPos maps an IRI to its first lexical occurrence.
	FirstPos map[string]Position
}

func newDocumentIndex() *DocumentIndex {
	return &DocumentIndex{
		Labels:   make(map[string]string),
		URIs:     make(map[string]struct{}),
		Prefixes: make(map[string]string),
		Ranges:   make(map[int][]Span),
		FirstPos: make(map[string]Position),
	}
}

// IRIAt returns the span containing (line, char). The first recorded span
// wins when spans overlap.
func (d *DocumentIndex) IRIAt(line, char int) (Span, bool) {
	for _, s := range d.Ranges[line] {
		if s.Contains(char) {
			return s, true
		}
	}
	return Span{}, false
}

// Occurrences returns every lexical occurrence of iri in line order.
func (d *DocumentIndex) Occurrences(iri string) []Occurrence {
	var out []Occurrence
	for _, line := range d.sortedLines() {
		for _, s := range d.Ranges[line] {
			if s.IRI == iri {
				out = append(out, Occurrence{Line: line, Span: s})
			}
		}
	}
	return out
}

// Unlabeled returns the sorted IRIs of URIs that have no label.
func (d *DocumentIndex) Unlabeled() []string {
	var out []string
	for iri := range d.URIs {
		if _, ok := d.Labels[iri]; !ok {
			out = append(out, iri)
		}
	}
	sort.Strings(out)
	return out
}

// HasIRI reports whether iri is referenced by the document's triples.
func (d *DocumentIndex) HasIRI(iri string) bool {
	_, ok := d.URIs[iri]
	return ok
}

// Pretty renders iri as a prefixed name when a declared namespace is a
// string prefix of it (longest namespace wins), else as <iri>.
func (d *DocumentIndex) Pretty(iri string) string {
	if prefix, ns, ok := d.matchPrefix(iri); ok {
		return prefix + ":" + iri[len(ns):]
	}
	return "<" + iri + ">"
}

// Namespace returns the namespace iri belongs to: the longest declared
// namespace that prefixes it, else the text through the last '#' or '/'.
// Returns "" when neither applies.
func (d *DocumentIndex) Namespace(iri string) string {
	if _, ns, ok := d.matchPrefix(iri); ok {
		return ns
	}
	return NamespaceOf(iri)
}

// NamespaceOf returns iri up to and including its last '#' or '/'.
func NamespaceOf(iri string) string {
	i := strings.LastIndexAny(iri, "#/")
	if i < 0 {
		return ""
	}
	return iri[:i+1]
}

func (d *DocumentIndex) matchPrefix(iri string) (prefix, ns string, ok bool) {
	for p, candidate := range d.Prefixes {
		if candidate == "" || !strings.HasPrefix(iri, candidate) {
			continue
		}
		if !ok || len(candidate) > len(ns) || (len(candidate) == len(ns) && p < prefix) {
			prefix, ns, ok = p, candidate, true
		}
	}
	return prefix, ns, ok
}

// LabelsInNamespace returns the labels of IRIs starting with ns.
func (d *DocumentIndex) LabelsInNamespace(ns string) map[string]string {
	out := make(map[string]string)
	for iri, label := range d.Labels {
		if strings.HasPrefix(iri, ns) {
			out[iri] = label
		}
	}
	return out
}

// MergeLabels adds labels for IRIs this document references and has no
// label for yet. Labels defined by the document itself are never replaced.
// Returns the number of labels added.
func (d *DocumentIndex) MergeLabels(labels map[string]string) int {
	added := 0
	for iri, label := range labels {
		if _, ok := d.URIs[iri]; !ok {
			continue
		}
		if _, ok := d.Labels[iri]; ok {
			continue
		}
		d.Labels[iri] = label
		added++
	}
	return added
}

// Stats summarizes the index.
type Stats struct {
	URIs      int `json:"uris"`
	Labels    int `json:"labels"`
	Unlabeled int `json:"unlabeled"`
	Prefixes  int `json:"prefixes"`
	Spans     int `json:"spans"`
}

// Stats returns counts describing the index.
func (d *DocumentIndex) Stats() Stats {
	spans := 0
	for _, ss := range d.Ranges {
		spans += len(ss)
	}
	return Stats{
		URIs:      len(d.URIs),
		Labels:    len(d.Labels),
		Unlabeled: len(d.URIs) - len(d.Labels),
		Prefixes:  len(d.Prefixes),
		Spans:     spans,
	}
}

func (d *DocumentIndex) sortedLines() []int {
	lines := make([]int, 0, len(d.Ranges))
	for line := range d.Ranges {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}
