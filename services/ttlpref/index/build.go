// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/rdfparse"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/vocab"
)

var (
	// iriTokenRe matches an absolute identifier written in angle brackets.
	iriTokenRe = regexp.MustCompile(`<([^<>\s"{}|^` + "`" + `\\]+)>`)

	// prefixedNameRe matches prefix:local. The prefix starts with a letter;
	// the local part allows word characters, hyphens and dots.
	prefixedNameRe = regexp.MustCompile(`([A-Za-z][\w\-]*):([A-Za-z_][\w\-.]*)`)
)

// buildConfig holds the Build options.
type buildConfig struct {
	labelPredicate string
	language       string
}

// Option configures Build.
type Option func(*buildConfig)

// WithLabelPredicate sets the predicate whose plain literal objects are
// treated as display labels. Default is skos:prefLabel.
func WithLabelPredicate(iri string) Option {
	return func(c *buildConfig) {
		if iri != "" {
			c.labelPredicate = iri
		}
	}
}

// WithLanguage sets the preferred label language tag.
func WithLanguage(lang string) Option {
	return func(c *buildConfig) {
		c.language = lang
	}
}

// Build indexes a Turtle document.
//
// Description:
//
//	Runs a semantic pass (triples, labels and prefix table from the parser)
//	followed by an independent lexical pass that records a span for every
//	<iri> token and every prefixed name whose prefix is declared. Prefixed
//	names with an undeclared prefix are skipped without error.
//
// Inputs:
//
//	text - The full document text.
//	opts - Optional label predicate and language preference.
//
// Outputs:
//
//	*DocumentIndex - The new index. Nil on error.
//	error - Wraps *rdfparse.ParseError when the text is malformed. No
//	        partial index is ever returned.
//
// Thread Safety:
//
//	Safe for concurrent use.
func Build(text string, opts ...Option) (*DocumentIndex, error) {
	cfg := buildConfig{labelPredicate: vocab.SkosPrefLabel}
	for _, opt := range opts {
		opt(&cfg)
	}

	start := time.Now()
	g, err := rdfparse.Parse(text, rdfparse.FormatTurtle)
	if err != nil {
		recordBuildMetrics(context.Background(), time.Since(start), 0, false)
		return nil, fmt.Errorf("build index: %w", err)
	}

	idx := newDocumentIndex()
	idx.Base = g.Base
	for p, ns := range g.Prefixes {
		idx.Prefixes[p] = ns
	}

	for _, t := range g.Triples {
		if t.Subject.IsIRI() {
			idx.URIs[t.Subject.Value] = struct{}{}
		}
		if t.Object.IsIRI() {
			idx.URIs[t.Object.Value] = struct{}{}
		}
	}
	for iri, label := range g.Labels(cfg.labelPredicate, cfg.language) {
		idx.Labels[iri] = label
	}

	scanLexical(idx, text)

	recordBuildMetrics(context.Background(), time.Since(start), len(idx.URIs), true)
	return idx, nil
}

// scanLexical fills Ranges and FirstPos from the raw text.
func scanLexical(idx *DocumentIndex, text string) {
	for lineNo, line := range SplitLines(text) {
		spans := scanLine(idx, line)
		if len(spans) == 0 {
			continue
		}
		sort.SliceStable(spans, func(i, j int) bool {
			return spans[i].Start < spans[j].Start
		})
		idx.Ranges[lineNo] = spans
		for _, s := range spans {
			if _, seen := idx.FirstPos[s.IRI]; !seen {
				idx.FirstPos[s.IRI] = Position{Line: lineNo, Character: s.Start}
			}
		}
	}
}

func scanLine(idx *DocumentIndex, line string) []Span {
	var spans []Span
	var taken [][2]int

	for _, m := range iriTokenRe.FindAllStringSubmatchIndex(line, -1) {
		iri := rdfparse.ResolveIRI(idx.Base, line[m[2]:m[3]])
		spans = append(spans, Span{
			Start: UTF16Column(line, m[0]),
			End:   UTF16Column(line, m[1]),
			IRI:   iri,
		})
		taken = append(taken, [2]int{m[0], m[1]})
	}

	for _, m := range prefixedNameRe.FindAllStringSubmatchIndex(line, -1) {
		if overlaps(taken, m[0], m[1]) {
			continue
		}
		ns, ok := idx.Prefixes[line[m[2]:m[3]]]
		if !ok {
			continue
		}
		// A statement terminator directly after the name is not part of it.
		local := strings.TrimRight(line[m[4]:m[5]], ".")
		end := m[4] + len(local)
		spans = append(spans, Span{
			Start: UTF16Column(line, m[0]),
			End:   UTF16Column(line, end),
			IRI:   ns + local,
		})
	}
	return spans
}

func overlaps(taken [][2]int, start, end int) bool {
	for _, t := range taken {
		if start < t[1] && t[0] < end {
			return true
		}
	}
	return false
}
