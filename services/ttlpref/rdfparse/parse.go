// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rdfparse turns serialized RDF text into triples plus the declared
// prefix table.
//
// Decoding is delegated to github.com/knakk/rdf. The decoder does not expose
// the prefix bindings it sees, so prefix and base directives are collected
// lexically after a successful decode.
package rdfparse

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/knakk/rdf"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/vocab"
)

// =============================================================================
// FORMATS
// =============================================================================

// Format selects the serialization used by Parse.
type Format int

const (
	// FormatTurtle is text/turtle (N-Triples is a subset).
	FormatTurtle Format = iota

	// FormatRDFXML is application/rdf+xml.
	FormatRDFXML
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatTurtle:
		return "turtle"
	case FormatRDFXML:
		return "rdfxml"
	default:
		return "unknown"
	}
}

func (f Format) decoderFormat() (rdf.Format, error) {
	switch f {
	case FormatTurtle:
		return rdf.Turtle, nil
	case FormatRDFXML:
		return rdf.RDFXML, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedFormat, int(f))
	}
}

// =============================================================================
// TERMS & TRIPLES
// =============================================================================

// TermKind discriminates the node kinds of a triple.
type TermKind int

const (
	// TermIRI is an absolute resource identifier.
	TermIRI TermKind = iota

	// TermBlank is a blank node.
	TermBlank

	// TermLiteral is a literal value.
	TermLiteral
)

// Term is one node of a triple.
type Term struct {
	// Kind is the node kind.
	Kind TermKind

	// Value is the IRI, blank node label or literal lexical form.
	Value string

	// Datatype is the literal datatype IRI. Empty for non-literals.
	Datatype string

	// Lang is the literal language tag. Empty when untagged.
	Lang string

	// ExplicitType is set when the source wrote the datatype out, as in
	// "x"^^xsd:string. Only tracked for Turtle.
	ExplicitType bool
}

// IsIRI reports whether the term is an absolute identifier.
func (t Term) IsIRI() bool {
	return t.Kind == TermIRI
}

// IsPlainLiteral reports whether the term is a literal without an explicit
// datatype. The decoder assigns xsd:string to simple literals and
// rdf:langString to language-tagged ones, so both count as plain unless the
// datatype was written out.
func (t Term) IsPlainLiteral() bool {
	if t.Kind != TermLiteral || t.ExplicitType {
		return false
	}
	switch t.Datatype {
	case "", vocab.XsdString, vocab.RdfLangString:
		return true
	default:
		return false
	}
}

// Triple is a (subject, predicate, object) statement.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// Graph is the result of parsing one document.
type Graph struct {
	// Triples holds every decoded statement in document order.
	Triples []Triple

	// Prefixes maps declared prefix names to namespace IRIs.
	Prefixes map[string]string

	// Base is the last declared base IRI, if any.
	Base string
}

// =============================================================================
// PARSE
// =============================================================================

// Parse decodes text in the given format.
//
// Description:
//
//	Decodes every triple of text. For Turtle input the @prefix / PREFIX and
//	@base / BASE directives are collected into the returned Graph. Blank or
//	whitespace-only input yields an empty graph.
//
// Inputs:
//
//	text - The serialized document.
//	format - The serialization to decode.
//
// Outputs:
//
//	*Graph - The decoded graph. Never nil on success.
//	error - *ParseError when the text is malformed.
//
// Thread Safety:
//
//	Safe for concurrent use; Parse holds no shared state.
func Parse(text string, format Format) (g *Graph, err error) {
	decFormat, err := format.decoderFormat()
	if err != nil {
		return nil, err
	}

	g = &Graph{Prefixes: make(map[string]string)}
	if strings.TrimSpace(text) == "" {
		return g, nil
	}

	dec := rdf.NewTripleDecoder(strings.NewReader(text), decFormat)
	defer func() {
		if r := recover(); r != nil {
			g = nil
			err = &ParseError{Format: format, Err: fmt.Errorf("decoder panic: %v", r)}
		}
		if err != nil {
			drain(dec, drainLimit(text))
		}
	}()

	for {
		t, decErr := dec.Decode()
		if errors.Is(decErr, io.EOF) {
			break
		}
		if decErr != nil {
			return nil, &ParseError{Format: format, Err: decErr}
		}
		g.Triples = append(g.Triples, Triple{
			Subject:   convertTerm(t.Subj),
			Predicate: convertTerm(t.Pred),
			Object:    convertTerm(t.Obj),
		})
	}

	if format == FormatTurtle {
		g.Prefixes, g.Base = ScanDirectives(text)
		markExplicitStrings(g.Triples, scanStringLiterals(text, g.Prefixes))
	}
	return g, nil
}

// drain pulls the decoder to the end of its token stream. The Turtle
// decoder lexes on its own goroutine and blocks until every token is read,
// so abandoning it after an error would leak that goroutine and the text.
func drain(dec rdf.TripleDecoder, limit int) {
	defer func() { _ = recover() }()
	for i := 0; i < limit; i++ {
		if _, err := dec.Decode(); errors.Is(err, io.EOF) {
			return
		}
	}
}

// drainLimit bounds drain. Every token spans at least one byte or one line
// break, and each Decode call consumes at least one token.
func drainLimit(text string) int {
	return 2*len(text) + 16
}

func convertTerm(t rdf.Term) Term {
	switch t.Type() {
	case rdf.TermIRI:
		return Term{Kind: TermIRI, Value: t.String()}
	case rdf.TermBlank:
		return Term{Kind: TermBlank, Value: t.String()}
	}

	term := Term{Kind: TermLiteral, Value: t.String()}
	if lit, ok := t.(rdf.Literal); ok {
		term.Datatype = lit.DataType.String()
		term.Lang = lit.Lang()
	}
	return term
}

// directiveRe matches prefix and base directives in both Turtle and SPARQL
// spelling. Group 1 is the keyword, group 2 the prefix name, group 3 the IRI.
var directiveRe = regexp.MustCompile(`(?i)@?\b(prefix|base)\s+(?:([A-Za-z][\w\-.]*)?:\s*)?<([^>]*)>`)

// ScanDirectives collects prefix and base directives lexically. Later
// declarations win. It works on text the decoder rejects, which lets
// callers offer prefix-aware features while a document is being edited.
func ScanDirectives(text string) (prefixes map[string]string, base string) {
	prefixes = make(map[string]string)
	for _, m := range directiveRe.FindAllStringSubmatch(text, -1) {
		iri := ResolveIRI(base, m[3])
		if strings.EqualFold(m[1], "base") {
			base = iri
			continue
		}
		prefixes[m[2]] = iri
	}
	return prefixes, base
}

// schemeRe matches the scheme of an absolute IRI.
var schemeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+\-.]*:`)

// ResolveIRI resolves ref against base the way the decoder does: a relative
// reference is appended to the base verbatim. Absolute references and an
// empty base return ref unchanged. The text is never re-encoded, so empty
// fragments and non-ASCII characters survive and spans keep matching the
// decoded IRIs.
func ResolveIRI(base, ref string) string {
	if base == "" || schemeRe.MatchString(ref) {
		return ref
	}
	return base + ref
}
