// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rdfparse

import (
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/vocab"
)

const sampleTurtle = `@prefix skos: <http://www.w3.org/2004/02/skos/core#> .
@prefix ex: <http://example.com/ns#> .

<http://example.com/ns#Foo> skos:prefLabel "Foo"@en .
ex:Bar a skos:Concept ;
    skos:prefLabel "Bar" .
ex:Baz skos:prefLabel "42"^^<http://www.w3.org/2001/XMLSchema#integer> .
`

func TestParse_Turtle(t *testing.T) {
	g, err := Parse(sampleTurtle, FormatTurtle)
	require.NoError(t, err)

	assert.Len(t, g.Triples, 4)
	assert.Equal(t, "http://www.w3.org/2004/02/skos/core#", g.Prefixes["skos"])
	assert.Equal(t, "http://example.com/ns#", g.Prefixes["ex"])
	assert.Empty(t, g.Base)

	var sawType bool
	for _, tr := range g.Triples {
		if tr.Predicate.Value == vocab.RdfType {
			sawType = true
			assert.True(t, tr.Subject.IsIRI())
			assert.Equal(t, "http://example.com/ns#Bar", tr.Subject.Value)
		}
	}
	assert.True(t, sawType, "the a keyword should decode to rdf:type")
}

func TestParse_EmptyInput(t *testing.T) {
	g, err := Parse("  \n\t", FormatTurtle)
	require.NoError(t, err)
	assert.Empty(t, g.Triples)
	assert.NotNil(t, g.Prefixes)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse(`<http://example.com/a> <http://example.com/b>`, FormatTurtle)
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, FormatTurtle, pe.Format)
	assert.True(t, IsParseError(err))
	assert.Contains(t, err.Error(), "parse turtle")
}

func TestParse_MalformedDoesNotLeakDecoder(t *testing.T) {
	text := "@prefix ex: <http://example.com/ns#> .\n" +
		"ex:A ex:p ex:B ex:C .\n" +
		strings.Repeat("ex:D ex:p ex:E .\n", 20)

	before := runtime.NumGoroutine()
	for i := 0; i < 200; i++ {
		_, err := Parse(text, FormatTurtle)
		require.Error(t, err)
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+5
	}, 5*time.Second, 20*time.Millisecond, "failed parses must release the lexer goroutine")
}

func TestParse_ExplicitStringDatatype(t *testing.T) {
	text := `@prefix skos: <http://www.w3.org/2004/02/skos/core#> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
<http://example.com/ns#A> skos:prefLabel "Same"^^xsd:string .
<http://example.com/ns#B> skos:prefLabel "Same" .
<http://example.com/ns#C> skos:prefLabel "C"^^<http://www.w3.org/2001/XMLSchema#string> .
<http://example.com/ns#D> skos:prefLabel """it's "long" text""" ; # a "quote" in a comment
    skos:altLabel 'D'^^xsd:string .
`
	g, err := Parse(text, FormatTurtle)
	require.NoError(t, err)
	require.Len(t, g.Triples, 5)

	explicit := make(map[string]bool)
	for _, tr := range g.Triples {
		explicit[tr.Subject.Value+" "+tr.Object.Value] = tr.Object.ExplicitType
	}
	assert.True(t, explicit["http://example.com/ns#A Same"])
	assert.False(t, explicit["http://example.com/ns#B Same"])
	assert.True(t, explicit["http://example.com/ns#C C"])
	assert.False(t, explicit[`http://example.com/ns#D it's "long" text`])
	assert.True(t, explicit["http://example.com/ns#D D"])

	labels := g.Labels(vocab.SkosPrefLabel, "")
	assert.NotContains(t, labels, "http://example.com/ns#A")
	assert.NotContains(t, labels, "http://example.com/ns#C")
	assert.Equal(t, "Same", labels["http://example.com/ns#B"])
	assert.Equal(t, `it's "long" text`, labels["http://example.com/ns#D"])
}

func TestUnescapeLiteral(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{`plain`, "plain"},
		{`a\tb`, "a\tb"},
		{`q\"q`, `q"q`},
		{`\u00E9t\u00e9`, "été"},
		{`\U0001F600`, "\U0001F600"},
		{`bad\u00`, `bad\u00`},
		{`keep\x`, `keep\x`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, unescapeLiteral(tt.raw), tt.raw)
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := Parse("<a> <b> <c> .", Format(42))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParse_RDFXML(t *testing.T) {
	doc := `<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:skos="http://www.w3.org/2004/02/skos/core#">
  <rdf:Description rdf:about="http://example.com/ns#Foo">
    <skos:prefLabel>Foo</skos:prefLabel>
  </rdf:Description>
</rdf:RDF>`

	g, err := Parse(doc, FormatRDFXML)
	require.NoError(t, err)

	labels := g.Labels(vocab.SkosPrefLabel, "")
	assert.Equal(t, "Foo", labels["http://example.com/ns#Foo"])
}

func TestParse_Directives(t *testing.T) {
	text := `@base <http://example.com/base/> .
@prefix rel: <rel#> .
@prefix ex: <http://example.com/ns#> .
@prefix ex: <http://example.com/other#> .
<a> rel:p ex:c .
`
	g, err := Parse(text, FormatTurtle)
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/base/", g.Base)
	assert.Equal(t, "http://example.com/base/rel#", g.Prefixes["rel"])
	assert.Equal(t, "http://example.com/other#", g.Prefixes["ex"], "later declarations win")
}

func TestLabels(t *testing.T) {
	g, err := Parse(sampleTurtle, FormatTurtle)
	require.NoError(t, err)

	labels := g.Labels(vocab.SkosPrefLabel, "en")
	assert.Equal(t, "Foo", labels["http://example.com/ns#Foo"])
	assert.Equal(t, "Bar", labels["http://example.com/ns#Bar"])

	_, ok := labels["http://example.com/ns#Baz"]
	assert.False(t, ok, "datatyped literals are not labels")
}

func TestLabels_LanguagePreference(t *testing.T) {
	text := `@prefix skos: <http://www.w3.org/2004/02/skos/core#> .
<http://example.com/ns#A> skos:prefLabel "A-de"@de , "A-plain" , "A-gb"@en-GB .
<http://example.com/ns#B> skos:prefLabel "B-de"@de , "B-en"@en .
<http://example.com/ns#C> skos:prefLabel "C-fr"@fr , "C-de"@de .
`
	g, err := Parse(text, FormatTurtle)
	require.NoError(t, err)

	labels := g.Labels(vocab.SkosPrefLabel, "en")
	assert.Equal(t, "A-gb", labels["http://example.com/ns#A"])
	assert.Equal(t, "B-en", labels["http://example.com/ns#B"])
	assert.Equal(t, "C-fr", labels["http://example.com/ns#C"], "ties keep document order")

	noPref := g.Labels(vocab.SkosPrefLabel, "")
	assert.Equal(t, "A-plain", noPref["http://example.com/ns#A"])
}

func TestResolveIRI(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"", "Foo", "Foo"},
		{"http://example.com/a/", "Foo", "http://example.com/a/Foo"},
		{"http://example.com/a/", "http://other.org/x", "http://other.org/x"},
		{"http://example.com/ns", "#Frag", "http://example.com/ns#Frag"},
		{"http://example.com/ns", "#", "http://example.com/ns#"},
		{"http://example.com/base/", "rel#", "http://example.com/base/rel#"},
		{"http://example.com/base/", "Straße#", "http://example.com/base/Straße#"},
		{"http://example.com/base/", "urn:x-local:a", "urn:x-local:a"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveIRI(tt.base, tt.ref), "ResolveIRI(%q, %q)", tt.base, tt.ref)
	}
}

func TestScanDirectives_UnparsableText(t *testing.T) {
	text := `@prefix ex: <http://example.com/ns#> .
PREFIX dc: <http://purl.org/dc/terms/>
ex:a ex:b ex:`

	_, err := Parse(text, FormatTurtle)
	require.Error(t, err)

	prefixes, base := ScanDirectives(text)
	assert.Equal(t, map[string]string{
		"ex": "http://example.com/ns#",
		"dc": "http://purl.org/dc/terms/",
	}, prefixes)
	assert.Empty(t, base)
}
