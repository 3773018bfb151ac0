// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vocab holds the standard vocabulary IRIs the language server relies on.
package vocab

// Namespace IRIs.
const (
	RDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFS = "http://www.w3.org/2000/01/rdf-schema#"
	OWL  = "http://www.w3.org/2002/07/owl#"
	XSD  = "http://www.w3.org/2001/XMLSchema#"
	SKOS = "http://www.w3.org/2004/02/skos/core#"
)

// SKOS (Simple Knowledge Organization System) IRIs.
const (
	// SkosPrefLabel provides the preferred lexical label for a resource.
	// It is the default label predicate.
	SkosPrefLabel = SKOS + "prefLabel"

	// SkosAltLabel provides an alternative lexical label for a resource.
	SkosAltLabel = SKOS + "altLabel"
)

// RDF / RDFS / XSD IRIs.
const (
	// RdfType is the predicate abbreviated by the "a" keyword in Turtle.
	RdfType = RDF + "type"

	// RdfLangString is the datatype of language-tagged literals.
	RdfLangString = RDF + "langString"

	// RdfsLabel provides a human-readable name for a resource.
	RdfsLabel = RDFS + "label"

	// XsdString is the implicit datatype of simple literals.
	XsdString = XSD + "string"
)

// TypeKeyword is the Turtle shorthand for RdfType.
const TypeKeyword = "a"

// WellKnownPrefixes maps conventional prefix names to the namespaces above.
var WellKnownPrefixes = map[string]string{
	"rdf":  RDF,
	"rdfs": RDFS,
	"owl":  OWL,
	"xsd":  XSD,
	"skos": SKOS,
}

// Compact renders iri with a well-known prefix, or as <iri>.
func Compact(iri string) string {
	for prefix, ns := range WellKnownPrefixes {
		if len(iri) > len(ns) && iri[:len(ns)] == ns {
			return prefix + ":" + iri[len(ns):]
		}
	}
	return "<" + iri + ">"
}
