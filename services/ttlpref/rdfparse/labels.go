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

import "strings"

// Labels extracts display labels from the graph.
//
// Description:
//
//	Returns subject IRI -> label for every triple whose predicate equals
//	predicate, whose subject is an IRI and whose object is a plain literal.
//	Datatyped literals never produce labels.
//
// Inputs:
//
//	predicate - The label predicate IRI (usually skos:prefLabel).
//	language - Preferred language tag. May be empty.
//
// Outputs:
//
//	map[string]string - The labels. Never nil.
//
// Behavior:
//
//	When a subject carries several plain labels one is chosen by rank:
//	  1. language tag equal to language (case-insensitive)
//	  2. same primary subtag ("en-GB" for "en")
//	  3. untagged
//	  4. anything else
//	Ties keep the first label in document order.
func (g *Graph) Labels(predicate, language string) map[string]string {
	type candidate struct {
		value string
		rank  int
	}

	best := make(map[string]candidate)
	for _, t := range g.Triples {
		if t.Predicate.Value != predicate || !t.Subject.IsIRI() || !t.Object.IsPlainLiteral() {
			continue
		}
		rank := labelRank(t.Object.Lang, language)
		if cur, ok := best[t.Subject.Value]; ok && cur.rank <= rank {
			continue
		}
		best[t.Subject.Value] = candidate{value: t.Object.Value, rank: rank}
	}

	labels := make(map[string]string, len(best))
	for iri, c := range best {
		labels[iri] = c.value
	}
	return labels
}

func labelRank(lang, want string) int {
	switch {
	case want != "" && strings.EqualFold(lang, want):
		return 0
	case want != "" && lang != "" && strings.EqualFold(primarySubtag(lang), primarySubtag(want)):
		return 1
	case lang == "":
		return 2
	default:
		return 3
	}
}

func primarySubtag(tag string) string {
	if i := strings.IndexByte(tag, '-'); i >= 0 {
		return tag[:i]
	}
	return tag
}
