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
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// EnrichPolicy decides which namespaces may be fetched to fill in labels.
type EnrichPolicy interface {
	Enrichable(namespace string) bool
}

// EnrichPolicyFunc adapts a function to EnrichPolicy.
type EnrichPolicyFunc func(namespace string) bool

// Enrichable calls f.
func (f EnrichPolicyFunc) Enrichable(namespace string) bool {
	return f(namespace)
}

// EnrichNone never fetches anything.
var EnrichNone EnrichPolicy = EnrichPolicyFunc(func(string) bool { return false })

// EnrichAll allows every namespace.
var EnrichAll EnrichPolicy = EnrichPolicyFunc(func(string) bool { return true })

// GlobPolicy allows namespaces matching any of its doublestar patterns.
// "*" does not cross "/" while "**" does, so "https://w3id.org/emmo*"
// matches "https://w3id.org/emmo#" but not "https://w3id.org/emmo/x/".
type GlobPolicy struct {
	patterns []string
}

// NewGlobPolicy validates patterns and builds a GlobPolicy.
func NewGlobPolicy(patterns []string) (*GlobPolicy, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, p)
		}
	}
	return &GlobPolicy{patterns: append([]string(nil), patterns...)}, nil
}

// Enrichable reports whether namespace matches a pattern.
func (p *GlobPolicy) Enrichable(namespace string) bool {
	for _, pattern := range p.patterns {
		if ok, err := doublestar.Match(pattern, namespace); err == nil && ok {
			return true
		}
	}
	return false
}

// Patterns returns a copy of the configured patterns.
func (p *GlobPolicy) Patterns() []string {
	return append([]string(nil), p.patterns...)
}
