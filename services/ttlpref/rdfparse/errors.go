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
	"fmt"
)

// ErrUnsupportedFormat indicates Parse was called with an unknown Format.
var ErrUnsupportedFormat = errors.New("unsupported rdf format")

// ParseError reports malformed input.
//
// The index keeps the previous version of a document when Build returns a
// ParseError; the resolver falls back to the next serialization.
type ParseError struct {
	// Format is the serialization that failed to decode.
	Format Format

	// Err is the underlying decoder error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

// Unwrap returns the decoder error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
