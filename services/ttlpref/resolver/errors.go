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

import "errors"

// Sentinel errors reported in Result.Err.
var (
	// ErrFetchFailed indicates the fetch produced no response.
	ErrFetchFailed = errors.New("namespace fetch failed")

	// ErrBadStatus indicates a non-success HTTP status.
	ErrBadStatus = errors.New("namespace fetch returned non-success status")

	// ErrUnparsable indicates the body was neither Turtle nor RDF/XML.
	ErrUnparsable = errors.New("namespace document is not parsable")

	// ErrNoLabels indicates the document parsed but held no labels.
	ErrNoLabels = errors.New("namespace document has no labels")

	// ErrWorkerPanic indicates the fetch worker panicked.
	ErrWorkerPanic = errors.New("namespace worker panicked")

	// ErrBodyTooLarge indicates the response exceeded the size cap.
	ErrBodyTooLarge = errors.New("response body too large")
)
