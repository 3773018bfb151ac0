// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsp implements the server side of the Language Server Protocol
// base layer for ttl-pref-ls.
//
// # Components
//
//   - Protocol: Content-Length framed JSON-RPC 2.0 over a reader/writer pair,
//     including server-initiated requests matched by id
//   - Server: method registry, lifecycle state machine and the read loop
//   - Types: the subset of LSP structures the language server exchanges
//
// # Lifecycle
//
// Requests other than initialize are rejected with ServerNotInitialized
// until initialize succeeds. After shutdown every request except exit is
// rejected with InvalidRequest. Serve returns when exit arrives or the input
// stream ends; ExitCode reports 0 only if shutdown preceded exit.
//
// # Thread Safety
//
// Protocol and Server are safe for concurrent use. Requests are handled one
// at a time, in arrival order, on the goroutine running Serve.
//
// # Example
//
//	proto := lsp.NewProtocol(os.Stdin, os.Stdout)
//	srv := lsp.NewServer(proto, lsp.WithLogger(logger))
//	srv.HandleRequest("textDocument/hover", hoverHandler)
//	err := srv.Serve(ctx)
package lsp
