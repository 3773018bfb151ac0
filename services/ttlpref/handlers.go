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
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/lsp"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/rdfparse"
)

// DefaultRefreshTimeout bounds the wait for the client to acknowledge an
// inlay hint refresh.
const DefaultRefreshTimeout = 5 * time.Second

// LSPNotifier delivers service notifications over an lsp.Server.
//
// Inlay hint refresh requests are only sent once the client has declared
// support for them during initialize.
type LSPNotifier struct {
	srv            *lsp.Server
	refresh        atomic.Bool
	refreshTimeout time.Duration
}

// NewLSPNotifier creates a notifier bound to srv.
func NewLSPNotifier(srv *lsp.Server) *LSPNotifier {
	return &LSPNotifier{srv: srv, refreshTimeout: DefaultRefreshTimeout}
}

// SetRefreshSupport records whether the client accepts refresh requests.
func (n *LSPNotifier) SetRefreshSupport(ok bool) {
	n.refresh.Store(ok)
}

// PublishDiagnostics sends textDocument/publishDiagnostics.
func (n *LSPNotifier) PublishDiagnostics(ctx context.Context, uri string, version int, diags []lsp.Diagnostic) error {
	if diags == nil {
		diags = []lsp.Diagnostic{}
	}
	v := version
	return n.srv.Notify(lsp.MethodPublishDiagnostics, lsp.PublishDiagnosticsParams{
		URI:         uri,
		Version:     &v,
		Diagnostics: diags,
	})
}

// RefreshInlayHints sends workspace/inlayHint/refresh and waits for the
// reply. A no-op when the client did not advertise support.
func (n *LSPNotifier) RefreshInlayHints(ctx context.Context) error {
	if !n.refresh.Load() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, n.refreshTimeout)
	defer cancel()
	_, err := n.srv.Request(ctx, lsp.MethodInlayHintRefresh, nil)
	return err
}

// Capabilities returns what the server advertises on initialize.
func Capabilities() lsp.ServerCapabilities {
	return lsp.ServerCapabilities{
		TextDocumentSync: lsp.TextDocumentSyncFull,
		HoverProvider:    true,
		CompletionProvider: &lsp.CompletionOptions{
			TriggerCharacters: []string{":"},
		},
		InlayHintProvider: true,
	}
}

// RegisterHandlers binds svc to every method the server implements.
//
// Description:
//
//	Document notifications feed Open/Change/Close. A document that fails
//	to parse is not an error from the client's point of view, so parse
//	failures are logged by the service and swallowed here. shutdown stops
//	the service's background waiters.
//
// Inputs:
//
//	srv - The LSP server to register on.
//	svc - The service answering queries.
//	notifier - The notifier svc publishes through. Its refresh support is
//	           set from the client's capabilities.
//	logger - Logger for handler failures.
func RegisterHandlers(srv *lsp.Server, svc *Service, notifier *LSPNotifier, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	srv.HandleRequest(lsp.MethodInitialize, func(ctx context.Context, raw json.RawMessage) (any, error) {
		params, err := lsp.DecodeParams[lsp.InitializeParams](raw)
		if err != nil {
			return nil, err
		}
		notifier.SetRefreshSupport(params.Capabilities.SupportsInlayHintRefresh())

		attrs := []any{slog.Bool("inlay_hint_refresh", params.Capabilities.SupportsInlayHintRefresh())}
		if params.ClientInfo != nil {
			attrs = append(attrs,
				slog.String("client", params.ClientInfo.Name),
				slog.String("client_version", params.ClientInfo.Version),
			)
		}
		logger.Info("initialize", attrs...)

		return lsp.InitializeResult{
			Capabilities: Capabilities(),
			ServerInfo:   &lsp.ServerInfo{Name: ServerName, Version: Version},
		}, nil
	})

	srv.HandleNotification(lsp.MethodInitialized, func(ctx context.Context, _ json.RawMessage) error {
		return nil
	})

	srv.HandleRequest(lsp.MethodShutdown, func(ctx context.Context, _ json.RawMessage) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return nil, svc.Shutdown(ctx)
	})

	srv.HandleNotification(lsp.MethodDidOpen, func(ctx context.Context, raw json.RawMessage) error {
		params, err := lsp.DecodeParams[lsp.DidOpenTextDocumentParams](raw)
		if err != nil {
			return err
		}
		doc := params.TextDocument
		return ignoreParseError(svc.Open(ctx, doc.URI, doc.Version, doc.Text))
	})

	srv.HandleNotification(lsp.MethodDidChange, func(ctx context.Context, raw json.RawMessage) error {
		params, err := lsp.DecodeParams[lsp.DidChangeTextDocumentParams](raw)
		if err != nil {
			return err
		}
		if len(params.ContentChanges) == 0 {
			return nil
		}
		// Full sync: the last change carries the whole text.
		text := params.ContentChanges[len(params.ContentChanges)-1].Text
		doc := params.TextDocument
		return ignoreParseError(svc.Change(ctx, doc.URI, doc.Version, text))
	})

	srv.HandleNotification(lsp.MethodDidClose, func(ctx context.Context, raw json.RawMessage) error {
		params, err := lsp.DecodeParams[lsp.DidCloseTextDocumentParams](raw)
		if err != nil {
			return err
		}
		return svc.Close(ctx, params.TextDocument.URI)
	})

	srv.HandleNotification(lsp.MethodCancelRequest, func(ctx context.Context, _ json.RawMessage) error {
		// Requests are answered in order and none outlives the completion
		// wait, so there is nothing to cancel.
		return nil
	})

	srv.HandleRequest(lsp.MethodHover, func(ctx context.Context, raw json.RawMessage) (any, error) {
		params, err := lsp.DecodeParams[lsp.TextDocumentPositionParams](raw)
		if err != nil {
			return nil, err
		}
		hover, err := svc.Hover(ctx, params.TextDocument.URI, params.Position)
		if err != nil || hover == nil {
			return nil, err
		}
		return hover, nil
	})

	srv.HandleRequest(lsp.MethodCompletion, func(ctx context.Context, raw json.RawMessage) (any, error) {
		params, err := lsp.DecodeParams[lsp.CompletionParams](raw)
		if err != nil {
			return nil, err
		}
		list, err := svc.Completion(ctx, params.TextDocument.URI, params.Position)
		if err != nil || list == nil {
			return nil, err
		}
		return list, nil
	})

	srv.HandleRequest(lsp.MethodInlayHint, func(ctx context.Context, raw json.RawMessage) (any, error) {
		params, err := lsp.DecodeParams[lsp.InlayHintParams](raw)
		if err != nil {
			return nil, err
		}
		return svc.InlayHints(ctx, params.TextDocument.URI, params.Range)
	})
}

func ignoreParseError(err error) error {
	if rdfparse.IsParseError(err) {
		return nil
	}
	return err
}
