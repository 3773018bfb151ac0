// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/telemetry"
)

// =============================================================================
// SERVER STATE
// =============================================================================

// ServerState represents the lifecycle state of the server.
type ServerState int

const (
	// ServerStateUninitialized is the state before initialize succeeds.
	ServerStateUninitialized ServerState = iota

	// ServerStateReady means initialize succeeded.
	ServerStateReady

	// ServerStateStopping means shutdown was received.
	ServerStateStopping

	// ServerStateStopped means Serve returned.
	ServerStateStopped
)

// String returns a human-readable state name.
func (s ServerState) String() string {
	names := []string{"uninitialized", "ready", "stopping", "stopped"}
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// =============================================================================
// HANDLERS
// =============================================================================

// Handler answers a request. The returned value is marshaled as the result;
// a nil value is sent as null. Returning a *ResponseError selects the error
// code, any other error is reported as InternalError.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// NotificationHandler processes a notification. Errors are only logged.
type NotificationHandler func(ctx context.Context, params json.RawMessage) error

// DecodeParams unmarshals raw params into T, mapping failures to
// InvalidParams.
func DecodeParams[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, InvalidParams(errors.New("missing params"))
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, InvalidParams(err)
	}
	return v, nil
}

// =============================================================================
// SERVER
// =============================================================================

// Server dispatches incoming LSP messages to registered handlers.
//
// Thread Safety:
//
//	Handlers may be registered at any time. Notify and Request may be
//	called from any goroutine except the one running Serve (Request would
//	deadlock there).
type Server struct {
	protocol *Protocol
	logger   *slog.Logger

	requests      map[string]Handler
	notifications map[string]NotificationHandler
	handlersMu    sync.RWMutex

	state             ServerState
	shutdownRequested bool
	stateMu           sync.RWMutex

	serving int32
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server on top of protocol.
func NewServer(protocol *Protocol, opts ...ServerOption) *Server {
	s := &Server{
		protocol:      protocol,
		logger:        slog.Default(),
		requests:      make(map[string]Handler),
		notifications: make(map[string]NotificationHandler),
		state:         ServerStateUninitialized,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleRequest registers the handler for a request method.
func (s *Server) HandleRequest(method string, h Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.requests[method] = h
}

// HandleNotification registers the handler for a notification method.
func (s *Server) HandleNotification(method string, h NotificationHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.notifications[method] = h
}

// State returns the lifecycle state.
func (s *Server) State() ServerState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// ExitCode returns the process exit code mandated by the protocol: 0 when
// shutdown was received before exit, 1 otherwise.
func (s *Server) ExitCode() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.shutdownRequested {
		return 0
	}
	return 1
}

// Notify sends a notification to the client.
func (s *Server) Notify(method string, params any) error {
	return s.protocol.SendNotification(method, params)
}

// Request sends a request to the client and waits for its reply.
func (s *Server) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return s.protocol.SendRequest(ctx, method, params)
}

// Serve reads and dispatches messages until exit or end of input.
//
// Description:
//
//	Requests are handled sequentially in arrival order. Malformed bodies
//	are answered with ParseError and skipped. ctx is passed to handlers and
//	checked between messages.
//
// Outputs:
//
//	error - nil on exit or end of input; ErrFraming wrapped when the stream
//	        is corrupt; ctx.Err() when ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.serving, 0, 1) {
		return ErrAlreadyServing
	}
	defer s.protocol.Close()
	defer s.setState(ServerStateStopped)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := s.protocol.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("client closed the input stream")
				return nil
			}
			if errors.Is(err, ErrMalformedMessage) {
				s.logger.Warn("malformed message", slog.String("error", err.Error()))
				_ = s.protocol.ReplyError(nil, NewError(CodeParseError, "%v", err))
				continue
			}
			return fmt.Errorf("read: %w", err)
		}

		if msg.IsNotification() {
			if s.handleNotification(ctx, msg) {
				return nil
			}
			continue
		}
		s.handleRequest(ctx, msg)
	}
}

func (s *Server) handleRequest(ctx context.Context, msg *Message) {
	start := time.Now()
	ctx, span := startRequestSpan(ctx, msg.Method)
	defer span.End()

	result, rerr := s.dispatch(ctx, msg)

	var writeErr error
	if rerr != nil {
		span.SetStatus(codes.Error, rerr.Message)
		writeErr = s.protocol.ReplyError(msg.ID, rerr)
	} else {
		writeErr = s.protocol.Reply(msg.ID, result)
	}
	if writeErr != nil {
		telemetry.LoggerWithTrace(ctx, s.logger).Error("failed to write response",
			slog.String("method", msg.Method),
			slog.String("error", writeErr.Error()),
		)
	}

	recordRequestMetrics(ctx, msg.Method, time.Since(start), rerr == nil)
}

// dispatch applies the lifecycle rules and runs the handler.
func (s *Server) dispatch(ctx context.Context, msg *Message) (result any, rerr *ResponseError) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("request handler panicked",
				slog.String("method", msg.Method),
				slog.Any("panic", p),
			)
			result, rerr = nil, NewError(CodeInternalError, "internal error: %v", p)
		}
	}()

	state := s.State()
	switch {
	case msg.Method == MethodInitialize && state != ServerStateUninitialized:
		return nil, NewError(CodeInvalidRequest, "server already initialized")
	case msg.Method != MethodInitialize && state == ServerStateUninitialized:
		return nil, NewError(CodeServerNotInitialized, "server not initialized")
	case state == ServerStateStopping:
		return nil, NewError(CodeInvalidRequest, "server is shutting down")
	}

	h, ok := s.lookupRequest(msg.Method)

	if msg.Method == MethodShutdown {
		s.stateMu.Lock()
		s.state = ServerStateStopping
		s.shutdownRequested = true
		s.stateMu.Unlock()
		if ok {
			if err := callHandler(ctx, h, msg.Params); err != nil {
				s.logger.Warn("shutdown handler failed", slog.String("error", err.Error()))
			}
		}
		return nil, nil
	}

	if !ok {
		return nil, NewError(CodeMethodNotFound, "method not found: %s", msg.Method)
	}

	result, err := h(ctx, msg.Params)
	if err != nil {
		return nil, toResponseError(err)
	}
	if msg.Method == MethodInitialize {
		s.setState(ServerStateReady)
	}
	return result, nil
}

func callHandler(ctx context.Context, h Handler, params json.RawMessage) error {
	_, err := h(ctx, params)
	return err
}

// handleNotification runs a notification handler. Returns true on exit.
func (s *Server) handleNotification(ctx context.Context, msg *Message) (exit bool) {
	if msg.Method == MethodExit {
		return true
	}

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("notification handler panicked",
				slog.String("method", msg.Method),
				slog.Any("panic", p),
			)
			recordNotification(ctx, msg.Method, false)
		}
	}()

	if s.State() == ServerStateUninitialized {
		s.logger.Debug("dropping notification before initialize", slog.String("method", msg.Method))
		return false
	}

	h, ok := s.lookupNotification(msg.Method)
	if !ok {
		// $/ notifications are optional and may be ignored silently.
		if !strings.HasPrefix(msg.Method, "$/") {
			s.logger.Debug("unhandled notification", slog.String("method", msg.Method))
		}
		return false
	}

	err := h(ctx, msg.Params)
	if err != nil {
		s.logger.Warn("notification handler failed",
			slog.String("method", msg.Method),
			slog.String("error", err.Error()),
		)
	}
	recordNotification(ctx, msg.Method, err == nil)
	return false
}

func (s *Server) lookupRequest(method string) (Handler, bool) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	h, ok := s.requests[method]
	return h, ok
}

func (s *Server) lookupNotification(method string) (NotificationHandler, bool) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	h, ok := s.notifications[method]
	return h, ok
}

func (s *Server) setState(state ServerState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}
