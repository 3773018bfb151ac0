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
	"errors"
	"fmt"
)

// Sentinel errors for protocol operations.
var (
	// ErrClosed indicates the protocol was closed.
	ErrClosed = errors.New("lsp protocol closed")

	// ErrRequestTimeout indicates a server-initiated request got no reply in time.
	ErrRequestTimeout = errors.New("lsp request timeout")

	// ErrMalformedMessage indicates a framed body that is not a JSON-RPC message.
	// The stream stays usable after this error.
	ErrMalformedMessage = errors.New("malformed json-rpc message")

	// ErrFraming indicates broken Content-Length framing. The stream is unusable.
	ErrFraming = errors.New("invalid message framing")

	// ErrAlreadyServing indicates Serve was called twice.
	ErrAlreadyServing = errors.New("server already serving")
)

// JSON-RPC and LSP error codes.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeServerNotInitialized = -32002
	CodeRequestCancelled     = -32800
)

// ResponseError is a JSON-RPC error object. It doubles as a Go error so
// handlers can return it to control the code sent to the client.
type ResponseError struct {
	// Code is the JSON-RPC error code.
	Code int `json:"code"`

	// Message is a short description of the error.
	Message string `json:"message"`

	// Data contains additional error information.
	Data any `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("LSP error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("LSP error %d: %s", e.Code, e.Message)
}

// IsMethodNotFound returns true if the method is not supported.
func (e *ResponseError) IsMethodNotFound() bool {
	return e.Code == CodeMethodNotFound
}

// IsServerNotInitialized returns true if the server was not initialized.
func (e *ResponseError) IsServerNotInitialized() bool {
	return e.Code == CodeServerNotInitialized
}

// NewError creates a ResponseError.
func NewError(code int, format string, args ...any) *ResponseError {
	return &ResponseError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvalidParams creates an InvalidParams error.
func InvalidParams(err error) *ResponseError {
	return NewError(CodeInvalidParams, "invalid params: %v", err)
}

// toResponseError maps a handler error to the error sent on the wire.
func toResponseError(err error) *ResponseError {
	var re *ResponseError
	if errors.As(err, &re) {
		return re
	}
	return NewError(CodeInternalError, "%v", err)
}
