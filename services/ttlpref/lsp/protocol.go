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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// JSONRPCVersion is the JSON-RPC version used by LSP.
const JSONRPCVersion = "2.0"

// maxContentLength guards against absurd Content-Length values.
const maxContentLength = 64 << 20

// =============================================================================
// JSON-RPC MESSAGE TYPES
// =============================================================================

// Message is any incoming JSON-RPC message.
type Message struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the raw request id (number or string). Absent for notifications.
	ID json.RawMessage `json:"id,omitempty"`

	// Method is set on requests and notifications.
	Method string `json:"method,omitempty"`

	// Params contains the method parameters.
	Params json.RawMessage `json:"params,omitempty"`

	// Result is set on successful responses.
	Result json.RawMessage `json:"result,omitempty"`

	// Error is set on failed responses.
	Error *ResponseError `json:"error,omitempty"`
}

func (m *Message) hasID() bool {
	return len(m.ID) > 0 && !bytes.Equal(m.ID, []byte("null"))
}

// IsRequest reports whether the message expects a reply.
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.hasID()
}

// IsNotification reports whether the message is a notification.
func (m *Message) IsNotification() bool {
	return m.Method != "" && !m.hasID()
}

// IsResponse reports whether the message answers a server request.
func (m *Message) IsResponse() bool {
	return m.Method == "" && m.hasID()
}

// Request is an outgoing server-to-client request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification is an outgoing notification.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// resultResponse always carries "result", which may be null.
type resultResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *ResponseError  `json:"error"`
}

var nullID = json.RawMessage("null")

// =============================================================================
// PROTOCOL HANDLER
// =============================================================================

// Protocol handles JSON-RPC communication over a reader/writer pair.
//
// Description:
//
//	Implements the LSP base protocol using Content-Length headers.
//	Incoming responses are matched to pending server-initiated requests;
//	requests and notifications are returned by ReadMessage.
//
// Thread Safety:
//
//	Safe for concurrent use. ReadMessage must be called from a single
//	goroutine; writes may come from any goroutine.
type Protocol struct {
	reader    *bufio.Reader
	writer    io.Writer
	writeMu   sync.Mutex
	nextID    int64
	pending   map[int64]chan *Message
	pendingMu sync.Mutex
	closed    int32 // atomic: 1 if closed
}

// NewProtocol creates a protocol reading client messages from r and
// writing server messages to w.
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	return &Protocol{
		reader:  bufio.NewReader(r),
		writer:  w,
		pending: make(map[int64]chan *Message),
	}
}

// ReadMessage returns the next request or notification.
//
// Description:
//
//	Reads framed messages until a request or notification arrives.
//	Responses to server-initiated requests are routed to their waiters
//	on the way.
//
// Outputs:
//
//	*Message - The request or notification.
//	error - io.EOF at end of input; ErrMalformedMessage (recoverable) for a
//	        body that is not JSON-RPC; ErrFraming for broken headers.
//
// Thread Safety:
//
//	Must be called from a single goroutine.
func (p *Protocol) ReadMessage() (*Message, error) {
	for {
		body, err := p.readFrame()
		if err != nil {
			return nil, err
		}

		var msg Message
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}

		switch {
		case msg.IsResponse():
			p.dispatchResponse(&msg)
		case msg.Method != "":
			return &msg, nil
		default:
			return nil, fmt.Errorf("%w: neither request, notification nor response", ErrMalformedMessage)
		}
	}
}

// readFrame reads one Content-Length framed body.
func (p *Protocol) readFrame() ([]byte, error) {
	contentLength := -1
	sawHeader := false

	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && !sawHeader && line == "" {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("%w: read header: %v", ErrFraming, err)
		}
		line = strings.TrimSpace(line)

		// Empty line marks end of headers
		if line == "" {
			if !sawHeader {
				continue
			}
			break
		}
		sawHeader = true

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header %q", ErrFraming, line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 || n > maxContentLength {
				return nil, fmt.Errorf("%w: Content-Length %q", ErrFraming, value)
			}
			contentLength = n
		}
		// Ignore other headers (Content-Type, etc.)
	}

	if contentLength <= 0 {
		return nil, fmt.Errorf("%w: missing or zero Content-Length header", ErrFraming)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(p.reader, body); err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFraming, err)
	}
	return body, nil
}

func (p *Protocol) dispatchResponse(msg *Message) {
	id, err := strconv.ParseInt(string(msg.ID), 10, 64)
	if err != nil {
		return
	}

	// Sent under the lock so Close cannot close ch concurrently.
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()

	if ch, ok := p.pending[id]; ok {
		// Non-blocking send in case channel is full
		select {
		case ch <- msg:
		default:
		}
	}
}

// Reply sends a successful response. A nil result is sent as null.
func (p *Protocol) Reply(id json.RawMessage, result any) error {
	return p.writeMessage(resultResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  result,
	})
}

// ReplyError sends an error response. A nil id is sent as null.
func (p *Protocol) ReplyError(id json.RawMessage, rerr *ResponseError) error {
	if len(id) == 0 {
		id = nullID
	}
	return p.writeMessage(errorResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   rerr,
	})
}

// SendNotification sends a notification (no response expected).
func (p *Protocol) SendNotification(method string, params any) error {
	if atomic.LoadInt32(&p.closed) == 1 {
		return ErrClosed
	}
	return p.writeMessage(Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
	})
}

// SendRequest sends a server-to-client request and waits for the reply.
//
// Description:
//
//	The reply is delivered by the goroutine calling ReadMessage, so
//	SendRequest must not be called from that goroutine.
//
// Outputs:
//
//	json.RawMessage - The result payload.
//	error - ErrRequestTimeout when ctx ends first, *ResponseError when the
//	        client answered with an error, ErrClosed after Close.
func (p *Protocol) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if atomic.LoadInt32(&p.closed) == 1 {
		return nil, ErrClosed
	}

	id := atomic.AddInt64(&p.nextID, 1)

	// Create response channel
	respCh := make(chan *Message, 1)
	p.pendingMu.Lock()
	p.pending[id] = respCh
	p.pendingMu.Unlock()

	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	req := Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
	if err := p.writeMessage(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrRequestTimeout, ctx.Err())
	case resp, ok := <-respCh:
		if !ok || resp == nil {
			return nil, ErrClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// writeMessage marshals and writes a message with Content-Length header.
func (p *Protocol) writeMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := io.WriteString(p.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := p.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// Close marks the protocol as closed and releases pending requests.
// It does not close the underlying reader or writer.
func (p *Protocol) Close() {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return
	}

	p.pendingMu.Lock()
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
	p.pendingMu.Unlock()
}
