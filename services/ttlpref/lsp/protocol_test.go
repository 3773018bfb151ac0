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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

func framed(msgs ...string) string {
	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "Content-Length: %d\r\n\r\n%s", len(m), m)
	}
	return sb.String()
}

func TestProtocol_WriteMessage(t *testing.T) {
	t.Run("writes Content-Length header", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(strings.NewReader(""), &buf)

		if err := p.SendNotification("test", nil); err != nil {
			t.Fatalf("SendNotification: %v", err)
		}

		body := `{"jsonrpc":"2.0","method":"test"}`
		want := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
		if buf.String() != want {
			t.Errorf("got %q, want %q", buf.String(), want)
		}
	})

	t.Run("reply keeps null result", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(strings.NewReader(""), &buf)

		if err := p.Reply(json.RawMessage(`7`), nil); err != nil {
			t.Fatalf("Reply: %v", err)
		}
		if !strings.Contains(buf.String(), `{"jsonrpc":"2.0","id":7,"result":null}`) {
			t.Errorf("unexpected reply: %s", buf.String())
		}
	})

	t.Run("reply error with unknown id uses null", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(strings.NewReader(""), &buf)

		if err := p.ReplyError(nil, NewError(CodeParseError, "bad")); err != nil {
			t.Fatalf("ReplyError: %v", err)
		}
		if !strings.Contains(buf.String(), `"id":null`) {
			t.Errorf("missing null id in: %s", buf.String())
		}
		if !strings.Contains(buf.String(), `"code":-32700`) {
			t.Errorf("missing error code in: %s", buf.String())
		}
	})

	t.Run("string ids are echoed verbatim", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(strings.NewReader(""), &buf)

		if err := p.Reply(json.RawMessage(`"abc"`), "ok"); err != nil {
			t.Fatalf("Reply: %v", err)
		}
		if !strings.Contains(buf.String(), `"id":"abc"`) {
			t.Errorf("missing string id in: %s", buf.String())
		}
	})
}

func TestProtocol_ReadMessage(t *testing.T) {
	t.Run("reads request", func(t *testing.T) {
		input := framed(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
		p := NewProtocol(strings.NewReader(input), io.Discard)

		msg, err := p.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		if !msg.IsRequest() || msg.Method != "initialize" || string(msg.ID) != "1" {
			t.Errorf("unexpected message: %+v", msg)
		}
	})

	t.Run("reads notification", func(t *testing.T) {
		input := framed(`{"jsonrpc":"2.0","method":"initialized","params":{}}`)
		p := NewProtocol(strings.NewReader(input), io.Discard)

		msg, err := p.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		if !msg.IsNotification() {
			t.Errorf("expected notification: %+v", msg)
		}
	})

	t.Run("handles multiple headers", func(t *testing.T) {
		body := `{"jsonrpc":"2.0","method":"x"}`
		input := fmt.Sprintf("Content-Length: %d\r\nContent-Type: application/vscode-jsonrpc; charset=utf-8\r\n\r\n%s", len(body), body)
		p := NewProtocol(strings.NewReader(input), io.Discard)

		if _, err := p.ReadMessage(); err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
	})

	t.Run("returns EOF at end of input", func(t *testing.T) {
		p := NewProtocol(strings.NewReader(""), io.Discard)
		if _, err := p.ReadMessage(); !errors.Is(err, io.EOF) {
			t.Errorf("got %v, want io.EOF", err)
		}
	})

	t.Run("malformed body is recoverable", func(t *testing.T) {
		input := framed(`{not json`, `{"jsonrpc":"2.0","method":"x"}`)
		p := NewProtocol(strings.NewReader(input), io.Discard)

		if _, err := p.ReadMessage(); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("got %v, want ErrMalformedMessage", err)
		}
		msg, err := p.ReadMessage()
		if err != nil {
			t.Fatalf("second ReadMessage: %v", err)
		}
		if msg.Method != "x" {
			t.Errorf("got method %q", msg.Method)
		}
	})

	t.Run("missing Content-Length is a framing error", func(t *testing.T) {
		p := NewProtocol(strings.NewReader("Content-Type: x\r\n\r\n{}"), io.Discard)
		if _, err := p.ReadMessage(); !errors.Is(err, ErrFraming) {
			t.Errorf("got %v, want ErrFraming", err)
		}
	})

	t.Run("invalid Content-Length is a framing error", func(t *testing.T) {
		p := NewProtocol(strings.NewReader("Content-Length: abc\r\n\r\n{}"), io.Discard)
		if _, err := p.ReadMessage(); !errors.Is(err, ErrFraming) {
			t.Errorf("got %v, want ErrFraming", err)
		}
	})

	t.Run("truncated body is a framing error", func(t *testing.T) {
		p := NewProtocol(strings.NewReader("Content-Length: 100\r\n\r\n{}"), io.Discard)
		if _, err := p.ReadMessage(); !errors.Is(err, ErrFraming) {
			t.Errorf("got %v, want ErrFraming", err)
		}
	})
}

func TestProtocol_SendRequest(t *testing.T) {
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()
	defer clientW.Close()

	p := NewProtocol(serverR, serverW)
	client := NewProtocol(clientR, clientW)

	// Server read loop routes the client's reply.
	go func() {
		for {
			if _, err := p.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Fake client answers every request with its own method name.
	go func() {
		body, err := client.readFrame()
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			return
		}
		_ = client.Reply(json.RawMessage(fmt.Sprint(req.ID)), req.Method)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := p.SendRequest(ctx, MethodInlayHintRefresh, nil)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if string(result) != `"workspace/inlayHint/refresh"` {
		t.Errorf("got result %s", result)
	}
}

func TestProtocol_SendRequestTimeout(t *testing.T) {
	clientR, serverW := io.Pipe()
	defer clientR.Close()
	p := NewProtocol(strings.NewReader(""), serverW)

	go func() { _, _ = io.Copy(io.Discard, clientR) }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.SendRequest(ctx, "x", nil)
	if !errors.Is(err, ErrRequestTimeout) {
		t.Errorf("got %v, want ErrRequestTimeout", err)
	}
}

func TestProtocol_Close(t *testing.T) {
	clientR, serverW := io.Pipe()
	defer clientR.Close()
	p := NewProtocol(strings.NewReader(""), serverW)

	go func() { _, _ = io.Copy(io.Discard, clientR) }()

	errCh := make(chan error, 1)
	go func() {
		_, err := p.SendRequest(context.Background(), "x", nil)
		errCh <- err
	}()

	// Wait until the request is registered.
	deadline := time.Now().Add(5 * time.Second)
	for {
		p.pendingMu.Lock()
		n := len(p.pending)
		p.pendingMu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	p.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("got %v, want ErrClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SendRequest did not return after Close")
	}

	if err := p.SendNotification("x", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}
