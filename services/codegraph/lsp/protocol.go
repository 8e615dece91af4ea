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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

const jsonrpcVersion = "2.0"

// maxFrameSize rejects frames no sane server sends.
const maxFrameSize = 64 << 20

// message is any JSON-RPC frame in either direction.
type message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *ResponseError   `json:"error,omitempty"`
}

// outgoing is a request or notification sent by the client.
type outgoing struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// reply answers a request the server sent to the client.
type reply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// Conn is a JSON-RPC connection framed with Content-Length headers.
//
// # Thread Safety
//
// Call and Notify are safe for concurrent use. ReadLoop must run in
// exactly one goroutine.
type Conn struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan *message
	closed  atomic.Bool

	logger *slog.Logger
}

// NewConn creates a connection reading server output from r and writing
// client messages to w.
func NewConn(r io.Reader, w io.Writer, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		reader:  bufio.NewReader(r),
		writer:  w,
		pending: make(map[int64]chan *message),
		logger:  logger,
	}
}

// Call sends a request and waits for its result.
//
// Description:
//
//	When ctx ends first, a $/cancelRequest notification is sent and the
//	context error is returned. Server errors are returned as
//	*ResponseError.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrServerNotRunning
	}

	id := c.nextID.Add(1)
	ch := make(chan *message, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(outgoing{JSONRPC: jsonrpcVersion, ID: &id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		_ = c.Notify("$/cancelRequest", map[string]int64{"id": id})
		return nil, ctx.Err()
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrServerCrashed
		}
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	}
}

// Notify sends a notification.
func (c *Conn) Notify(method string, params any) error {
	if c.closed.Load() {
		return ErrServerNotRunning
	}
	return c.write(outgoing{JSONRPC: jsonrpcVersion, Method: method, Params: params})
}

func (c *Conn) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.writer, v)
}

// ReadLoop dispatches server messages until the stream ends.
//
// Responses complete pending calls. Requests from the server are answered
// with a null result so servers that ask for configuration keep going.
// Notifications are logged and dropped. ReadLoop returns
// ErrServerCrashed on EOF, or nil after Close.
func (c *Conn) ReadLoop() error {
	defer c.failPending()
	for {
		body, err := readFrame(c.reader)
		if err != nil {
			if c.closed.Load() {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return ErrServerCrashed
			}
			return fmt.Errorf("read: %w", err)
		}

		var msg message
		if err := json.Unmarshal(body, &msg); err != nil {
			c.logger.Debug("dropping malformed lsp frame", slog.String("error", err.Error()))
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *Conn) dispatch(msg *message) {
	switch {
	case msg.Method != "" && msg.ID != nil:
		if err := c.write(reply{JSONRPC: jsonrpcVersion, ID: *msg.ID, Result: json.RawMessage("null")}); err != nil {
			c.logger.Debug("failed to answer server request", slog.String("method", msg.Method), slog.String("error", err.Error()))
		}
	case msg.Method != "":
		c.logger.Debug("lsp notification", slog.String("method", msg.Method))
	case msg.ID != nil:
		id, err := strconv.ParseInt(strings.Trim(string(*msg.ID), `"`), 10, 64)
		if err != nil {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if ch, ok := c.pending[id]; ok {
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// Close stops the connection. Pending calls fail with ErrServerCrashed.
// The underlying streams are not closed.
func (c *Conn) Close() {
	c.closed.Store(true)
	c.failPending()
}

func (c *Conn) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// writeFrame writes v as one framed message.
func writeFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// readFrame reads one framed message body. Headers other than
// Content-Length are ignored.
func readFrame(r *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if length < 0 {
				continue
			}
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 || n > maxFrameSize {
			return nil, fmt.Errorf("%w: Content-Length %q", ErrInvalidResponse, value)
		}
		length = n
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
