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
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultShutdownTimeout bounds the shutdown handshake and process exit.
const DefaultShutdownTimeout = 5 * time.Second

// ServerConfig describes a language server and the workspace it serves.
type ServerConfig struct {
	// Command is the server binary, looked up on PATH.
	Command string

	// Args are passed to Command, e.g. ["--stdio"].
	Args []string

	// Root is the workspace root. Required.
	Root string

	// InitializationOptions is sent verbatim in initialize.
	InitializationOptions any

	// Logger receives lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client is an initialized connection to a language server.
//
// # Thread Safety
//
// Safe for concurrent use.
type Client struct {
	conn   *Conn
	root   string
	caps   ServerCapabilities
	logger *slog.Logger

	cmd     *exec.Cmd
	closers []io.Closer

	readDone chan struct{}
	readErr  error

	shutdownOnce sync.Once
}

// Start spawns the configured server and performs the initialize
// handshake.
//
// Outputs:
//
//	*Client - Ready client. Call Shutdown when done.
//	error - ErrServerNotInstalled when Command is not on PATH,
//	        ErrInitializeFailed when the handshake fails.
func Start(ctx context.Context, cfg ServerConfig) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		logger.Warn("language server not installed", slog.String("command", cfg.Command))
		return nil, fmt.Errorf("%w: %s", ErrServerNotInstalled, cfg.Command)
	}

	// The process outlives the caller's context; Shutdown ends it.
	cmd := exec.Command(path, cfg.Args...)
	cmd.Dir = cfg.Root
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
	}
	recordServerSpawn(ctx, cfg.Command)

	logger.Info("started language server",
		slog.String("command", path),
		slog.Int("pid", cmd.Process.Pid),
		slog.String("root", cfg.Root),
	)

	client, err := newClient(ctx, stdout, stdin, cfg, cmd)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	return client, nil
}

// NewClient performs the initialize handshake over an existing stream
// pair. r carries server output and w carries client input. Streams that
// implement io.Closer are closed by Shutdown.
func NewClient(ctx context.Context, r io.Reader, w io.Writer, cfg ServerConfig) (*Client, error) {
	return newClient(ctx, r, w, cfg, nil)
}

func newClient(ctx context.Context, r io.Reader, w io.Writer, cfg ServerConfig, cmd *exec.Cmd) (*Client, error) {
	if cfg.Root == "" {
		return nil, errors.New("lsp: root must not be empty")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		conn:     NewConn(r, w, logger),
		root:     root,
		logger:   logger,
		cmd:      cmd,
		readDone: make(chan struct{}),
	}
	for _, s := range []any{w, r} {
		if closer, ok := s.(io.Closer); ok {
			c.closers = append(c.closers, closer)
		}
	}

	go func() {
		defer close(c.readDone)
		c.readErr = c.conn.ReadLoop()
	}()

	if err := c.initialize(ctx, cfg.InitializationOptions); err != nil {
		_ = c.Shutdown(context.Background())
		return nil, fmt.Errorf("%w: %v", ErrInitializeFailed, err)
	}
	return c, nil
}

func (c *Client) initialize(ctx context.Context, options any) error {
	rootURI := pathToURI(c.root)
	linkCaps := &LinkCapabilities{LinkSupport: true}
	params := InitializeParams{
		ProcessID:  os.Getpid(),
		ClientInfo: &ClientInfo{Name: "codegraph-" + uuid.NewString()[:8]},
		RootURI:    rootURI,
		Capabilities: ClientCapabilities{
			TextDocument: TextDocumentClientCapabilities{
				Definition:     linkCaps,
				Implementation: linkCaps,
			},
		},
		WorkspaceFolders:      []WorkspaceFolder{{URI: rootURI, Name: filepath.Base(c.root)}},
		InitializationOptions: options,
	}

	raw, err := c.conn.Call(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}
	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("%w: initialize result: %v", ErrInvalidResponse, err)
	}
	c.caps = result.Capabilities

	if err := c.conn.Notify("initialized", struct{}{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	name := ""
	if result.ServerInfo != nil {
		name = result.ServerInfo.Name
	}
	c.logger.Info("language server ready",
		slog.String("server", name),
		slog.Bool("definition", c.caps.HasDefinition()),
		slog.Bool("implementation", c.caps.HasImplementation()),
	)
	return nil
}

// Root returns the absolute workspace root.
func (c *Client) Root() string { return c.root }

// Capabilities returns what the server advertised in initialize.
func (c *Client) Capabilities() ServerCapabilities { return c.caps }

// Call sends a request. After the server exits it returns
// ErrServerCrashed.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	select {
	case <-c.readDone:
		return nil, ErrServerCrashed
	default:
	}
	return c.conn.Call(ctx, method, params)
}

// Notify sends a notification.
func (c *Client) Notify(method string, params any) error {
	return c.conn.Notify(method, params)
}

// Done is closed when the server's output stream ends.
func (c *Client) Done() <-chan struct{} { return c.readDone }

// Err returns why the read loop stopped, once Done is closed.
func (c *Client) Err() error {
	select {
	case <-c.readDone:
		return c.readErr
	default:
		return nil
	}
}

// Shutdown sends shutdown and exit, then releases the streams. A spawned
// process that does not exit in time is killed. Idempotent.
func (c *Client) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		sctx, cancel := context.WithTimeout(ctx, DefaultShutdownTimeout)
		defer cancel()

		select {
		case <-c.readDone:
		default:
			_, _ = c.conn.Call(sctx, "shutdown", nil)
			_ = c.conn.Notify("exit", nil)
		}
		c.conn.Close()
		for _, closer := range c.closers {
			_ = closer.Close()
		}

		if c.cmd != nil && c.cmd.Process != nil {
			done := make(chan error, 1)
			go func() { done <- c.cmd.Wait() }()
			select {
			case <-done:
			case <-sctx.Done():
				_ = c.cmd.Process.Kill()
				<-done
			}
		}

		select {
		case <-c.readDone:
		case <-time.After(time.Second):
		}
	})
	return nil
}
