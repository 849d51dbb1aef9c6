// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	internaljson "github.com/go-mcp/endpoint/internal/json"
	"github.com/go-mcp/endpoint/internal/mcpgodebug"
)

// Handler answers one inbound call or notification. For notifications
// (req.ID invalid) the returned result and error are ignored.
type Handler func(ctx context.Context, req *Request) (result any, err error)

// Logger observes traffic on a Conn, for diagnostics. A Conn with a Logger
// calls both methods, so each must be implemented; a nil Logger disables
// logging.
type Logger interface {
	Sent(msg Message)
	Received(msg Message)
}

// Conn is a symmetric JSON-RPC 2.0 connection: it can issue calls and
// notifications to its peer and, concurrently, answer calls and
// notifications the peer sends it. Conn does not know which end is the
// "client" or "server"; that distinction belongs to the caller's Handler.
//
// A Conn must be driven by exactly one call to Run, which returns when the
// Reader is exhausted or returns an error.
type Conn struct {
	reader  Reader
	writer  Writer
	handler Handler
	logger  Logger

	seq atomic.Int64

	writeMu sync.Mutex

	pendingMu       sync.Mutex
	pendingOutbound map[any]chan *Response

	inflightMu      sync.Mutex
	inflightInbound map[any]context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn creates a Conn around r/w. h answers inbound requests; if h is nil,
// every inbound call fails with ErrMethodNotFound. Call Run to start
// processing inbound messages.
func NewConn(r Reader, w Writer, h Handler) *Conn {
	if h == nil {
		h = func(context.Context, *Request) (any, error) { return nil, ErrMethodNotFound }
	}
	return &Conn{
		reader:          r,
		writer:          w,
		handler:         h,
		pendingOutbound: make(map[any]chan *Response),
		inflightInbound: make(map[any]context.CancelFunc),
		closed:          make(chan struct{}),
	}
}

// SetLogger installs a Logger used to observe traffic. Not safe to call
// concurrently with Run.
func (c *Conn) SetLogger(l Logger) { c.logger = l }

func (c *Conn) write(ctx context.Context, msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.logger != nil {
		c.logger.Sent(msg)
	}
	return c.writer.Write(ctx, msg)
}

// Notify sends a notification; it returns once the message has been written,
// since no reply is possible.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	req, err := NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("marshaling notify params: %w", err)
	}
	return c.write(ctx, req)
}

// Call sends a request and blocks until the matching Response arrives, ctx
// is cancelled, or the connection closes. If result is non-nil the response
// result is unmarshaled into it.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	id := Int64ID(c.seq.Add(1))
	req, err := NewCall(id, method, params)
	if err != nil {
		return fmt.Errorf("marshaling call params: %w", err)
	}

	rchan := make(chan *Response, 1)
	c.pendingMu.Lock()
	c.pendingOutbound[id.value] = rchan
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pendingOutbound, id.value)
		c.pendingMu.Unlock()
	}()

	if err := c.write(ctx, req); err != nil {
		return err
	}

	select {
	case resp := <-rchan:
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil || resp.Result == nil {
			return nil
		}
		return unmarshalResult(resp.Result, result)
	case <-ctx.Done():
		// Nothing is sent to the peer here; a late response for this id
		// finds no pending entry and is dropped.
		return ctx.Err()
	case <-c.closed:
		return fmt.Errorf("jsonrpc2: connection closed")
	}
}

// Cancel requests cancellation of an inbound call identified by id, if this
// Conn is currently handling it. It has no effect otherwise.
func (c *Conn) Cancel(id ID) {
	c.inflightMu.Lock()
	cancel, ok := c.inflightInbound[id.value]
	c.inflightMu.Unlock()
	if ok {
		cancel()
	}
}

// Close unblocks any calls in flight and marks the Conn unusable for new
// calls. It does not close the underlying Reader/Writer.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Run reads messages until the Reader returns an error (including io.EOF)
// and dispatches them: responses are routed to the waiting Call, requests
// and notifications are dispatched to the Handler in their own goroutine so
// that a slow handler never blocks the read loop.
func (c *Conn) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		msg, err := c.reader.Read(ctx)
		if err != nil {
			return err
		}
		if c.logger != nil {
			c.logger.Received(msg)
		}
		switch m := msg.(type) {
		case *Response:
			c.pendingMu.Lock()
			rchan, ok := c.pendingOutbound[m.ID.value]
			c.pendingMu.Unlock()
			if ok {
				rchan <- m
			}
		case *Request:
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.dispatch(ctx, m)
			}()
		}
	}
}

func (c *Conn) dispatch(ctx context.Context, req *Request) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if req.IsCall() {
		c.inflightMu.Lock()
		c.inflightInbound[req.ID.value] = cancel
		c.inflightMu.Unlock()
		defer func() {
			c.inflightMu.Lock()
			delete(c.inflightInbound, req.ID.value)
			c.inflightMu.Unlock()
		}()
	}

	result, err := c.handler(reqCtx, req)
	if !req.IsCall() {
		return
	}
	resp, merr := NewResponse(req.ID, result, err)
	if merr != nil {
		resp = &Response{ID: req.ID, Error: toWireError(merr)}
	}
	// The handler may have been cancelled after replying is no longer
	// useful (peer gone); a write error here is not actionable.
	_ = c.write(ctx, resp)
}

// unmarshalResult decodes a call result, rejecting the case-insensitive field
// matching and unknown-field leniency that encoding/json otherwise allows,
// which a malicious peer could use to smuggle a field under a
// differently-cased name.
//
// Set MCPGODEBUG=strictunmarshal=0 to fall back to lenient decoding, for
// interoperating with a peer that sends non-conformant JSON-RPC.
func unmarshalResult(data []byte, v any) error {
	if mcpgodebug.Value("strictunmarshal") == "0" {
		return internaljson.Unmarshal(data, v)
	}
	return StrictUnmarshal(data, v)
}
