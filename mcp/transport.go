// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/go-mcp/endpoint/internal/json"
	"github.com/go-mcp/endpoint/jsonrpc"
)

// JSONRPCMessage, JSONRPCID, JSONRPCRequest and JSONRPCResponse name the
// wire envelope types for callers working at the mcp package level; they
// are the same types the jsonrpc package exports, so a Connection written
// against one can be passed to the other without conversion.
type (
	JSONRPCMessage  = jsonrpc.Message
	JSONRPCID       = jsonrpc.ID
	JSONRPCRequest  = jsonrpc.Request
	JSONRPCResponse = jsonrpc.Response
)

// A Connection is a bidirectional channel for exchanging JSON-RPC messages
// with a single peer.
type Connection interface {
	Read(ctx context.Context) (JSONRPCMessage, error)
	Write(ctx context.Context, msg JSONRPCMessage) error
	Close() error
}

// A Transport yields a Connection. Client and Server transports differ only
// in which side dials and which side listens; both implement Transport.
type Transport interface {
	Connect(ctx context.Context) (Connection, error)
}

// readBatch decodes data as either a single JSON-RPC message or a JSON
// array of messages (a "batch", as permitted by the JSON-RPC 2.0 spec up
// through MCP's 2025-03-26 revision). The bool result reports whether data
// was a batch.
func readBatch(data []byte) ([]JSONRPCMessage, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false, fmt.Errorf("empty message")
	}
	if data[0] != '[' {
		msg, err := jsonrpc.DecodeMessage(data)
		if err != nil {
			return nil, false, err
		}
		return []JSONRPCMessage{msg}, false, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, true, fmt.Errorf("decoding batch: %w", err)
	}
	msgs := make([]JSONRPCMessage, 0, len(raws))
	for _, r := range raws {
		msg, err := jsonrpc.DecodeMessage(r)
		if err != nil {
			return nil, true, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, true, nil
}

// writeBatch encodes msgs as a JSON array if there is more than one, or as
// a bare message otherwise.
func writeBatch(msgs []JSONRPCMessage) ([]byte, error) {
	if len(msgs) == 1 {
		return jsonrpc.EncodeMessage(msgs[0])
	}
	raws := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		data, err := jsonrpc.EncodeMessage(m)
		if err != nil {
			return nil, err
		}
		raws[i] = data
	}
	return json.Marshal(raws)
}

// An event is a single server-sent event, as defined by the SSE spec.
type event struct {
	name string
	id   string
	data []byte
}

// writeEvent writes evt to w in SSE wire format and flushes the response,
// if w supports it.
func writeEvent(w io.Writer, evt event) (int, error) {
	var buf bytes.Buffer
	if evt.name != "" {
		fmt.Fprintf(&buf, "event: %s\n", evt.name)
	}
	if evt.id != "" {
		fmt.Fprintf(&buf, "id: %s\n", evt.id)
	}
	for _, line := range bytes.Split(evt.data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	n, err := w.Write(buf.Bytes())
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return n, err
}

// scanEvents reads SSE events from r, yielding one (event, nil) pair per
// event and a final (event{}, io.EOF) when the stream ends cleanly.
func scanEvents(r io.Reader) iter.Seq2[event, error] {
	return func(yield func(event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

		var cur event
		var dataLines [][]byte
		started := false

		flush := func() (event, bool) {
			if !started {
				return event{}, false
			}
			cur.data = bytes.Join(dataLines, []byte("\n"))
			e := cur
			cur, dataLines, started = event{}, nil, false
			return e, true
		}

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				if e, ok := flush(); ok {
					if !yield(e, nil) {
						return
					}
				}
				continue
			}
			started = true
			switch {
			case strings.HasPrefix(line, "event:"):
				cur.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "id:"):
				cur.id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
			case strings.HasPrefix(line, "data:"):
				dataLines = append(dataLines, []byte(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")))
			}
		}
		if e, ok := flush(); ok {
			if !yield(e, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(event{}, err)
			return
		}
		yield(event{}, io.EOF)
	}
}

// rwc adapts a Reader and Writer (or a single ReadCloser) into an
// io.ReadWriteCloser for use with newIOConn.
type rwc struct {
	r  io.Reader
	w  io.Writer
	rc io.ReadCloser
}

func (c rwc) Read(p []byte) (int, error) {
	if c.rc != nil {
		return c.rc.Read(p)
	}
	return c.r.Read(p)
}

func (c rwc) Write(p []byte) (int, error) { return c.w.Write(p) }

func (c rwc) Close() error {
	if c.rc != nil {
		return c.rc.Close()
	}
	if closer, ok := c.r.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ioConn is a Connection that frames messages as newline-delimited JSON (or
// JSON batches) over an io.ReadWriteCloser. It is the Connection underlying
// the stdio transport.
type ioConn struct {
	rwc io.ReadWriteCloser
	dec *json.Decoder

	writeMu sync.Mutex
	// outgoingBatch, if non-nil, buffers writes until it reaches its
	// capacity, at which point they are flushed as a single JSON array.
	// This exists to exercise JSON-RPC batch framing in tests; outside of
	// tests it is left nil and every Write is sent immediately.
	outgoingBatch []jsonrpc.Message

	// pending holds the messages of a batch that follow the one already
	// returned by Read; they are returned by the next Reads.
	pending []JSONRPCMessage

	closeOnce sync.Once
}

func newIOConn(c io.ReadWriteCloser) *ioConn {
	return &ioConn{rwc: c, dec: json.NewDecoder(c)}
}

func (c *ioConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if len(c.pending) > 0 {
		msg := c.pending[0]
		c.pending = c.pending[1:]
		return msg, nil
	}

	var raw json.RawMessage
	if err := c.dec.Decode(&raw); err != nil {
		return nil, err
	}

	if extra, err := io.ReadAll(c.dec.Buffered()); err == nil {
		if extra = bytes.TrimSpace(extra); len(extra) > 0 {
			var probe json.RawMessage
			if uerr := json.Unmarshal(extra, &probe); uerr != nil {
				return nil, fmt.Errorf("invalid trailing data %q at the end of stream", rune(extra[0]))
			}
			// A complete next message was already buffered: re-seed the
			// decoder so the next Read call picks it up.
			c.dec = json.NewDecoder(io.MultiReader(bytes.NewReader(extra), c.rwc))
		}
	}

	msgs, _, err := readBatch(raw)
	if err != nil {
		return nil, err
	}
	// A batch read from the wire is delivered one message per Read, in order.
	c.pending = msgs[1:]
	return msgs[0], nil
}

func (c *ioConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.outgoingBatch != nil {
		c.outgoingBatch = append(c.outgoingBatch, msg)
		if len(c.outgoingBatch) < cap(c.outgoingBatch) {
			return nil
		}
		batch := c.outgoingBatch
		c.outgoingBatch = c.outgoingBatch[:0]
		return c.writeRaw(batch)
	}
	return c.writeRaw([]JSONRPCMessage{msg})
}

func (c *ioConn) writeRaw(msgs []JSONRPCMessage) error {
	data, err := writeBatch(msgs)
	if err != nil {
		return fmt.Errorf("marshaling jsonrpc message: %w", err)
	}
	if _, err := c.rwc.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func (c *ioConn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.rwc.Close() })
	return err
}

// StdioTransport is a Transport that communicates over the process's
// standard input and output, the convention used by MCP servers launched
// as a subprocess.
type StdioTransport struct{}

// NewStdioTransport returns a Transport that reads requests from os.Stdin
// and writes responses to os.Stdout.
func NewStdioTransport() *StdioTransport { return &StdioTransport{} }

func (t *StdioTransport) Connect(context.Context) (Connection, error) {
	return newIOConn(rwc{r: os.Stdin, w: os.Stdout}), nil
}

// NewInMemoryTransports returns two Transports connected by in-process
// pipes, for use in tests that exercise a full client/server round trip
// without touching the network or a subprocess.
func NewInMemoryTransports() (client, server Transport) {
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	return &ioTransport{rwc{r: cr, w: cw}}, &ioTransport{rwc{r: sr, w: sw}}
}

type ioTransport struct{ rwc rwc }

func (t *ioTransport) Connect(context.Context) (Connection, error) {
	return newIOConn(t.rwc), nil
}

// LoggingTransport wraps a Transport, logging every message sent and
// received on its connections to w.
type LoggingTransport struct {
	delegate Transport
	w        io.Writer
}

// NewLoggingTransport returns a Transport that logs traffic on connections
// from delegate to w, then forwards them unchanged.
func NewLoggingTransport(delegate Transport, w io.Writer) *LoggingTransport {
	return &LoggingTransport{delegate: delegate, w: w}
}

func (t *LoggingTransport) Connect(ctx context.Context) (Connection, error) {
	conn, err := t.delegate.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &loggingConn{Connection: conn, w: t.w}, nil
}

type loggingConn struct {
	Connection
	mu sync.Mutex
	w  io.Writer
}

func (c *loggingConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	msg, err := c.Connection.Read(ctx)
	if err == nil {
		c.logf("read", msg)
	}
	return msg, err
}

func (c *loggingConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	c.logf("write", msg)
	return c.Connection.Write(ctx, msg)
}

func (c *loggingConn) logf(dir string, msg JSONRPCMessage) {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s: %s\n", dir, data)
}
