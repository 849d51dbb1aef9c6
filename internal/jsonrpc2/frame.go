// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"bufio"
	"context"
	"fmt"
	"io"

	json "github.com/go-mcp/endpoint/internal/json"
)

// Reader reads one Message per call. Implementations need not be safe for
// concurrent use; each Conn owns a single Reader.
type Reader interface {
	Read(context.Context) (Message, error)
}

// Writer writes one Message per call. Implementations need not be safe for
// concurrent use; Conn serializes its own writes.
type Writer interface {
	Write(context.Context, Message) error
}

// RawFramer frames messages as newline-delimited JSON values with no extra
// header, relying on the decoder to find message boundaries. This is the
// format used by the stdio transport.
func RawFramer() (func(io.Reader) Reader, func(io.Writer) Writer) {
	return newRawReader, newRawWriter
}

type rawReader struct{ dec *json.Decoder }

func newRawReader(r io.Reader) Reader { return &rawReader{dec: json.NewDecoder(r)} }

func (r *rawReader) Read(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	var raw json.RawMessage
	if err := r.dec.Decode(&raw); err != nil {
		return nil, err
	}
	return DecodeMessage(raw)
}

type rawWriter struct {
	w   io.Writer
	buf *bufio.Writer
}

func newRawWriter(w io.Writer) Writer {
	return &rawWriter{w: w, buf: bufio.NewWriter(w)}
}

func (w *rawWriter) Write(ctx context.Context, msg Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	data, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("marshaling jsonrpc2 message: %w", err)
	}
	if _, err := w.buf.Write(data); err != nil {
		return err
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	return w.buf.Flush()
}
