// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc2 implements a transport-agnostic JSON-RPC 2.0 connection:
// message framing, request/response correlation, and inbound dispatch. It is
// deliberately independent of any particular wire transport (stdio, HTTP+SSE,
// WebSocket); callers supply a Reader/Writer pair.
package jsonrpc2

import (
	"fmt"

	json "github.com/go-mcp/endpoint/internal/json"
)

const wireVersion = "2.0"

// ID is a JSON-RPC request identifier: a string, a number, or absent
// (for notifications).
type ID struct {
	value any
}

// StringID creates a string request identifier.
func StringID(s string) ID { return ID{value: s} }

// Int64ID creates a numeric request identifier.
func Int64ID(i int64) ID { return ID{value: i} }

// IsValid reports whether id was explicitly set; the zero ID is invalid and
// denotes a notification.
func (id ID) IsValid() bool { return id.value != nil }

// Raw returns the identifier's underlying string, int64, or nil.
func (id ID) Raw() any { return id.value }

// String renders the identifier for logging.
func (id ID) String() string {
	switch v := id.value.(type) {
	case nil:
		return "<nil>"
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func makeID(v any) (ID, error) {
	switch v := v.(type) {
	case nil:
		return ID{}, nil
	case float64:
		return Int64ID(int64(v)), nil
	case string:
		return StringID(v), nil
	}
	return ID{}, fmt.Errorf("%w: invalid id type %T", ErrInvalidRequest, v)
}

// Message is the interface common to Request and Response; the set of
// implementations is closed.
type Message interface {
	marshal(to *wireMessage)
}

// Request is sent to invoke behavior on a peer. A Request with a valid ID is
// a call and expects a Response; one without is a notification.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

// IsCall reports whether this Request expects a Response.
func (r *Request) IsCall() bool { return r.ID.IsValid() }

func (r *Request) marshal(to *wireMessage) {
	to.ID = r.ID.value
	to.Method = r.Method
	to.Params = r.Params
}

// Response is a reply to a call Request, carrying the same ID.
type Response struct {
	ID     ID
	Result json.RawMessage
	Error  *WireError
}

func (r *Response) marshal(to *wireMessage) {
	to.ID = r.ID.value
	to.Result = r.Result
	to.Error = r.Error
}

// wireMessage is the union of every field that can appear in a JSON-RPC 2.0
// message; DecodeMessage figures out which concrete type it represents.
type wireMessage struct {
	VersionTag string          `json:"jsonrpc"`
	ID         any             `json:"id,omitempty"`
	Method     string          `json:"method,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *WireError      `json:"error,omitempty"`
}

// NewCall builds a call Request for id, method and params.
func NewCall(id ID, method string, params any) (*Request, error) {
	p, err := marshalToRaw(params)
	if err != nil {
		return nil, err
	}
	return &Request{ID: id, Method: method, Params: p}, nil
}

// NewNotification builds a notification Request (no ID).
func NewNotification(method string, params any) (*Request, error) {
	p, err := marshalToRaw(params)
	if err != nil {
		return nil, err
	}
	return &Request{Method: method, Params: p}, nil
}

// NewResponse builds a Response to id, wrapping err as a WireError if set.
func NewResponse(id ID, result any, err error) (*Response, error) {
	if err != nil {
		return &Response{ID: id, Error: toWireError(err)}, nil
	}
	r, merr := marshalToRaw(result)
	if merr != nil {
		return nil, merr
	}
	return &Response{ID: id, Result: r}, nil
}

// EncodeMessage renders msg in wire form.
func EncodeMessage(msg Message) ([]byte, error) {
	wire := wireMessage{VersionTag: wireVersion}
	msg.marshal(&wire)
	data, err := json.Marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("marshaling jsonrpc2 message: %w", err)
	}
	return data, nil
}

// DecodeMessage parses data as either a Request or a Response.
func DecodeMessage(data []byte) (Message, error) {
	if err := validateNoDuplicateKeys(data); err != nil {
		return nil, fmt.Errorf("unmarshaling jsonrpc2 message: %w", err)
	}
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshaling jsonrpc2 message: %w", err)
	}
	id, err := makeID(wire.ID)
	if err != nil {
		return nil, err
	}
	if wire.Method != "" {
		return &Request{ID: id, Method: wire.Method, Params: wire.Params}, nil
	}
	if !id.IsValid() {
		return nil, ErrInvalidRequest
	}
	return &Response{ID: id, Result: wire.Result, Error: wire.Error}, nil
}

func marshalToRaw(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
