// Copyright 2025 The MCP Go Endpoint Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc defines the wire-level JSON-RPC 2.0 error shape and the
// standard and MCP-specific error codes used throughout the endpoint core.
// It also re-exports the message envelope and connection primitives from
// internal/jsonrpc2 so that transports implemented outside this module (a
// custom Connection, a test fake) can speak the wire format without reaching
// into an internal package.
package jsonrpc

import (
	"fmt"

	"github.com/go-mcp/endpoint/internal/jsonrpc2"
)

// ID, Message, Request and Response are the public names for the envelope
// types implemented in internal/jsonrpc2; this package only adds the
// application-facing Error type and MCP's error code extensions.
type (
	ID       = jsonrpc2.ID
	Message  = jsonrpc2.Message
	Request  = jsonrpc2.Request
	Response = jsonrpc2.Response
)

var (
	StringID = jsonrpc2.StringID
	Int64ID  = jsonrpc2.Int64ID

	NewCall         = jsonrpc2.NewCall
	NewNotification = jsonrpc2.NewNotification
	NewResponse     = jsonrpc2.NewResponse
	EncodeMessage   = jsonrpc2.EncodeMessage
	DecodeMessage   = jsonrpc2.DecodeMessage
)

// Conn is a symmetric JSON-RPC 2.0 connection; see internal/jsonrpc2.Conn.
type Conn = jsonrpc2.Conn

var NewConn = jsonrpc2.NewConn

type (
	ConnReader = jsonrpc2.Reader
	ConnWriter = jsonrpc2.Writer
	ConnHandler = jsonrpc2.Handler
	ConnLogger  = jsonrpc2.Logger
)

// RawFramer frames messages as newline-delimited JSON, the format used by
// the stdio transport.
var RawFramer = jsonrpc2.RawFramer

// Standard JSON-RPC 2.0 error codes.
// https://www.jsonrpc.org/specification#error_object
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// MCP-specific error code extensions.
const (
	CodeResourceNotFound        = -32002
	CodeURLElicitationRequired  = -32042
)

// Error is the wire representation of a JSON-RPC error object. It implements
// the standard error interface so it can be returned directly from request
// handlers and propagated verbatim to the remote end.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc: code %d: %s", e.Code, e.Message)
}

// Is reports whether target is a *Error with the same Code, so that sentinel
// errors below can be matched with errors.Is against a wrapped or decoded
// wire error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError builds an *Error with the given code and a formatted message.
func NewError(code int64, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinel errors for errors.Is-based handling of the standard codes. Handler
// code can return fmt.Errorf("%w: detail", jsonrpc.ErrInvalidParams, ...) and
// callers that only care about the code can match with errors.Is.
var (
	ErrParseError     = &Error{Code: CodeParseError, Message: "Parse error"}
	ErrInvalidRequest = &Error{Code: CodeInvalidRequest, Message: "Invalid Request"}
	ErrMethodNotFound = &Error{Code: CodeMethodNotFound, Message: "Method not found"}
	ErrInvalidParams  = &Error{Code: CodeInvalidParams, Message: "Invalid params"}
	ErrInternal       = &Error{Code: CodeInternalError, Message: "Internal error"}

	ErrResourceNotFound       = &Error{Code: CodeResourceNotFound, Message: "Resource not found"}
	ErrURLElicitationRequired = &Error{Code: CodeURLElicitationRequired, Message: "URL elicitation required"}
)
