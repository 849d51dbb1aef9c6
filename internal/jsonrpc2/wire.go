// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import "fmt"

// WireError is the on-the-wire JSON-RPC 2.0 error object.
type WireError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("jsonrpc2: code %d: %s", e.Code, e.Message)
}

func (e *WireError) Is(target error) bool {
	t, ok := target.(*WireError)
	return ok && t.Code == e.Code
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var (
	ErrParseError     = &WireError{Code: CodeParseError, Message: "Parse error"}
	ErrInvalidRequest = &WireError{Code: CodeInvalidRequest, Message: "Invalid Request"}
	ErrMethodNotFound = &WireError{Code: CodeMethodNotFound, Message: "Method not found"}
	ErrInvalidParams  = &WireError{Code: CodeInvalidParams, Message: "Invalid params"}
	ErrInternal       = &WireError{Code: CodeInternalError, Message: "Internal error"}
)

func toWireError(err error) *WireError {
	if err == nil {
		return nil
	}
	if we, ok := err.(*WireError); ok {
		return we
	}
	return &WireError{Code: CodeInternalError, Message: err.Error()}
}
