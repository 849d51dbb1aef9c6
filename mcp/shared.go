// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file holds the generic request wrappers and the Params/Result marker
// interfaces shared by every MCP method, along with the progress-token and
// metadata accessors that ride along on the embedded Meta field.

package mcp

import "context"

// Meta holds protocol-reserved out-of-band metadata attached to a request or
// result. It is embedded anonymously in every Params and Result type so that
// GetMeta/SetMeta are promoted automatically.
type Meta map[string]any

// GetMeta returns the receiver. It exists so that embedding Meta promotes a
// GetMeta method onto the enclosing Params/Result struct.
func (m Meta) GetMeta() Meta { return m }

// SetMeta replaces the receiver's contents. It exists so that embedding Meta
// promotes a SetMeta method onto the enclosing Params/Result struct.
func (m *Meta) SetMeta(v Meta) { *m = v }

const progressTokenKey = "progressToken"

// getProgressToken extracts the progress token from p's metadata, if any.
func getProgressToken(p Params) any {
	meta := p.GetMeta()
	if meta == nil {
		return nil
	}
	return meta[progressTokenKey]
}

// setProgressToken stores t as p's progress token.
func setProgressToken(p Params, t any) {
	meta := p.GetMeta()
	if meta == nil {
		meta = make(Meta)
	}
	meta[progressTokenKey] = t
	p.SetMeta(meta)
}

// Params is implemented by every MCP request/notification parameter type.
// isParams is unexported so that the set of implementations is closed to
// this package.
type Params interface {
	isParams()
	GetProgressToken() any
	SetProgressToken(any)
	GetMeta() Meta
	SetMeta(Meta)
}

// Result is implemented by every MCP request result type.
type Result interface {
	isResult()
	GetMeta() Meta
	SetMeta(Meta)
}

// cursorParams is implemented by list params that support pagination.
type cursorParams interface {
	cursorPtr() *string
}

// cursorResult is implemented by list results that support pagination.
type cursorResult interface {
	nextCursorPtr() *string
}

// ServerRequest wraps the parameters of a request received by a server,
// together with the session it arrived on. It is the concrete argument type
// passed to every server-side method handler.
type ServerRequest[P Params] struct {
	Session *ServerSession
	Params  P

	// method is the JSON-RPC method name this request was dispatched for.
	// It's populated by the dispatcher and used for tracing/logging.
	method string

	// extra carries a related-transport hint (streamable HTTP) used to route
	// the eventual response to the same HTTP response stream the request
	// arrived on. It is nil for transports without per-request streams.
	extra *requestExtra
}

// ClientRequest wraps the parameters of a request received by a client.
type ClientRequest[P Params] struct {
	Session *ClientSession
	Params  P

	method string
	extra  *requestExtra
}

type requestExtra struct {
	relatedStream streamID
}

func newServerRequest[P Params](sess *ServerSession, params P) *ServerRequest[P] {
	return &ServerRequest[P]{Session: sess, Params: params}
}

func newClientRequest[P Params](sess *ClientSession, params P) *ClientRequest[P] {
	return &ClientRequest[P]{Session: sess, Params: params}
}

// Session is implemented by *ServerSession and *ClientSession.
type Session interface {
	ID() string
}

// RequestParams is implemented by the Params types that carry a progress
// token, which middleware can use to tag outgoing requests for progress
// reporting without knowing the concrete params type.
type RequestParams interface {
	GetProgressToken() any
	SetProgressToken(any)
}

// Request is the argument passed to a MethodHandler: the session a call
// arrived on (or is bound for), together with its decoded parameters.
type Request interface {
	GetSession() Session
	GetParams() Params
}

// methodRequest is the concrete Request threaded through the MethodHandler
// chain for both outgoing calls (SendingMiddleware) and incoming ones
// (ReceivingMiddleware).
type methodRequest struct {
	session Session
	params  Params
}

func (r *methodRequest) GetSession() Session { return r.session }
func (r *methodRequest) GetParams() Params   { return r.params }

// requestFor builds the Request passed through a MethodHandler chain.
func requestFor(session Session, params Params) Request {
	return &methodRequest{session: session, params: params}
}

// MethodHandler handles a single JSON-RPC method or notification.
type MethodHandler func(ctx context.Context, method string, req Request) (Result, error)

// Middleware wraps a MethodHandler to add cross-cutting behavior (logging,
// tracing, rate limiting) without the handler itself knowing about it.
// Middlewares compose like http.Handler middleware: the last one added runs
// outermost.
type Middleware func(next MethodHandler) MethodHandler

// addMiddleware returns h wrapped by each of mw, applied so that mw[0] runs
// outermost.
func addMiddleware(h MethodHandler, mw []Middleware) MethodHandler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// Method and notification names for the task subsystem. The rest of the
// method table lives in protocol.go, grouped with the params/result types it
// governs; these are kept here alongside the task types they dispatch.
const (
	methodGetTask      = "tasks/get"
	methodListTasks    = "tasks/list"
	methodCancelTask   = "tasks/cancel"
	methodTaskResult   = "tasks/result"
	notificationTaskStatus = "notifications/tasks/status"
)

// handleNotify sends a notification built from req to req.Session's peer.
// It is used for notifications synthesized internally by the server (task
// status changes, list-changed events) rather than ones initiated by a
// direct API call, so it goes through the same outbound path as any other
// server-to-client notification.
func handleNotify[P Params](ctx context.Context, method string, req *ServerRequest[P]) error {
	if req == nil || req.Session == nil {
		return nil
	}
	return req.Session.sendNotification(ctx, method, req.Params)
}
