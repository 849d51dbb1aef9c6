// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/gob"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/go-mcp/endpoint/internal/json"
	"github.com/go-mcp/endpoint/internal/jsonrpc2"
	"github.com/go-mcp/endpoint/jsonrpc"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/yosida95/uritemplate/v3"
)

// A SubscribeHandler is called when a client subscribes to a resource.
type SubscribeHandler func(context.Context, *SubscribeRequest) error

// An UnsubscribeHandler is called when a client unsubscribes from a resource.
type UnsubscribeHandler func(context.Context, *UnsubscribeRequest) error

// A CompletionHandler handles a completion/complete request.
type CompletionHandler func(context.Context, *CompleteRequest) (*CompleteResult, error)

// ServerOptions configures a Server.
type ServerOptions struct {
	// Instructions, if set, is sent to clients describing how to use the
	// server.
	Instructions string

	// PageSize bounds the number of items returned by a single list call. A
	// non-positive value means no limit.
	PageSize int

	// KeepAlive, if positive, is the interval at which a ServerSession pings
	// its peer after initialization completes.
	KeepAlive time.Duration

	// HasPrompts, HasResources, HasTools force the corresponding capability
	// to be advertised even before any primitive of that kind is registered,
	// for servers that register primitives lazily.
	HasPrompts   bool
	HasResources bool
	HasTools     bool

	SubscribeHandler   SubscribeHandler
	UnsubscribeHandler UnsubscribeHandler
	CompletionHandler  CompletionHandler

	// InitializedHandler, if set, is called when a client's notifications/initialized
	// arrives, after the session records that initialization completed.
	InitializedHandler func(context.Context, *InitializedRequest)

	// RootsListChangedHandler, if set, is called when a client notifies the
	// server that its roots list has changed.
	RootsListChangedHandler func(context.Context, *RootsListChangedRequest)

	// ProgressNotificationHandler, if set, is called when a client reports
	// progress on a request the server sent it.
	ProgressNotificationHandler func(context.Context, *ProgressNotificationServerRequest)

	// SendingMiddleware and ReceivingMiddleware wrap, respectively, outgoing
	// calls to a client and incoming calls from a client.
	SendingMiddleware   []Middleware
	ReceivingMiddleware []Middleware

	// SessionStateStore, if set, persists session state across reconnects of
	// the streamable HTTP transport.
	SessionStateStore ServerSessionStateStore

	// EnableTasks advertises task augmentation capability for tools whose
	// Tool.Execution.TaskSupport allows it.
	EnableTasks bool

	// TaskStore, if set, persists the public record of every task alongside
	// the in-process bookkeeping, so GetTask and ListTasks keep answering
	// for tasks created before a restart.
	TaskStore TaskStore

	// SchemaCache, if set, memoizes resolved and type-derived tool schemas
	// across calls to AddTool and the generic AddTool.
	SchemaCache *schemaCache
}

// A Server serves MCP requests on behalf of a single logical server
// implementation, across any number of concurrent ServerSessions.
type Server struct {
	impl *Implementation
	opts ServerOptions

	mu                sync.Mutex
	tools             *featureSet[*serverTool]
	prompts           *featureSet[*serverPrompt]
	resources         *featureSet[*serverResource]
	resourceTemplates *featureSet[*serverResourceTemplate]
	sessions          []*ServerSession

	tasks *serverTasks

	// receiveHandler is execute wrapped by opts.ReceivingMiddleware; dispatch
	// calls it instead of execute so that middleware sees every request.
	receiveHandler MethodHandler
}

// EmptyResult is the result of a call that carries no data of its own, such
// as ping, subscribe, unsubscribe, or logging/setLevel.
type EmptyResult struct {
	Meta `json:"_meta,omitempty"`
}

func (*EmptyResult) isResult() {}

type serverPrompt struct {
	prompt  *Prompt
	handler func(context.Context, *GetPromptRequest) (*GetPromptResult, error)
}

type serverResource struct {
	resource *Resource
	handler  func(context.Context, *ReadResourceRequest) (*ReadResourceResult, error)
}

type serverResourceTemplate struct {
	template *ResourceTemplate
	match    *regexp.Regexp
	handler  func(context.Context, *ReadResourceRequest) (*ReadResourceResult, error)
}

// NewServer creates a Server with the given implementation metadata. A nil
// opts is equivalent to a zero ServerOptions.
func NewServer(impl *Implementation, opts *ServerOptions) *Server {
	if opts == nil {
		opts = &ServerOptions{}
	}
	s := &Server{
		impl:              impl,
		opts:              *opts,
		tools:             newFeatureSet(func(st *serverTool) string { return st.tool.Name }),
		prompts:           newFeatureSet(func(p *serverPrompt) string { return p.prompt.Name }),
		resources:         newFeatureSet(func(r *serverResource) string { return r.resource.URI }),
		resourceTemplates: newFeatureSet(func(rt *serverResourceTemplate) string { return rt.template.URITemplate }),
		tasks:             newServerTasks(opts.TaskStore),
	}
	s.receiveHandler = addMiddleware(s.execute, opts.ReceivingMiddleware)
	return s
}

// Sessions iterates over the server's currently connected sessions.
func (s *Server) Sessions() iter.Seq[*ServerSession] {
	s.mu.Lock()
	sessions := slices.Clone(s.sessions)
	s.mu.Unlock()
	return func(yield func(*ServerSession) bool) {
		for _, ss := range sessions {
			if !yield(ss) {
				return
			}
		}
	}
}

// AddSendingMiddleware wraps the server's calls to clients (ping, sampling,
// elicitation, roots/list) with the given middleware, outermost first.
func (s *Server) AddSendingMiddleware(mw ...Middleware) {
	s.opts.SendingMiddleware = append(mw, s.opts.SendingMiddleware...)
}

// AddReceivingMiddleware wraps handling of calls from clients with the given
// middleware, outermost first.
func (s *Server) AddReceivingMiddleware(mw ...Middleware) {
	s.opts.ReceivingMiddleware = append(mw, s.opts.ReceivingMiddleware...)
	s.receiveHandler = addMiddleware(s.execute, s.opts.ReceivingMiddleware)
}

// AddTool is a package-level function, not a method, so that it can bind a
// typed handler without forcing the server to carry type parameters. It
// registers t with s, using h to handle tools/call, and panics if h's
// argument or result types do not describe a JSON object (the only shape
// tool input/output schemas can take).
func AddTool[In, Out any](s *Server, t *Tool, h TypedToolHandler[In, Out]) {
	tool, handler, err := toolForErr(t, h, s.opts.SchemaCache)
	if err != nil {
		panic(fmt.Sprintf("AddTool(%s): %v", t.Name, err))
	}
	if !isObjectSchema(tool.InputSchema) {
		panic(fmt.Sprintf("AddTool(%s): input type does not describe a JSON object", t.Name))
	}
	if tool.OutputSchema != nil && !isObjectSchema(tool.OutputSchema) {
		panic(fmt.Sprintf("AddTool(%s): output type does not describe a JSON object", t.Name))
	}
	s.addServerTool(&serverTool{tool: tool, handler: handler})
}

// isObjectSchema reports whether s is a resolved JSON Schema describing an
// object, the only shape tools/call arguments and structured results can
// take.
func isObjectSchema(s any) bool {
	sch, ok := s.(*jsonschema.Schema)
	if !ok {
		return false
	}
	return sch.Type == "object"
}

// AddTool registers t with s using a raw handler whose arguments are
// validated against t.InputSchema and decoded into a map[string]any rather
// than a Go type. Most callers should use the package-level generic AddTool
// instead, which infers schemas from Go types.
func (s *Server) AddTool(t *Tool, h ToolHandler) {
	st, err := newServerTool(t, h, s.opts.SchemaCache)
	if err != nil {
		panic(fmt.Sprintf("AddTool(%s): %v", t.Name, err))
	}
	s.addServerTool(st)
}

func (s *Server) addServerTool(st *serverTool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools.add(st)
}

// RemoveTools removes the tools with the given names, if present.
func (s *Server) RemoveTools(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools.remove(names...)
}

// AddPrompt registers a prompt with s. A nil handler is valid for prompts
// that exist only to be listed.
func (s *Server) AddPrompt(p *Prompt, h func(context.Context, *GetPromptRequest) (*GetPromptResult, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts.add(&serverPrompt{prompt: p, handler: h})
}

// RemovePrompts removes the prompts with the given names, if present.
func (s *Server) RemovePrompts(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts.remove(names...)
}

// AddResource registers a concrete resource with s.
func (s *Server) AddResource(r *Resource, h func(context.Context, *ReadResourceRequest) (*ReadResourceResult, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources.add(&serverResource{resource: r, handler: h})
}

// RemoveResources removes the resources with the given URIs, if present.
func (s *Server) RemoveResources(uris ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources.remove(uris...)
}

// AddResourceTemplate registers a resource template with s. It panics if the
// template's URI template fails to parse, so that a malformed template is
// caught at registration time rather than on the first matching request.
func (s *Server) AddResourceTemplate(rt *ResourceTemplate, h func(context.Context, *ReadResourceRequest) (*ReadResourceResult, error)) {
	tmpl := uritemplate.MustNew(rt.URITemplate)
	re, err := tmpl.Regexp()
	if err != nil {
		panic(fmt.Sprintf("AddResourceTemplate(%s): %v", rt.URITemplate, err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resourceTemplates.add(&serverResourceTemplate{template: rt, match: re, handler: h})
}

// RemoveResourceTemplates removes the resource templates with the given URI
// templates, if present.
func (s *Server) RemoveResourceTemplates(uriTemplates ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resourceTemplates.remove(uriTemplates...)
}

// capabilities computes the ServerCapabilities to advertise in an
// InitializeResult, based on the primitives currently registered and the
// handlers configured in ServerOptions.
func (s *Server) capabilities() *ServerCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()

	caps := &ServerCapabilities{
		Logging: &LoggingCapabilities{},
	}
	if s.opts.CompletionHandler != nil {
		caps.Completions = &CompletionCapabilities{}
	}
	if s.opts.HasPrompts || s.prompts.len() > 0 {
		caps.Prompts = &PromptCapabilities{ListChanged: true}
	}
	if s.opts.HasResources || s.resources.len() > 0 || s.resourceTemplates.len() > 0 {
		caps.Resources = &ResourceCapabilities{
			ListChanged: true,
			Subscribe:   s.opts.SubscribeHandler != nil && s.opts.UnsubscribeHandler != nil,
		}
	}
	if s.opts.HasTools || s.tools.len() > 0 {
		caps.Tools = &ToolCapabilities{ListChanged: true}
	}
	if s.opts.EnableTasks {
		caps.Tasks = &TaskCapabilities{
			Requests: &TaskRequestCapabilities{
				Tools: &ToolTaskCapabilities{Call: &struct{}{}},
			},
			List:   &struct{}{},
			Cancel: &struct{}{},
		}
	}
	return caps
}

// Connect starts serving MCP requests over a connection obtained from
// transport, returning the resulting session once the connection is
// established. The caller must call Wait or Close on the returned session.
func (s *Server) Connect(ctx context.Context, transport Transport, opts *ServerSessionOptions) (*ServerSession, error) {
	conn, err := transport.Connect(ctx)
	if err != nil {
		return nil, err
	}
	ss := &ServerSession{
		server:      s,
		conn:        conn,
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
	if opts != nil {
		ss.state = opts.State
	}
	if ss.state == nil && s.opts.SessionStateStore != nil {
		if saved, err := s.opts.SessionStateStore.Load(ctx, ss.ID()); err == nil && saved != nil {
			ss.state = saved.toSessionState()
		}
	}
	s.mu.Lock()
	s.sessions = append(s.sessions, ss)
	s.mu.Unlock()

	go ss.receiveLoop(ctx)
	return ss, nil
}

// Run connects to transport, serves requests until the connection closes or
// ctx is cancelled, and returns the error that ended the session, if any.
func (s *Server) Run(ctx context.Context, transport Transport) error {
	ss, err := s.Connect(ctx, transport, nil)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ss.Close()
	}()
	return ss.Wait()
}

// ServerSessionOptions configures a single Connect call.
type ServerSessionOptions struct {
	// State seeds the session's resumed state, e.g. from a prior
	// ServerSessionStateStore lookup keyed on an Mcp-Session-Id header.
	State *SessionState
}

// A ServerSession is a single client connection to a Server.
type ServerSession struct {
	server *Server
	conn   Connection

	mu              sync.Mutex
	didInitialize   bool
	state           *SessionState

	keepaliveCancel context.CancelFunc

	id        string
	doneOnce  sync.Once
	done      chan struct{}
	closeErr  error

	pending   sync.Map // jsonrpc.ID -> chan *jsonrpc.Response
	nextReqID int64

	connectedAt time.Time
}

// ID returns the session identifier, if one was assigned (e.g. by the
// streamable HTTP transport's Mcp-Session-Id header).
func (ss *ServerSession) ID() string {
	if sid, ok := ss.conn.(interface{ SessionID() string }); ok {
		return sid.SessionID()
	}
	return ss.id
}

func (ss *ServerSession) initialize(ctx context.Context, params *InitializeParams) (*InitializeResult, error) {
	ss.mu.Lock()
	ss.state = &SessionState{InitializeParams: params, LogLevel: "info"}
	state := ss.state
	ss.mu.Unlock()
	if store := ss.server.opts.SessionStateStore; store != nil {
		if err := store.Save(ctx, ss.ID(), serverSessionStateOf(state)); err != nil {
			return nil, err
		}
	}
	return &InitializeResult{
		Capabilities:    ss.server.capabilities(),
		Instructions:    ss.server.opts.Instructions,
		ProtocolVersion: "2025-06-18",
		ServerInfo:      ss.server.impl,
	}, nil
}

func (ss *ServerSession) initialized(ctx context.Context, params *InitializedParams) (*struct{}, error) {
	ss.mu.Lock()
	if ss.didInitialize {
		ss.mu.Unlock()
		return nil, fmt.Errorf("%w: duplicate initialized received", jsonrpc2.ErrInvalidRequest)
	}
	ss.didInitialize = true
	kaDone := ss.keepaliveCancel == nil && ss.server.opts.KeepAlive > 0
	ss.mu.Unlock()

	if kaDone {
		ss.startKeepalive(ss.server.opts.KeepAlive)
	}
	return nil, nil
}

func (ss *ServerSession) startKeepalive(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	ss.mu.Lock()
	ss.keepaliveCancel = cancel
	ss.mu.Unlock()

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ss.done:
				return
			case <-t.C:
				if err := ss.Ping(ctx, nil); err != nil {
					return
				}
			}
		}
	}()
}

// sendNotification encodes and sends a one-way notification to the peer.
func (ss *ServerSession) sendNotification(ctx context.Context, method string, params Params) error {
	msg, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	return ss.conn.Write(ctx, msg)
}

// NotifyProgress reports progress to the client for a request that supplied
// a progress token.
func (ss *ServerSession) NotifyProgress(ctx context.Context, params *ProgressNotificationParams) error {
	return ss.sendNotification(ctx, notificationProgress, params)
}

// Log sends a logging/message notification to the client.
func (ss *ServerSession) Log(ctx context.Context, params *LoggingMessageParams) error {
	return ss.sendNotification(ctx, notificationLoggingMessage, params)
}

// Ping sends a ping request to the peer and waits for the response. A nil
// params is equivalent to an empty PingParams.
func (ss *ServerSession) Ping(ctx context.Context, params *PingParams) error {
	if params == nil {
		params = &PingParams{}
	}
	_, err := serverCall[EmptyResult](ctx, ss, methodPing, params)
	return err
}

// ListRoots asks the client to list the roots it has exposed.
func (ss *ServerSession) ListRoots(ctx context.Context, params *ListRootsParams) (*ListRootsResult, error) {
	if params == nil {
		params = &ListRootsParams{}
	}
	return serverCall[ListRootsResult](ctx, ss, methodListRoots, params)
}

// CreateMessage asks the client to sample from an LLM on the server's behalf.
func (ss *ServerSession) CreateMessage(ctx context.Context, params *CreateMessageParams) (*CreateMessageResult, error) {
	return serverCall[CreateMessageResult](ctx, ss, methodCreateMessage, params)
}

// CreateMessageWithTools asks the client to sample from an LLM, allowing the
// model to invoke tools the client exposes.
func (ss *ServerSession) CreateMessageWithTools(ctx context.Context, params *CreateMessageWithToolsParams) (*CreateMessageWithToolsResult, error) {
	return serverCall[CreateMessageWithToolsResult](ctx, ss, methodCreateMessage, params)
}

// Elicit asks the client to collect additional information from its user.
func (ss *ServerSession) Elicit(ctx context.Context, params *ElicitParams) (*ElicitResult, error) {
	caps := ss.peerCapabilities()
	if caps == nil || caps.Elicitation == nil {
		return nil, fmt.Errorf("peer does not support elicitation")
	}
	if err := validateElicitSchema(params.RequestedSchema); err != nil {
		return nil, invalidElicitSchemaError(err)
	}
	res, err := serverCall[ElicitResult](ctx, ss, methodElicit, params)
	if err != nil {
		return nil, err
	}
	if err := applyElicitDefaultsAndValidate(params.RequestedSchema, res); err != nil {
		return nil, err
	}
	return res, nil
}

// peerCapabilities returns the capabilities the connected client advertised
// during initialize, or nil if initialization hasn't completed.
func (ss *ServerSession) peerCapabilities() *ClientCapabilities {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.state == nil || ss.state.InitializeParams == nil {
		return nil
	}
	return ss.state.InitializeParams.Capabilities
}

// doCall is the base MethodHandler for outgoing calls, wrapped by
// SendingMiddleware. It returns the undecoded wire result so that a typed
// helper (serverCall) can unmarshal it into the caller's result type.
func (ss *ServerSession) doCall(ctx context.Context, method string, req Request) (Result, error) {
	resp, err := ss.rawCall(ctx, method, req.GetParams())
	if err != nil {
		return nil, err
	}
	return &rawResult{body: resp.Result}, nil
}

// rawResult carries an undecoded JSON-RPC result body through the
// Middleware chain, which is typed in terms of Result.
type rawResult struct {
	Meta
	body json.RawMessage
}

func (*rawResult) isResult() {}

// serverCall sends method to ss's peer through the SendingMiddleware chain
// and decodes the response into a freshly allocated R.
func serverCall[R any](ctx context.Context, ss *ServerSession, method string, params Params) (*R, error) {
	ctx, end := startOperationSpan(ctx, operationCall, method)
	injectTraceContext(ctx, params)
	h := addMiddleware(ss.doCall, ss.server.opts.SendingMiddleware)
	res, err := h(ctx, method, requestFor(ss, params))
	end(err)
	if err != nil {
		return nil, err
	}
	out := new(R)
	raw, ok := res.(*rawResult)
	if !ok || len(raw.body) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw.body, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ErrConnectionClosed is returned by a pending or new call when its session's
// connection has closed.
var ErrConnectionClosed = errors.New("mcp: connection closed")

// rawCall sends a request to the peer and blocks for its response.
func (ss *ServerSession) rawCall(ctx context.Context, method string, params Params) (*jsonrpc.Response, error) {
	select {
	case <-ss.done:
		return nil, ErrConnectionClosed
	default:
	}

	id := jsonrpc.Int64ID(ss.nextID())
	msg, err := jsonrpc2.NewCall(id, method, params)
	if err != nil {
		return nil, err
	}
	ch := make(chan *jsonrpc.Response, 1)
	ss.pending.Store(id, ch)
	defer ss.pending.Delete(id)

	if err := ss.conn.Write(ctx, msg); err != nil {
		return nil, ErrConnectionClosed
	}
	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ss.done:
		return nil, ErrConnectionClosed
	}
}

func (ss *ServerSession) nextID() int64 {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.nextReqID++
	return ss.nextReqID
}

// receiveLoop reads and dispatches incoming messages until the connection
// closes.
func (ss *ServerSession) receiveLoop(ctx context.Context) {
	defer ss.closeInternal(nil)
	for {
		msg, err := ss.conn.Read(ctx)
		if err != nil {
			ss.closeInternal(err)
			return
		}
		switch m := msg.(type) {
		case *jsonrpc.Response:
			if ch, ok := ss.pending.Load(m.ID); ok {
				ch.(chan *jsonrpc.Response) <- m
			}
		case *jsonrpc.Request:
			go ss.handleRequest(ctx, m)
		}
	}
}

func (ss *ServerSession) handleRequest(ctx context.Context, req *jsonrpc.Request) {
	result, err := ss.server.dispatch(ctx, ss, req.Method, req.Params)
	if !req.IsCall() {
		return
	}
	resp, merr := jsonrpc.NewResponse(req.ID, result, err)
	if merr != nil {
		resp, _ = jsonrpc.NewResponse(req.ID, nil, merr)
	}
	_ = ss.conn.Write(ctx, resp)
}

// Close terminates the session's connection.
func (ss *ServerSession) Close() error {
	ss.closeInternal(nil)
	return ss.conn.Close()
}

func (ss *ServerSession) closeInternal(err error) {
	ss.doneOnce.Do(func() {
		ss.closeErr = err
		ss.mu.Lock()
		if ss.keepaliveCancel != nil {
			ss.keepaliveCancel()
		}
		ss.mu.Unlock()
		if store := ss.server.opts.SessionStateStore; store != nil {
			_ = store.Delete(context.Background(), ss.ID())
		}
		ss.server.mu.Lock()
		ss.server.sessions = slices.DeleteFunc(ss.server.sessions, func(o *ServerSession) bool { return o == ss })
		ss.server.mu.Unlock()
		if !ss.connectedAt.IsZero() {
			recordSessionDuration("server", time.Since(ss.connectedAt))
		}
		close(ss.done)
	})
}

// Wait blocks until the session's connection closes, returning the error
// that caused it to close, if any.
func (ss *ServerSession) Wait() error {
	<-ss.done
	return ss.closeErr
}

// dispatch routes an incoming method to its handler. It decodes raw into the
// Params type the method expects, then runs the decoded request through the
// server's ReceivingMiddleware chain down to execute.
func (s *Server) dispatch(ctx context.Context, ss *ServerSession, method string, raw any) (Result, error) {
	params, err := decodeDispatchParams(method, raw)
	if err != nil {
		return nil, err
	}
	ctx = extractTraceContext(ctx, params)
	ctx, end := startOperationSpan(ctx, operationDispatch, method)
	result, err := s.receiveHandler(ctx, method, requestFor(ss, params))
	end(err)
	return result, err
}

// decodeDispatchParams constructs the Params value method expects and
// unmarshals raw into it. Methods whose params are entirely optional ignore
// a decode failure and proceed with the zero value; methods with required
// fields propagate it as an error.
func decodeDispatchParams(method string, raw any) (Params, error) {
	switch method {
	case methodInitialize:
		p := new(InitializeParams)
		return p, remarshalParams(raw, p)
	case notificationInitialized:
		p := new(InitializedParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case methodPing:
		return &PingParams{}, nil
	case methodListTools:
		p := new(ListToolsParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case methodCallTool:
		p := new(CallToolParamsRaw)
		return p, remarshalParams(raw, p)
	case methodListPrompts:
		p := new(ListPromptsParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case methodGetPrompt:
		p := new(GetPromptParams)
		return p, remarshalParams(raw, p)
	case methodListResources:
		p := new(ListResourcesParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case methodListResourceTemplates:
		p := new(ListResourceTemplatesParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case methodReadResource:
		p := new(ReadResourceParams)
		return p, remarshalParams(raw, p)
	case methodSubscribe:
		p := new(SubscribeParams)
		return p, remarshalParams(raw, p)
	case methodUnsubscribe:
		p := new(UnsubscribeParams)
		return p, remarshalParams(raw, p)
	case methodComplete:
		p := new(CompleteParams)
		return p, remarshalParams(raw, p)
	case methodSetLevel:
		p := new(SetLoggingLevelParams)
		return p, remarshalParams(raw, p)
	case methodGetTask:
		p := new(GetTaskParams)
		return p, remarshalParams(raw, p)
	case methodListTasks:
		p := new(ListTasksParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case methodCancelTask:
		p := new(CancelTaskParams)
		return p, remarshalParams(raw, p)
	case methodTaskResult:
		p := new(TaskResultParams)
		return p, remarshalParams(raw, p)
	case notificationCancelled:
		p := new(CancelledParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case notificationRootsListChanged:
		p := new(RootsListChangedParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case notificationProgress:
		p := new(ProgressNotificationParams)
		_ = remarshalParams(raw, p)
		return p, nil
	default:
		return nil, jsonrpc2.ErrMethodNotFound
	}
}

// execute is the base MethodHandler that implements every server-side
// method, once params have been decoded and run through ReceivingMiddleware.
func (s *Server) execute(ctx context.Context, method string, req Request) (Result, error) {
	ss := req.GetSession().(*ServerSession)
	params := req.GetParams()
	switch method {
	case methodInitialize:
		return ss.initialize(ctx, params.(*InitializeParams))
	case notificationInitialized:
		p := params.(*InitializedParams)
		_, err := ss.initialized(ctx, p)
		if err == nil && s.opts.InitializedHandler != nil {
			s.opts.InitializedHandler(ctx, newServerRequest(ss, p))
		}
		return nil, err
	case methodPing:
		return &EmptyResult{}, nil
	case methodListTools:
		return s.listTools(ctx, newServerRequest(ss, params.(*ListToolsParams)))
	case methodCallTool:
		return s.callToolAny(ctx, newServerRequest(ss, params.(*CallToolParamsRaw)))
	case methodListPrompts:
		return s.listPrompts(ctx, newServerRequest(ss, params.(*ListPromptsParams)))
	case methodGetPrompt:
		return s.getPrompt(ctx, newServerRequest(ss, params.(*GetPromptParams)))
	case methodListResources:
		return s.listResources(ctx, newServerRequest(ss, params.(*ListResourcesParams)))
	case methodListResourceTemplates:
		return s.listResourceTemplates(ctx, newServerRequest(ss, params.(*ListResourceTemplatesParams)))
	case methodReadResource:
		return s.readResource(ctx, newServerRequest(ss, params.(*ReadResourceParams)))
	case methodSubscribe:
		if s.opts.SubscribeHandler == nil {
			return nil, jsonrpc2.ErrMethodNotFound
		}
		p := params.(*SubscribeParams)
		return &EmptyResult{}, s.opts.SubscribeHandler(ctx, newServerRequest(ss, p))
	case methodUnsubscribe:
		if s.opts.UnsubscribeHandler == nil {
			return nil, jsonrpc2.ErrMethodNotFound
		}
		p := params.(*UnsubscribeParams)
		return &EmptyResult{}, s.opts.UnsubscribeHandler(ctx, newServerRequest(ss, p))
	case methodComplete:
		if s.opts.CompletionHandler == nil {
			return nil, jsonrpc2.ErrMethodNotFound
		}
		p := params.(*CompleteParams)
		return s.opts.CompletionHandler(ctx, newServerRequest(ss, p))
	case methodSetLevel:
		p := params.(*SetLoggingLevelParams)
		ss.mu.Lock()
		if ss.state != nil {
			ss.state.LogLevel = p.Level
		}
		ss.mu.Unlock()
		return &EmptyResult{}, nil
	case methodGetTask:
		return s.getTask(ctx, newServerRequest(ss, params.(*GetTaskParams)))
	case methodListTasks:
		return s.listTasks(ctx, newServerRequest(ss, params.(*ListTasksParams)))
	case methodCancelTask:
		return s.cancelTask(ctx, newServerRequest(ss, params.(*CancelTaskParams)))
	case methodTaskResult:
		return s.taskResult(ctx, newServerRequest(ss, params.(*TaskResultParams)))
	case notificationRootsListChanged:
		if s.opts.RootsListChangedHandler != nil {
			s.opts.RootsListChangedHandler(ctx, newServerRequest(ss, params.(*RootsListChangedParams)))
		}
		return nil, nil
	case notificationProgress:
		if s.opts.ProgressNotificationHandler != nil {
			s.opts.ProgressNotificationHandler(ctx, newServerRequest(ss, params.(*ProgressNotificationParams)))
		}
		return nil, nil
	case notificationCancelled:
		return nil, nil
	default:
		return nil, jsonrpc2.ErrMethodNotFound
	}
}

func (s *Server) listTools(ctx context.Context, req *ListToolsRequest) (*ListToolsResult, error) {
	s.mu.Lock()
	fs := s.tools
	s.mu.Unlock()
	return paginateList(fs, s.opts.PageSize, req.Params, &ListToolsResult{}, func(res *ListToolsResult, items []*serverTool) {
		res.Tools = make([]*Tool, len(items))
		for i, st := range items {
			res.Tools[i] = st.tool
		}
	})
}

func (s *Server) listPrompts(ctx context.Context, req *ListPromptsRequest) (*ListPromptsResult, error) {
	s.mu.Lock()
	fs := s.prompts
	s.mu.Unlock()
	return paginateList(fs, s.opts.PageSize, req.Params, &ListPromptsResult{}, func(res *ListPromptsResult, items []*serverPrompt) {
		res.Prompts = make([]*Prompt, len(items))
		for i, p := range items {
			res.Prompts[i] = p.prompt
		}
	})
}

func (s *Server) getPrompt(ctx context.Context, req *GetPromptRequest) (*GetPromptResult, error) {
	s.mu.Lock()
	sp, ok := s.prompts.get(req.Params.Name)
	s.mu.Unlock()
	if !ok {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: fmt.Sprintf("unknown prompt %q", req.Params.Name)}
	}
	if sp.handler == nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: fmt.Sprintf("prompt %q has no handler", req.Params.Name)}
	}
	return sp.handler(ctx, req)
}

func (s *Server) listResources(ctx context.Context, req *ListResourcesRequest) (*ListResourcesResult, error) {
	s.mu.Lock()
	fs := s.resources
	s.mu.Unlock()
	return paginateList(fs, s.opts.PageSize, req.Params, &ListResourcesResult{}, func(res *ListResourcesResult, items []*serverResource) {
		res.Resources = make([]*Resource, len(items))
		for i, r := range items {
			res.Resources[i] = r.resource
		}
	})
}

func (s *Server) listResourceTemplates(ctx context.Context, req *ListResourceTemplatesRequest) (*ListResourceTemplatesResult, error) {
	s.mu.Lock()
	fs := s.resourceTemplates
	s.mu.Unlock()
	return paginateList(fs, s.opts.PageSize, req.Params, &ListResourceTemplatesResult{}, func(res *ListResourceTemplatesResult, items []*serverResourceTemplate) {
		res.ResourceTemplates = make([]*ResourceTemplate, len(items))
		for i, rt := range items {
			res.ResourceTemplates[i] = rt.template
		}
	})
}

func (s *Server) readResource(ctx context.Context, req *ReadResourceRequest) (*ReadResourceResult, error) {
	s.mu.Lock()
	sr, ok := s.resources.get(req.Params.URI)
	s.mu.Unlock()
	if ok {
		if sr.handler == nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: fmt.Sprintf("resource %q has no handler", req.Params.URI)}
		}
		return sr.handler(ctx, req)
	}

	s.mu.Lock()
	templates := s.resourceTemplates.list()
	s.mu.Unlock()
	for _, rt := range templates {
		if rt.match.MatchString(req.Params.URI) {
			if rt.handler == nil {
				continue
			}
			return rt.handler(ctx, req)
		}
	}
	return nil, jsonrpc.ErrResourceNotFound
}

// remarshalParams decodes raw (typically a json.RawMessage or map[string]any
// produced by the wire decoder) into p.
func remarshalParams(raw any, p any) error {
	if raw == nil {
		return nil
	}
	return remarshal(raw, p)
}

// featureSet is a deduplicated, key-ordered registry of server primitives
// (tools, prompts, resources, resource templates). Later adds with the same
// key replace earlier ones; list always returns items sorted by key.
type featureSet[T any] struct {
	keyOf func(T) string
	items map[string]T
}

func newFeatureSet[T any](keyOf func(T) string) *featureSet[T] {
	return &featureSet[T]{keyOf: keyOf, items: make(map[string]T)}
}

func (fs *featureSet[T]) add(items ...T) {
	for _, item := range items {
		fs.items[fs.keyOf(item)] = item
	}
}

func (fs *featureSet[T]) remove(keys ...string) {
	for _, k := range keys {
		delete(fs.items, k)
	}
}

func (fs *featureSet[T]) get(key string) (T, bool) {
	v, ok := fs.items[key]
	return v, ok
}

func (fs *featureSet[T]) len() int { return len(fs.items) }

// list returns every item in the set, ordered by key. It returns nil, not an
// empty slice, when the set is empty.
func (fs *featureSet[T]) list() []T {
	if len(fs.items) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fs.items))
	for k := range fs.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []T
	for _, k := range keys {
		out = append(out, fs.items[k])
	}
	return out
}

// encodeCursor encodes key as an opaque pagination cursor.
func encodeCursor(key string) (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(key); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}

// decodeCursor decodes a cursor produced by encodeCursor.
func decodeCursor(cursor string) (string, error) {
	data, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("invalid cursor: %w", err)
	}
	var key string
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&key); err != nil {
		return "", fmt.Errorf("invalid cursor: %w", err)
	}
	return key, nil
}

// paginateList returns the page of fs's sorted items starting just after the
// cursor encoded in params, writing it into result via setItems and
// populating result's NextCursor field (if there are more items).
func paginateList[T any, P cursorParams, R cursorResult](fs *featureSet[T], pageSize int, params P, result R, setItems func(R, []T)) (R, error) {
	var zero R
	items := fs.list()

	start := 0
	cursor := *params.cursorPtr()
	if cursor != "" {
		key, err := decodeCursor(cursor)
		if err != nil {
			return zero, err
		}
		start = sort.Search(len(items), func(i int) bool {
			return fs.keyOf(items[i]) > key
		})
	}

	end := len(items)
	if pageSize > 0 && start+pageSize < end {
		end = start + pageSize
	}

	page := items[start:end]
	setItems(result, page)

	if end < len(items) {
		cursor, err := encodeCursor(fs.keyOf(items[end-1]))
		if err != nil {
			return zero, err
		}
		*result.nextCursorPtr() = cursor
	}
	return result, nil
}
