// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-mcp/endpoint/internal/json"
	"github.com/go-mcp/endpoint/internal/jsonrpc2"
	"github.com/go-mcp/endpoint/jsonrpc"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// Capabilities, if set, overrides the capabilities the client advertises
	// during initialize. A nil value advertises roots (with listChanged),
	// plus sampling when CreateMessageHandler or CreateMessageWithToolsHandler
	// is set and elicitation when ElicitationHandler is set.
	Capabilities *ClientCapabilities

	// CreateMessageHandler, if set, lets the client honor a server's
	// sampling/createMessage requests.
	CreateMessageHandler func(context.Context, *CreateMessageRequest) (*CreateMessageResult, error)

	// CreateMessageWithToolsHandler, if set, lets the client honor a
	// server's sampling requests that include tools. If unset, such
	// requests fall back to CreateMessageHandler with the tools dropped.
	CreateMessageWithToolsHandler func(context.Context, *CreateMessageWithToolsRequest) (*CreateMessageWithToolsResult, error)

	// ElicitationHandler, if set, lets the client honor a server's
	// elicitation/create requests.
	ElicitationHandler func(context.Context, *ElicitRequest) (*ElicitResult, error)

	// ElicitationCompleteHandler, if set, is called when a URL-mode
	// elicitation the client previously deferred to a browser completes.
	ElicitationCompleteHandler func(context.Context, *ElicitationCompleteNotificationRequest)

	ToolListChangedHandler     func(context.Context, *ToolListChangedRequest)
	PromptListChangedHandler   func(context.Context, *PromptListChangedRequest)
	ResourceListChangedHandler func(context.Context, *ResourceListChangedRequest)
	ResourceUpdatedHandler     func(context.Context, *ResourceUpdatedNotificationRequest)
	LoggingMessageHandler      func(context.Context, *LoggingMessageRequest)

	// ProgressNotificationHandler, if set, is called when the server reports
	// progress on a call the client made.
	ProgressNotificationHandler func(context.Context, *ProgressNotificationClientRequest)

	// SendingMiddleware and ReceivingMiddleware wrap, respectively, outgoing
	// calls to a server and incoming calls from a server.
	SendingMiddleware   []Middleware
	ReceivingMiddleware []Middleware
}

// A Client is a logical MCP client implementation, across any number of
// concurrent ClientSessions.
type Client struct {
	impl *Implementation
	opts ClientOptions

	mu    sync.Mutex
	roots *featureSet[*Root]
}

// NewClient creates a Client with the given implementation metadata. A nil
// opts is equivalent to a zero ClientOptions.
func NewClient(impl *Implementation, opts *ClientOptions) *Client {
	if opts == nil {
		opts = &ClientOptions{}
	}
	return &Client{
		impl:  impl,
		opts:  *opts,
		roots: newFeatureSet(func(r *Root) string { return r.URI }),
	}
}

// AddRoots registers roots that the client exposes to servers via roots/list.
// It sends no notifications/roots/list_changed to connected sessions; servers
// see the new roots on their next roots/list call.
func (c *Client) AddRoots(roots ...*Root) {
	c.mu.Lock()
	c.roots.add(roots...)
	c.mu.Unlock()
}

// RemoveRoots removes the roots with the given URIs, if present.
func (c *Client) RemoveRoots(uris ...string) {
	c.mu.Lock()
	c.roots.remove(uris...)
	c.mu.Unlock()
}

// AddSendingMiddleware wraps the client's calls to servers with the given
// middleware, outermost first.
func (c *Client) AddSendingMiddleware(mw ...Middleware) {
	c.opts.SendingMiddleware = append(mw, c.opts.SendingMiddleware...)
}

// AddReceivingMiddleware wraps handling of calls from servers with the given
// middleware, outermost first.
func (c *Client) AddReceivingMiddleware(mw ...Middleware) {
	c.opts.ReceivingMiddleware = append(mw, c.opts.ReceivingMiddleware...)
}

func (c *Client) capabilities() *ClientCapabilities {
	if c.opts.Capabilities != nil {
		return c.opts.Capabilities.clone()
	}
	caps := &ClientCapabilities{RootsV2: &RootCapabilities{ListChanged: true}}
	if c.opts.CreateMessageHandler != nil || c.opts.CreateMessageWithToolsHandler != nil {
		caps.Sampling = &SamplingCapabilities{}
	}
	if c.opts.ElicitationHandler != nil {
		caps.Elicitation = &ElicitationCapabilities{}
	}
	return caps
}

// Connect dials transport, performs the initialize handshake, and returns
// the resulting session. A nil opts is equivalent to a zero
// ClientSessionOptions.
func (c *Client) Connect(ctx context.Context, transport Transport, opts *ClientSessionOptions) (*ClientSession, error) {
	conn, err := transport.Connect(ctx)
	if err != nil {
		return nil, err
	}
	cs := &ClientSession{
		client:      c,
		mcpConn:     conn,
		done:        make(chan struct{}),
		id:          randText(),
		connectedAt: time.Now(),
	}
	cs.receiveHandler = addMiddleware(cs.execute, c.opts.ReceivingMiddleware)
	go cs.receiveLoop(ctx)

	res, err := clientCall[InitializeResult](ctx, cs, methodInitialize, &InitializeParams{
		Capabilities:    c.capabilities(),
		ClientInfo:      c.impl,
		ProtocolVersion: "2025-06-18",
	})
	if err != nil {
		cs.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	cs.serverInfo = res.ServerInfo
	cs.serverCapabilities = res.Capabilities

	if err := cs.sendNotification(ctx, notificationInitialized, &InitializedParams{}); err != nil {
		cs.Close()
		return nil, fmt.Errorf("notifications/initialized: %w", err)
	}
	return cs, nil
}

// ClientSessionOptions configures a single Connect call.
type ClientSessionOptions struct{}

// A ClientSession is a single logical connection to an MCP server.
type ClientSession struct {
	client *Client

	// mcpConn is the underlying wire connection. Named distinctly from Go's
	// conventional "conn" so that transport-specific test code can safely
	// type-assert it (see the legacy SSE transport tests).
	mcpConn Connection

	receiveHandler MethodHandler

	serverInfo         *Implementation
	serverCapabilities *ServerCapabilities

	doneOnce sync.Once
	done     chan struct{}
	closeErr error

	pending   sync.Map // jsonrpc.ID -> chan *jsonrpc.Response
	nextReqID int64

	id          string
	connectedAt time.Time
}

// ID returns the identifier assigned to this session when it was created.
func (cs *ClientSession) ID() string { return cs.id }

// ServerInfo returns the implementation metadata the server reported during
// initialize.
func (cs *ClientSession) ServerInfo() *Implementation { return cs.serverInfo }

// ServerCapabilities returns the capabilities the server reported during
// initialize.
func (cs *ClientSession) ServerCapabilities() *ServerCapabilities { return cs.serverCapabilities }

func (cs *ClientSession) nextID() int64 {
	cs.nextReqID++
	return cs.nextReqID
}

func (cs *ClientSession) sendNotification(ctx context.Context, method string, params Params) error {
	msg, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	return cs.mcpConn.Write(ctx, msg)
}

// NotifyProgress reports progress to the server for a request that supplied
// a progress token.
func (cs *ClientSession) NotifyProgress(ctx context.Context, params *ProgressNotificationParams) error {
	return cs.sendNotification(ctx, notificationProgress, params)
}

// Ping sends a ping request to the server and waits for the response.
func (cs *ClientSession) Ping(ctx context.Context, params *PingParams) error {
	if params == nil {
		params = &PingParams{}
	}
	_, err := clientCall[EmptyResult](ctx, cs, methodPing, params)
	return err
}

// ListTools lists the tools the server provides.
func (cs *ClientSession) ListTools(ctx context.Context, params *ListToolsParams) (*ListToolsResult, error) {
	if params == nil {
		params = &ListToolsParams{}
	}
	return clientCall[ListToolsResult](ctx, cs, methodListTools, params)
}

// CallTool invokes a tool by name.
func (cs *ClientSession) CallTool(ctx context.Context, params *CallToolParams) (*CallToolResult, error) {
	return clientCall[CallToolResult](ctx, cs, methodCallTool, params)
}

// CallToolTask invokes a tool as a task, returning as soon as the task is
// created rather than waiting for the tool to finish. Use TaskResult to
// retrieve the eventual outcome.
func (cs *ClientSession) CallToolTask(ctx context.Context, params *CallToolParams) (*CreateTaskResult, error) {
	return clientCall[CreateTaskResult](ctx, cs, methodCallTool, params)
}

// ListPrompts lists the prompts the server provides.
func (cs *ClientSession) ListPrompts(ctx context.Context, params *ListPromptsParams) (*ListPromptsResult, error) {
	if params == nil {
		params = &ListPromptsParams{}
	}
	return clientCall[ListPromptsResult](ctx, cs, methodListPrompts, params)
}

// GetPrompt resolves a prompt by name and arguments.
func (cs *ClientSession) GetPrompt(ctx context.Context, params *GetPromptParams) (*GetPromptResult, error) {
	return clientCall[GetPromptResult](ctx, cs, methodGetPrompt, params)
}

// ListResources lists the concrete resources the server provides.
func (cs *ClientSession) ListResources(ctx context.Context, params *ListResourcesParams) (*ListResourcesResult, error) {
	if params == nil {
		params = &ListResourcesParams{}
	}
	return clientCall[ListResourcesResult](ctx, cs, methodListResources, params)
}

// ListResourceTemplates lists the resource templates the server provides.
func (cs *ClientSession) ListResourceTemplates(ctx context.Context, params *ListResourceTemplatesParams) (*ListResourceTemplatesResult, error) {
	if params == nil {
		params = &ListResourceTemplatesParams{}
	}
	return clientCall[ListResourceTemplatesResult](ctx, cs, methodListResourceTemplates, params)
}

// ReadResource reads a resource by URI.
func (cs *ClientSession) ReadResource(ctx context.Context, params *ReadResourceParams) (*ReadResourceResult, error) {
	return clientCall[ReadResourceResult](ctx, cs, methodReadResource, params)
}

// Subscribe asks the server to notify this session of changes to a resource.
func (cs *ClientSession) Subscribe(ctx context.Context, params *SubscribeParams) error {
	_, err := clientCall[EmptyResult](ctx, cs, methodSubscribe, params)
	return err
}

// Unsubscribe cancels a prior Subscribe.
func (cs *ClientSession) Unsubscribe(ctx context.Context, params *UnsubscribeParams) error {
	_, err := clientCall[EmptyResult](ctx, cs, methodUnsubscribe, params)
	return err
}

// Complete requests completion suggestions for a prompt or resource
// template argument.
func (cs *ClientSession) Complete(ctx context.Context, params *CompleteParams) (*CompleteResult, error) {
	return clientCall[CompleteResult](ctx, cs, methodComplete, params)
}

// SetLoggingLevel sets the minimum severity of log messages the server sends
// to this session.
func (cs *ClientSession) SetLoggingLevel(ctx context.Context, params *SetLoggingLevelParams) error {
	_, err := clientCall[EmptyResult](ctx, cs, methodSetLevel, params)
	return err
}

// GetTask retrieves the current state of a task.
func (cs *ClientSession) GetTask(ctx context.Context, params *GetTaskParams) (*GetTaskResult, error) {
	return clientCall[GetTaskResult](ctx, cs, methodGetTask, params)
}

// ListTasks lists the session's tasks.
func (cs *ClientSession) ListTasks(ctx context.Context, params *ListTasksParams) (*ListTasksResult, error) {
	if params == nil {
		params = &ListTasksParams{}
	}
	return clientCall[ListTasksResult](ctx, cs, methodListTasks, params)
}

// CancelTask cancels a running task.
func (cs *ClientSession) CancelTask(ctx context.Context, params *CancelTaskParams) (*CancelTaskResult, error) {
	return clientCall[CancelTaskResult](ctx, cs, methodCancelTask, params)
}

// TaskResult blocks until a task reaches a terminal state, then returns its
// underlying tool result.
func (cs *ClientSession) TaskResult(ctx context.Context, params *TaskResultParams) (*CallToolResult, error) {
	return clientCall[CallToolResult](ctx, cs, methodTaskResult, params)
}

// rawCall sends a request to the server and blocks for its response.
func (cs *ClientSession) rawCall(ctx context.Context, method string, params Params) (*jsonrpc.Response, error) {
	select {
	case <-cs.done:
		return nil, ErrConnectionClosed
	default:
	}

	id := jsonrpc.Int64ID(cs.nextID())
	msg, err := jsonrpc2.NewCall(id, method, params)
	if err != nil {
		return nil, err
	}
	ch := make(chan *jsonrpc.Response, 1)
	cs.pending.Store(id, ch)
	defer cs.pending.Delete(id)

	if err := cs.mcpConn.Write(ctx, msg); err != nil {
		return nil, ErrConnectionClosed
	}
	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp, nil
	case <-ctx.Done():
		// Tell the server the result is no longer wanted.
		_ = cs.sendNotification(context.Background(), notificationCancelled, &CancelledParams{
			RequestID: id.Raw(),
			Reason:    ctx.Err().Error(),
		})
		return nil, ctx.Err()
	case <-cs.done:
		return nil, ErrConnectionClosed
	}
}

// doCall is the base MethodHandler for outgoing calls, wrapped by
// SendingMiddleware.
func (cs *ClientSession) doCall(ctx context.Context, method string, req Request) (Result, error) {
	resp, err := cs.rawCall(ctx, method, req.GetParams())
	if err != nil {
		return nil, err
	}
	return &rawResult{body: resp.Result}, nil
}

// clientCall sends method to cs's peer through the SendingMiddleware chain
// and decodes the response into a freshly allocated R.
func clientCall[R any](ctx context.Context, cs *ClientSession, method string, params Params) (*R, error) {
	ctx, end := startOperationSpan(ctx, operationCall, method)
	injectTraceContext(ctx, params)
	h := addMiddleware(cs.doCall, cs.client.opts.SendingMiddleware)
	res, err := h(ctx, method, requestFor(cs, params))
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

// receiveLoop reads and dispatches incoming messages until the connection
// closes.
func (cs *ClientSession) receiveLoop(ctx context.Context) {
	defer cs.closeInternal(nil)
	for {
		msg, err := cs.mcpConn.Read(ctx)
		if err != nil {
			cs.closeInternal(err)
			return
		}
		switch m := msg.(type) {
		case *jsonrpc.Response:
			if ch, ok := cs.pending.Load(m.ID); ok {
				ch.(chan *jsonrpc.Response) <- m
			}
		case *jsonrpc.Request:
			go cs.handleRequest(ctx, m)
		}
	}
}

func (cs *ClientSession) handleRequest(ctx context.Context, req *jsonrpc.Request) {
	result, err := cs.dispatch(ctx, req.Method, req.Params)
	if !req.IsCall() {
		return
	}
	resp, merr := jsonrpc.NewResponse(req.ID, result, err)
	if merr != nil {
		resp, _ = jsonrpc.NewResponse(req.ID, nil, merr)
	}
	_ = cs.mcpConn.Write(ctx, resp)
}

// dispatch decodes raw into the Params type method expects, then runs it
// through the client's ReceivingMiddleware chain down to execute.
func (cs *ClientSession) dispatch(ctx context.Context, method string, raw any) (Result, error) {
	params, err := decodeClientDispatchParams(method, raw)
	if err != nil {
		return nil, err
	}
	ctx = extractTraceContext(ctx, params)
	ctx, end := startOperationSpan(ctx, operationDispatch, method)
	result, err := cs.receiveHandler(ctx, method, requestFor(cs, params))
	end(err)
	return result, err
}

func decodeClientDispatchParams(method string, raw any) (Params, error) {
	switch method {
	case methodPing:
		return &PingParams{}, nil
	case methodListRoots:
		p := new(ListRootsParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case methodCreateMessage:
		p := new(CreateMessageWithToolsParams)
		return p, remarshalParams(raw, p)
	case methodElicit:
		p := new(ElicitParams)
		return p, remarshalParams(raw, p)
	case notificationLoggingMessage:
		p := new(LoggingMessageParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case notificationProgress:
		p := new(ProgressNotificationParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case notificationToolListChanged:
		p := new(ToolListChangedParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case notificationPromptListChanged:
		p := new(PromptListChangedParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case notificationResourceListChanged:
		p := new(ResourceListChangedParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case notificationResourceUpdated:
		p := new(ResourceUpdatedNotificationParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case notificationElicitationComplete:
		p := new(ElicitationCompleteParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case notificationCancelled:
		p := new(CancelledParams)
		_ = remarshalParams(raw, p)
		return p, nil
	case notificationTaskStatus:
		p := new(TaskStatusNotificationParams)
		_ = remarshalParams(raw, p)
		return p, nil
	default:
		return nil, jsonrpc2.ErrMethodNotFound
	}
}

// execute is the base MethodHandler implementing every client-side method,
// once params have been decoded and run through ReceivingMiddleware.
func (cs *ClientSession) execute(ctx context.Context, method string, req Request) (Result, error) {
	c := cs.client
	params := req.GetParams()
	switch method {
	case methodPing:
		return &EmptyResult{}, nil
	case methodListRoots:
		c.mu.Lock()
		roots := c.roots.list()
		c.mu.Unlock()
		return &ListRootsResult{Roots: roots}, nil
	case methodCreateMessage:
		p := params.(*CreateMessageWithToolsParams)
		if len(p.Tools) > 0 {
			if c.opts.CreateMessageWithToolsHandler != nil {
				return c.opts.CreateMessageWithToolsHandler(ctx, newClientRequest(cs, p))
			}
			base, err := p.toBase()
			if err != nil {
				return nil, err
			}
			if c.opts.CreateMessageHandler == nil {
				return nil, jsonrpc2.ErrMethodNotFound
			}
			return c.opts.CreateMessageHandler(ctx, newClientRequest(cs, base))
		}
		if c.opts.CreateMessageHandler == nil {
			return nil, jsonrpc2.ErrMethodNotFound
		}
		base, err := p.toBase()
		if err != nil {
			return nil, err
		}
		return c.opts.CreateMessageHandler(ctx, newClientRequest(cs, base))
	case methodElicit:
		if c.opts.ElicitationHandler == nil {
			return nil, jsonrpc2.ErrMethodNotFound
		}
		return c.opts.ElicitationHandler(ctx, newClientRequest(cs, params.(*ElicitParams)))
	case notificationLoggingMessage:
		if c.opts.LoggingMessageHandler != nil {
			c.opts.LoggingMessageHandler(ctx, newClientRequest(cs, params.(*LoggingMessageParams)))
		}
		return nil, nil
	case notificationProgress:
		if c.opts.ProgressNotificationHandler != nil {
			c.opts.ProgressNotificationHandler(ctx, newClientRequest(cs, params.(*ProgressNotificationParams)))
		}
		return nil, nil
	case notificationToolListChanged:
		if c.opts.ToolListChangedHandler != nil {
			c.opts.ToolListChangedHandler(ctx, newClientRequest(cs, params.(*ToolListChangedParams)))
		}
		return nil, nil
	case notificationPromptListChanged:
		if c.opts.PromptListChangedHandler != nil {
			c.opts.PromptListChangedHandler(ctx, newClientRequest(cs, params.(*PromptListChangedParams)))
		}
		return nil, nil
	case notificationResourceListChanged:
		if c.opts.ResourceListChangedHandler != nil {
			c.opts.ResourceListChangedHandler(ctx, newClientRequest(cs, params.(*ResourceListChangedParams)))
		}
		return nil, nil
	case notificationResourceUpdated:
		if c.opts.ResourceUpdatedHandler != nil {
			c.opts.ResourceUpdatedHandler(ctx, newClientRequest(cs, params.(*ResourceUpdatedNotificationParams)))
		}
		return nil, nil
	case notificationElicitationComplete:
		if c.opts.ElicitationCompleteHandler != nil {
			c.opts.ElicitationCompleteHandler(ctx, newClientRequest(cs, params.(*ElicitationCompleteParams)))
		}
		return nil, nil
	case notificationCancelled, notificationTaskStatus:
		return nil, nil
	default:
		return nil, jsonrpc2.ErrMethodNotFound
	}
}

// Close terminates the session's connection.
func (cs *ClientSession) Close() error {
	cs.closeInternal(nil)
	return cs.mcpConn.Close()
}

func (cs *ClientSession) closeInternal(err error) {
	cs.doneOnce.Do(func() {
		cs.closeErr = err
		if !cs.connectedAt.IsZero() {
			recordSessionDuration("client", time.Since(cs.connectedAt))
		}
		close(cs.done)
	})
}

// Wait blocks until the session's connection closes, returning the error
// that caused it to close, if any.
func (cs *ClientSession) Wait() error {
	<-cs.done
	return cs.closeErr
}
