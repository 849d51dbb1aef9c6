// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-mcp/endpoint/jsonrpc"
)

// SSEOptions configures an SSEHandler.
type SSEOptions struct{}

// SSEHandler implements the legacy two-endpoint SSE transport: a GET
// request opens a long-lived event stream, and the client posts messages to
// a separate endpoint advertised over that stream.
//
// This transport predates streamable HTTP and is kept for servers that must
// interoperate with older clients.
type SSEHandler struct {
	getServer func(*http.Request) *Server
	opts      SSEOptions

	// onConnection, if set, is called with each ServerSession as soon as it
	// is created. Used by tests to observe sessions the handler creates.
	onConnection func(*ServerSession)

	mu       sync.Mutex
	sessions map[string]*SSEServerTransport
}

// NewSSEHandler returns an SSEHandler that serves sessions from the Server
// returned by getServer for each incoming request. A nil opts is equivalent
// to a zero SSEOptions.
func NewSSEHandler(getServer func(*http.Request) *Server, opts *SSEOptions) *SSEHandler {
	if opts == nil {
		opts = &SSEOptions{}
	}
	return &SSEHandler{
		getServer: getServer,
		opts:      *opts,
		sessions:  make(map[string]*SSEServerTransport),
	}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleSSE(w, r)
	case http.MethodPost:
		h.handleMessage(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SSEHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	server := h.getServer(r)
	sessionID := randText()
	endpoint := "?sessionid=" + url.QueryEscape(sessionID)

	transport := NewSSEServerTransport(endpoint, w)

	h.mu.Lock()
	h.sessions[sessionID] = transport
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, sessionID)
		h.mu.Unlock()
	}()

	ss, err := server.Connect(r.Context(), transport, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if h.onConnection != nil {
		h.onConnection(ss)
	}
	defer ss.Close()

	select {
	case <-transport.done:
	case <-r.Context().Done():
	case <-ss.done:
	}
}

// legacySSEMethods lists the methods a client may invoke on a server
// session over the legacy two-endpoint transport.
var legacySSEMethods = map[string]bool{
	methodCallTool:                  true,
	notificationCancelled:           true,
	methodComplete:                  true,
	notificationElicitationComplete: true,
	methodGetPrompt:                 true,
	methodInitialize:                true,
	notificationInitialized:         true,
	methodListPrompts:               true,
	methodListResourceTemplates:     true,
	methodListResources:             true,
	methodListTools:                 true,
	notificationProgress:            true,
	methodPing:                      true,
	methodReadResource:              true,
	notificationRootsListChanged:    true,
	methodSetLevel:                  true,
	methodSubscribe:                 true,
	methodUnsubscribe:               true,
	methodGetTask:                   true,
	methodListTasks:                 true,
	methodCancelTask:                true,
	methodTaskResult:                true,
}

func (h *SSEHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionid")
	h.mu.Lock()
	transport, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("reading body: %v", err), http.StatusBadRequest)
		return
	}
	msgs, _, err := readBatch(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("decoding message: %v", err), http.StatusBadRequest)
		return
	}

	for _, msg := range msgs {
		req, ok := msg.(*jsonrpc.Request)
		if !ok {
			continue
		}
		if !legacySSEMethods[req.Method] {
			http.Error(w, fmt.Sprintf("method %q not handled", req.Method), http.StatusBadRequest)
			return
		}
		if !req.ID.IsValid() && req.Method != notificationInitialized &&
			req.Method != notificationCancelled && req.Method != notificationProgress &&
			req.Method != notificationRootsListChanged && req.Method != notificationElicitationComplete {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}
	}

	for _, msg := range msgs {
		transport.deliver(msg)
	}
	w.WriteHeader(http.StatusAccepted)
}

// SSEServerTransport is the server side of the legacy two-endpoint SSE
// transport. It streams responses to the client over the SSE connection
// established by SSEHandler, and receives requests out of band via
// SSEHandler's message endpoint.
type SSEServerTransport struct {
	endpoint string
	w        http.ResponseWriter

	incoming chan JSONRPCMessage
	done     chan struct{}
	doneOnce sync.Once

	writeMu sync.Mutex
	id      string
}

// NewSSEServerTransport returns an SSEServerTransport that streams events
// to w, advertising endpoint as the URL clients should POST requests to.
func NewSSEServerTransport(endpoint string, w http.ResponseWriter) *SSEServerTransport {
	return &SSEServerTransport{
		endpoint: endpoint,
		w:        w,
		incoming: make(chan JSONRPCMessage, 16),
		done:     make(chan struct{}),
		id:       randText(),
	}
}

// SessionID returns the session identifier assigned to this transport.
func (t *SSEServerTransport) SessionID() string { return t.id }

func (t *SSEServerTransport) deliver(msg JSONRPCMessage) {
	select {
	case t.incoming <- msg:
	case <-t.done:
	}
}

func (t *SSEServerTransport) Connect(ctx context.Context) (Connection, error) {
	t.writeMu.Lock()
	if _, err := writeEvent(t.w, event{name: "endpoint", data: []byte(t.endpoint)}); err != nil {
		t.writeMu.Unlock()
		return nil, err
	}
	t.writeMu.Unlock()
	return t, nil
}

func (t *SSEServerTransport) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case msg := <-t.incoming:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, fmt.Errorf("sse: connection closed")
	}
}

func (t *SSEServerTransport) Write(ctx context.Context, msg JSONRPCMessage) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err = writeEvent(t.w, event{name: "message", data: data})
	return err
}

func (t *SSEServerTransport) Close() error {
	t.doneOnce.Do(func() { close(t.done) })
	return nil
}

// SSEClientTransport dials the legacy two-endpoint SSE transport: it opens
// an event stream with a GET request, reads the message endpoint the server
// advertises over that stream, and posts outgoing requests there.
type SSEClientTransport struct {
	// Endpoint is the base URL of the SSE handler.
	Endpoint string

	// HTTPClient is used to make requests. If nil, http.DefaultClient is
	// used.
	HTTPClient *http.Client
}

// SSEClientTransportOptions configures a client built with
// NewSSEClientTransport.
type SSEClientTransportOptions struct {
	HTTPClient *http.Client
}

// NewSSEClientTransport returns an SSEClientTransport that connects to
// endpoint. A nil opts is equivalent to a zero SSEClientTransportOptions.
func NewSSEClientTransport(endpoint string, opts *SSEClientTransportOptions) *SSEClientTransport {
	t := &SSEClientTransport{Endpoint: endpoint}
	if opts != nil {
		t.HTTPClient = opts.HTTPClient
	}
	return t
}

func (t *SSEClientTransport) Connect(ctx context.Context) (Connection, error) {
	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("sse: connecting to %s: %s", t.Endpoint, resp.Status)
	}

	conn := &sseClientConn{
		client:   client,
		resp:     resp,
		incoming: make(chan JSONRPCMessage, 16),
		closed:   make(chan struct{}),
	}

	endpointCh := make(chan string, 1)
	go conn.readLoop(endpointCh)

	select {
	case endpoint, ok := <-endpointCh:
		if !ok {
			return nil, fmt.Errorf("sse: stream closed before endpoint event")
		}
		base, err := url.Parse(t.Endpoint)
		if err != nil {
			return nil, err
		}
		msgURL, err := base.Parse(endpoint)
		if err != nil {
			return nil, err
		}
		conn.mu.Lock()
		conn.msgEndpoint = msgURL
		conn.mu.Unlock()
	case <-ctx.Done():
		resp.Body.Close()
		return nil, ctx.Err()
	}
	return conn, nil
}

// sseClientConn is the client side Connection for the legacy SSE transport.
type sseClientConn struct {
	client *http.Client
	resp   *http.Response

	mu          sync.Mutex
	msgEndpoint *url.URL

	incoming chan JSONRPCMessage
	closed   chan struct{}
	closeOnce sync.Once
	readErr  error
}

func (c *sseClientConn) readLoop(endpointCh chan<- string) {
	defer close(c.incoming)
	defer c.resp.Body.Close()

	first := true
	for evt, err := range scanEvents(c.resp.Body) {
		if err != nil {
			if err != io.EOF {
				c.readErr = err
			}
			if first {
				close(endpointCh)
			}
			return
		}
		switch evt.name {
		case "endpoint":
			if first {
				endpointCh <- string(evt.data)
				first = false
			}
		case "message":
			msg, err := jsonrpc.DecodeMessage(evt.data)
			if err != nil {
				c.readErr = err
				return
			}
			select {
			case c.incoming <- msg:
			case <-c.closed:
				return
			}
		}
	}
}

func (c *sseClientConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case msg, ok := <-c.incoming:
		if !ok {
			if c.readErr != nil {
				return nil, c.readErr
			}
			return nil, io.EOF
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, fmt.Errorf("sse: connection closed")
	}
}

func (c *sseClientConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	endpoint := c.msgEndpoint.String()
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sse: posting message: %s: %s", resp.Status, body)
	}
	return nil
}

func (c *sseClientConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
