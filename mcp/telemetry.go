// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file instruments every dispatched and outbound MCP operation with
// OpenTelemetry tracing and metrics. Unlike the optional Middleware chains
// in shared.go, this instrumentation is always active: it is wired directly
// into dispatch and serverCall/clientCall rather than offered as a
// Middleware, so that a caller cannot accidentally omit it by leaving
// ReceivingMiddleware/SendingMiddleware unset.

package mcp

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/go-mcp/endpoint/mcp"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	operationDuration = mustFloat64Histogram(meter, "operation.duration",
		"Duration of a single dispatched or outbound MCP operation.", "s")
	sessionDuration = mustFloat64Histogram(meter, "session.duration",
		"Duration a session remained connected, from Connect to Close.", "s")
)

func mustFloat64Histogram(m metric.Meter, name, description, unit string) metric.Float64Histogram {
	h, err := m.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		// Only reachable if name/unit are malformed, which is a programming
		// error in this file, not a runtime condition.
		panic(err)
	}
	return h
}

// metaCarrier adapts a Params' Meta map to otel's propagation.TextMapCarrier,
// so trace context travels in the protocol's own "_meta" field rather than
// requiring a transport-specific header that non-HTTP transports lack.
type metaCarrier struct {
	meta Meta
}

func (c metaCarrier) Get(key string) string {
	v, ok := c.meta[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (c metaCarrier) Set(key, value string) {
	c.meta[key] = value
}

func (c metaCarrier) Keys() []string {
	keys := make([]string, 0, len(c.meta))
	for k := range c.meta {
		keys = append(keys, k)
	}
	return keys
}

// injectTraceContext stores the span context from ctx into p's metadata, so
// the peer can continue the same trace when it dispatches p.
func injectTraceContext(ctx context.Context, p Params) {
	meta := p.GetMeta()
	if meta == nil {
		meta = make(Meta)
	}
	otel.GetTextMapPropagator().Inject(ctx, metaCarrier{meta})
	p.SetMeta(meta)
}

// extractTraceContext returns a context carrying the span context embedded
// in p's metadata by the peer's injectTraceContext call, if any.
func extractTraceContext(ctx context.Context, p Params) context.Context {
	meta := p.GetMeta()
	if meta == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, metaCarrier{meta})
}

// operationKind distinguishes a handled (incoming) operation from an
// initiated (outgoing) one in span and metric attributes.
type operationKind string

const (
	operationDispatch operationKind = "dispatch"
	operationCall     operationKind = "call"
)

// startOperationSpan starts a span for a single MCP operation and returns the
// span-scoped context together with a function that ends the span and
// records operation.duration, given the outcome. end must be called exactly
// once.
func startOperationSpan(ctx context.Context, kind operationKind, method string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, method, trace.WithAttributes(
		attribute.String("mcp.operation.kind", string(kind)),
		attribute.String("mcp.method", method),
	))
	return ctx, func(err error) {
		attrs := []attribute.KeyValue{
			attribute.String("mcp.operation.kind", string(kind)),
			attribute.String("mcp.method", method),
			attribute.Bool("mcp.error", err != nil),
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	}
}

// recordSessionDuration records how long a session of the given kind
// ("server" or "client") remained connected.
func recordSessionDuration(kind string, d time.Duration) {
	sessionDuration.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.String("mcp.session.kind", kind)))
}
