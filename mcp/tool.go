// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/go-mcp/endpoint/internal/jsonrpc2"
)

// A ToolHandler handles a call to tools/call.
// req.Params.Arguments will contain a json.RawMessage containing the arguments.
// args will contain a value that has been validated against the input schema.
type ToolHandler func(ctx context.Context, req *ServerRequest[*CallToolParamsRaw], args any) (*CallToolResult, error)

type rawToolHandler func(ctx context.Context, req *ServerRequest[*CallToolParamsRaw]) (*CallToolResult, error)

// A serverTool is a tool definition that is bound to a tool handler.
type serverTool struct {
	tool    *Tool
	handler rawToolHandler
	// Resolved tool schemas. Set in newServerTool.
	inputResolved, outputResolved *jsonschema.Resolved
}

// A TypedToolHandler handles a call to tools/call with typed arguments and results.
type TypedToolHandler[In, Out any] func(context.Context, *ServerRequest[*CallToolParamsRaw], In) (*CallToolResult, Out, error)

// reflectionValidator validates raw tool arguments for tools registered
// without a Go argument type. Its internal cache is keyed by schema
// structure, so a single shared instance is safe across all such tools.
var reflectionValidator = NewReflectionValidator()

func newServerTool(t *Tool, h ToolHandler, cache *schemaCache) (*serverTool, error) {
	st := &serverTool{tool: t}
	// A tool registered through the raw, untyped (s *Server).AddTool has no Go
	// type to unmarshal into, so args is just a map[string]any: JSON type
	// mismatches (a string where the schema says integer) would otherwise only
	// surface once resolved.Validate runs against the decoded map, by which
	// point the offending value has already been silently coerced into the
	// map's `any` slot. Validating such tools through reflectionValidator
	// catches the mismatch by attempting to decode into a schema-derived
	// struct type first.
	rawPath := t.newArgs == nil
	if t.newArgs == nil {
		t.newArgs = func() any { return &map[string]any{} }
	}
	if t.InputSchema == nil {
		// This prevents the tool author from forgetting to write a schema where
		// one should be provided. If we papered over this by supplying the empty
		// schema, then every input would be validated and the problem wouldn't be
		// discovered until runtime, when the LLM sent bad data.
		return nil, errors.New("missing input schema")
	}
	var err error
	st.inputResolved, err = resolveSchema(cache, t.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("input schema: %w", err)
	}
	if t.OutputSchema != nil {
		st.outputResolved, err = resolveSchema(cache, t.OutputSchema)
	}
	if err != nil {
		return nil, fmt.Errorf("output schema: %w", err)
	}
	// Structured content is validated against the output schema, if any.
	st.handler = func(ctx context.Context, req *ServerRequest[*CallToolParamsRaw]) (*CallToolResult, error) {
		rawArgs := req.Params.Arguments
		args := t.newArgs()
		if rawPath {
			validated, err := reflectionValidator.ValidateAndApply(rawArgs, st.inputResolved)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(validated, args); err != nil {
				return nil, fmt.Errorf("unmarshaling validated arguments: %w", err)
			}
		} else if err := unmarshalSchema(rawArgs, st.inputResolved, args); err != nil {
			return nil, err
		}
		res, err := h(ctx, req, args)
		// TODO(rfindley): investigate why server errors are embedded in this strange way,
		// rather than returned as jsonrpc2 server errors.
		if err != nil {
			// Structured JSON-RPC errors are returned as protocol errors.
			var wireErr *jsonrpc2.WireError
			if errors.As(err, &wireErr) {
				return nil, err
			}
			res := &CallToolResult{}
			res.SetError(err)
			return res, nil
		}
		if st.outputResolved != nil && res != nil && res.StructuredContent != nil {
			var out any
			if err := remarshal(res.StructuredContent, &out); err != nil {
				return nil, fmt.Errorf("structured content: %w", err)
			}
			if err := st.outputResolved.Validate(out); err != nil {
				return nil, fmt.Errorf("validating structured content: %w", err)
			}
		}
		return res, nil
	}
	return st, nil
}

// resolveSchema resolves schema, consulting and populating cache by pointer
// identity if cache is non-nil. This lets a stateless server that
// re-registers the same *Tool values on every request skip re-resolving
// schemas it has already seen.
func resolveSchema(cache *schemaCache, schema *jsonschema.Schema) (*jsonschema.Resolved, error) {
	if cache != nil {
		if resolved, ok := cache.getBySchema(schema); ok {
			return resolved, nil
		}
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.setBySchema(schema, resolved)
	}
	return resolved, nil
}

// forTypeCached derives a JSON schema for T, consulting and populating cache
// by reflect.Type if cache is non-nil.
func forTypeCached[T any](cache *schemaCache) (*jsonschema.Schema, error) {
	if cache != nil {
		if schema, _, ok := cache.getByType(reflect.TypeFor[T]()); ok {
			return schema, nil
		}
	}
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.setByType(reflect.TypeFor[T](), schema, nil)
	}
	return schema, nil
}

// newTypedServerTool creates a serverTool from a tool and a handler.
// If the tool doesn't have an input schema, it is inferred from In; when In is
// any, the input schema is {"type": "object"}.
// If the tool doesn't have an output schema and Out != any, it is inferred from Out.
func newTypedServerTool[In, Out any](t *Tool, h TypedToolHandler[In, Out], cache *schemaCache) (*serverTool, error) {
	assert(t.newArgs == nil, "newArgs is nil")
	t.newArgs = func() any { var x In; return &x }

	var err error
	if t.InputSchema == nil && reflect.TypeFor[In]() == reflect.TypeFor[any]() {
		t.InputSchema = &jsonschema.Schema{Type: "object"}
	} else if t.InputSchema == nil {
		t.InputSchema, err = forTypeCached[In](cache)
		if err != nil {
			return nil, err
		}
	}
	if t.OutputSchema == nil && reflect.TypeFor[Out]() != reflect.TypeFor[any]() {
		t.OutputSchema, err = forTypeCached[Out](cache)
	}
	if err != nil {
		return nil, err
	}

	toolHandler := func(ctx context.Context, req *ServerRequest[*CallToolParamsRaw], args any) (*CallToolResult, error) {
		res, out, err := h(ctx, req, *args.(*In))
		if err != nil {
			return nil, err
		}
		if res == nil {
			res = &CallToolResult{}
		}
		if t.OutputSchema != nil {
			data, err := json.Marshal(out)
			if err != nil {
				return nil, fmt.Errorf("marshaling structured content: %w", err)
			}
			res.StructuredContent = json.RawMessage(data)
			if res.Content == nil {
				res.Content = []Content{&TextContent{Text: string(data)}}
			}
		} else {
			res.StructuredContent = out
		}
		return res, nil
	}
	return newServerTool(t, toolHandler, cache)
}

// toolForErr is a convenience wrapper around newTypedServerTool that unpacks
// a serverTool into the Tool and raw handler callers need when wiring a
// tool into a registry by hand (or in tests, without a live Server).
func toolForErr[In, Out any](t *Tool, h TypedToolHandler[In, Out], cache *schemaCache) (*Tool, rawToolHandler, error) {
	st, err := newTypedServerTool(t, h, cache)
	if err != nil {
		return nil, nil, err
	}
	return st.tool, st.handler, nil
}

// unmarshalSchema unmarshals data into v and validates the result according to
// the given resolved schema. v already has a concrete Go type (from a typed
// tool's In or a typed resource/prompt handler), so there is nothing to infer
// reflectively here; see reflectionValidator for the untyped-tool case.
func unmarshalSchema(data json.RawMessage, resolved *jsonschema.Resolved, v any) error {
	// Disallow unknown fields.
	// Otherwise, if the tool was built with a struct, the client could send extra
	// fields and json.Unmarshal would ignore them, so the schema would never get
	// a chance to declare the extra args invalid.
	// Absent arguments are treated as an empty object.
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("unmarshaling: %w", err)
	}

	// TODO: test with nil args.
	if resolved != nil {
		if err := resolved.ApplyDefaults(v); err != nil {
			return fmt.Errorf("applying defaults from \n\t%s\nto\n\t%s:\n%w", schemaJSON(resolved.Schema()), data, err)
		}
		if err := resolved.Validate(v); err != nil {
			return fmt.Errorf("validating\n\t%s\nagainst\n\t %s:\n %w", data, schemaJSON(resolved.Schema()), err)
		}
	}
	return nil
}

// schemaJSON returns the JSON value for s as a string, or a string indicating an error.
func schemaJSON(s *jsonschema.Schema) string {
	m, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("<!%s>", err)
	}
	return string(m)
}
