// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/go-mcp/endpoint/jsonrpc"
)

// validateElicitSchema checks that schema follows the restricted subset the
// elicitation spec allows: a flat object whose properties are primitives.
// A nil schema is valid, since RequestedSchema is optional.
func validateElicitSchema(schema *jsonschema.Schema) error {
	if schema == nil {
		return nil
	}
	if schema.Type != "object" {
		return fmt.Errorf("elicit schema must be of type 'object', got %q", schema.Type)
	}
	for name, prop := range schema.Properties {
		if err := validateElicitProperty(name, prop); err != nil {
			return err
		}
	}
	return nil
}

func validateElicitProperty(name string, prop *jsonschema.Schema) error {
	if prop == nil {
		return fmt.Errorf("elicit schema property %q has unsupported type %q, only string, number, integer, and boolean are allowed", name, "")
	}

	if prop.Type == "object" {
		if len(prop.Properties) > 0 {
			return fmt.Errorf("elicit schema property %q contains nested properties, only primitive properties are allowed", name)
		}
		return fmt.Errorf("elicit schema property %q has unsupported type %q, only string, number, integer, and boolean are allowed", name, prop.Type)
	}

	if len(prop.Enum) > 0 {
		if err := validateElicitEnumNames(name, prop); err != nil {
			return err
		}
	}

	switch prop.Type {
	case "string":
		if prop.MinLength != nil && *prop.MinLength < 0 {
			return fmt.Errorf("elicit schema property %q has invalid minLength %d, must be non-negative", name, *prop.MinLength)
		}
		if prop.MaxLength != nil && *prop.MaxLength < 0 {
			return fmt.Errorf("elicit schema property %q has invalid maxLength %d, must be non-negative", name, *prop.MaxLength)
		}
		if prop.MinLength != nil && prop.MaxLength != nil && *prop.MaxLength < *prop.MinLength {
			return fmt.Errorf("elicit schema property %q has maxLength %d less than minLength %d", name, *prop.MaxLength, *prop.MinLength)
		}
		if prop.Format != "" {
			switch prop.Format {
			case "email", "uri", "date", "date-time":
			default:
				return fmt.Errorf("elicit schema property %q has unsupported format %q, only email, uri, date, and date-time are allowed", name, prop.Format)
			}
		}
		if len(prop.Default) > 0 {
			var s string
			if err := json.Unmarshal(prop.Default, &s); err != nil {
				return fmt.Errorf("elicit schema property %q has invalid default value, must be a string", name)
			}
		}
	case "number", "integer":
		if prop.Minimum != nil && prop.Maximum != nil && *prop.Maximum < *prop.Minimum {
			return fmt.Errorf("elicit schema property %q has maximum %v less than minimum %v", name, *prop.Maximum, *prop.Minimum)
		}
		if len(prop.Default) > 0 {
			var f float64
			if err := json.Unmarshal(prop.Default, &f); err != nil {
				return fmt.Errorf("elicit schema property %q has default value that cannot be interpreted as an int or float", name)
			}
		}
	case "boolean":
		if len(prop.Default) > 0 {
			var b bool
			if err := json.Unmarshal(prop.Default, &b); err != nil {
				return fmt.Errorf("elicit schema property %q has invalid default value, must be a bool", name)
			}
		}
	default:
		return fmt.Errorf("elicit schema property %q has unsupported type %q, only string, number, integer, and boolean are allowed", name, prop.Type)
	}
	return nil
}

func validateElicitEnumNames(name string, prop *jsonschema.Schema) error {
	extra, ok := prop.Extra["enumNames"]
	if !ok {
		return nil
	}
	names, ok := extra.([]any)
	if !ok {
		return fmt.Errorf("elicit schema property %q has invalid enumNames type, must be an array", name)
	}
	if len(names) != len(prop.Enum) {
		return fmt.Errorf("elicit schema property %q has %d enum values but %d enumNames, they must match", name, len(prop.Enum), len(names))
	}
	return nil
}

// applyElicitDefaultsAndValidate fills in schema-declared defaults for
// properties the user left unanswered, then validates the accepted
// elicitation's content against the requested schema.
func applyElicitDefaultsAndValidate(schema *jsonschema.Schema, res *ElicitResult) error {
	if schema == nil || res == nil || res.Action != "accept" {
		return nil
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return nil
	}
	if res.Content == nil {
		res.Content = map[string]any{}
	}
	if err := resolved.ApplyDefaults(&res.Content); err != nil {
		return fmt.Errorf("applying defaults to elicitation result: %w", err)
	}
	if err := resolved.Validate(res.Content); err != nil {
		return fmt.Errorf("validating elicitation result against %s: %w", schemaJSON(schema), err)
	}
	return nil
}

func invalidElicitSchemaError(err error) error {
	return jsonrpc.NewError(jsonrpc.CodeInvalidParams, "%s", err)
}
