// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"reflect"
	"strings"
)

// JSONInfo describes how encoding/json treats a struct field, derived from
// its name and "json" tag.
type JSONInfo struct {
	// Name is the JSON object key for the field, after applying the tag's
	// name override (or the Go field name if none was given).
	Name string
	// Omit reports whether the field is excluded from JSON entirely: it is
	// unexported, or its tag is exactly "-".
	Omit bool
	// Settings holds the tag options following the name, such as
	// "omitempty" or "omitzero", as a set.
	Settings map[string]bool
}

// FieldJSONInfo extracts JSONInfo from a struct field, following the same
// rules as encoding/json.
func FieldJSONInfo(field reflect.StructField) JSONInfo {
	info := JSONInfo{Name: field.Name, Settings: map[string]bool{}}
	if !field.IsExported() {
		info.Omit = true
		return info
	}
	tag, ok := field.Tag.Lookup("json")
	if !ok || tag == "" {
		return info
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "-" && len(parts) == 1 {
		info.Omit = true
		return info
	}
	if parts[0] != "" {
		info.Name = parts[0]
	}
	for _, opt := range parts[1:] {
		if opt != "" {
			info.Settings[opt] = true
		}
	}
	return info
}
