// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package json centralizes the module's choice of JSON codec, so that
// switching implementations (for speed, or for stricter compliance) touches
// one file. It wraps github.com/segmentio/encoding/json, which is
// drop-in-compatible with encoding/json's Marshal/Unmarshal behavior but
// meaningfully faster on the message volumes a busy MCP endpoint pushes
// through the wire codec. One difference is deliberate: Unmarshal matches
// object keys to struct fields case-sensitively, so a key that differs from
// a field's JSON name only in case leaves that field unset.
package json

import (
	"bytes"
	"fmt"

	"github.com/segmentio/encoding/json"
)

// RawMessage is an alias for encoding/json.RawMessage so callers can use
// either package's type interchangeably at API boundaries.
type RawMessage = json.RawMessage

// Decoder and Encoder are aliased so callers can hold a field of this
// package's type without reaching into the underlying codec package.
type Decoder = json.Decoder
type Encoder = json.Encoder

func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return json.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	rest, err := json.Parse(data, v, json.DontMatchCaseInsensitiveStructFields)
	if err != nil {
		return err
	}
	if rest = bytes.TrimSpace(rest); len(rest) > 0 {
		return fmt.Errorf("invalid character %q after top-level value", rest[0])
	}
	return nil
}

func NewDecoder(r interface {
	Read(p []byte) (n int, err error)
}) *json.Decoder {
	return json.NewDecoder(r)
}

func NewEncoder(w interface {
	Write(p []byte) (n int, err error)
}) *json.Encoder {
	return json.NewEncoder(w)
}
