// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
)

// fileResourceHandler returns a handler that serves resources/read requests
// from files under dir, keyed by the final path segment of the resource URI.
func fileResourceHandler(dir string) func(context.Context, *ReadResourceRequest) (*ReadResourceResult, error) {
	return func(ctx context.Context, req *ReadResourceRequest) (*ReadResourceResult, error) {
		u, err := url.Parse(req.Params.URI)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(dir, filepath.Base(u.Path)))
		if err != nil {
			return nil, err
		}
		return &ReadResourceResult{
			Contents: []*ResourceContents{
				{URI: req.Params.URI, MIMEType: "text/plain", Text: string(data)},
			},
		}, nil
	}
}
