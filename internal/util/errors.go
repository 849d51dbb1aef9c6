// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package util

import "fmt"

// Wrapf adds context to *errp, in the style of fmt.Errorf's %w verb, but
// without requiring the caller to have an error value in hand yet. It is
// meant to be used in a defer on a named error return:
//
//	func f() (err error) {
//		defer util.Wrapf(&err, "f(%d)", x)
//		...
//	}
//
// If *errp is nil, Wrapf does nothing.
func Wrapf(errp *error, format string, args ...any) {
	if *errp == nil {
		return
	}
	*errp = fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), *errp)
}
