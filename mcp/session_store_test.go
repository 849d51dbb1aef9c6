// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"testing"
)

func TestMemoryServerSessionStateStorePersistence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryServerSessionStateStore()

	sessionID := "session-1"
	want := &ServerSessionState{
		InitializeParams: &InitializeParams{},
		LogLevel:         "info",
	}
	if err := store.Save(ctx, sessionID, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, sessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.LogLevel != want.LogLevel {
		t.Errorf("Load(%q) = %+v, want %+v", sessionID, got, want)
	}

	if err := store.Delete(ctx, sessionID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, err = store.Load(ctx, sessionID)
	if err != nil {
		t.Fatalf("Load after Delete: %v", err)
	}
	if got != nil {
		t.Errorf("Load(%q) after Delete = %+v, want nil", sessionID, got)
	}
}

func TestMemoryServerSessionStateStoreSaveNilDeletes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryServerSessionStateStore()
	sessionID := "session-2"

	if err := store.Save(ctx, sessionID, &ServerSessionState{LogLevel: "debug"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, sessionID, nil); err != nil {
		t.Fatalf("Save(nil): %v", err)
	}
	got, err := store.Load(ctx, sessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Errorf("Load(%q) after Save(nil) = %+v, want nil", sessionID, got)
	}
}
