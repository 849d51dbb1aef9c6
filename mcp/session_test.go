// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"sync"
	"testing"
	"time"
)

func TestSessionManagerTouchForget(t *testing.T) {
	m := newSessionManager(time.Hour, 0)
	m.touch("a")
	m.touch("b")
	if got := m.count(); got != 2 {
		t.Fatalf("count() = %d, want 2", got)
	}
	m.forget("a")
	if got := m.count(); got != 1 {
		t.Fatalf("count() after forget = %d, want 1", got)
	}
}

func TestSessionManagerOverCapacity(t *testing.T) {
	m := newSessionManager(0, 2)
	if m.overCapacity() {
		t.Fatal("overCapacity() = true before any sessions")
	}
	m.touch("a")
	m.touch("b")
	if !m.overCapacity() {
		t.Fatal("overCapacity() = false at the cap")
	}
}

func TestSessionManagerIdleEviction(t *testing.T) {
	m := newSessionManager(10*time.Millisecond, 0)
	m.touch("stale")

	var (
		mu      sync.Mutex
		evicted []string
	)
	done := make(chan struct{})
	go func() {
		m.run(func(id string) {
			mu.Lock()
			evicted = append(evicted, id)
			mu.Unlock()
			close(done)
		})
	}()
	defer m.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for idle eviction")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(evicted) != 1 || evicted[0] != "stale" {
		t.Errorf("evicted = %v, want [stale]", evicted)
	}
	if m.count() != 0 {
		t.Errorf("count() after eviction = %d, want 0", m.count())
	}
}

func TestSessionManagerStopWithoutIdleTimeout(t *testing.T) {
	m := newSessionManager(0, 0)
	go m.run(func(string) {})
	m.Stop()
}
