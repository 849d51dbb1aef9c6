// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"slices"
	"sync"
	"time"
)

// StoredEvent is a single server-to-client stream event, durably recorded by
// an EventStore in addition to the in-memory log a StreamableServerTransport
// keeps for live delivery.
type StoredEvent struct {
	SessionID string
	StreamID  int64
	Index     int
	Data      []byte
	StoredAt  time.Time
}

// EventStore persists streamable HTTP events beyond the in-memory log that
// StreamableServerTransport uses for its hot path, so that a session can be
// resumed after a server restart and so events survive for audit purposes.
//
// Writes through EventStore are best-effort: a StreamableServerTransport
// serves live reconnection from its in-memory log regardless of whether an
// EventStore is configured, or whether a given Append call succeeds.
//
// Implementations must be safe for concurrent use.
type EventStore interface {
	// Append records a single outgoing event.
	Append(ctx context.Context, ev StoredEvent) error
	// Since returns events for sessionID/streamID with Index >= fromIndex,
	// ordered by Index.
	Since(ctx context.Context, sessionID string, streamID int64, fromIndex int) ([]StoredEvent, error)
	// DeleteSession removes all events recorded for sessionID.
	DeleteSession(ctx context.Context, sessionID string) error
}

// MemoryEventStore is an in-memory EventStore. It is primarily useful for
// testing EventStore-dependent code without a database.
type MemoryEventStore struct {
	mu     sync.Mutex
	events map[string][]StoredEvent // keyed by sessionID, appended in order
}

// NewMemoryEventStore returns a new MemoryEventStore.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[string][]StoredEvent)}
}

// Append implements EventStore.
func (s *MemoryEventStore) Append(ctx context.Context, ev StoredEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.SessionID] = append(s.events[ev.SessionID], ev)
	return nil
}

// Since implements EventStore.
func (s *MemoryEventStore) Since(ctx context.Context, sessionID string, streamID int64, fromIndex int) ([]StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StoredEvent
	for _, ev := range s.events[sessionID] {
		if ev.StreamID == streamID && ev.Index >= fromIndex {
			out = append(out, ev)
		}
	}
	slices.SortFunc(out, func(a, b StoredEvent) int { return a.Index - b.Index })
	return out, nil
}

// DeleteSession implements EventStore.
func (s *MemoryEventStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, sessionID)
	return nil
}
