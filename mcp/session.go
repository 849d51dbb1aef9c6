// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"sync"
	"time"
)

// SessionState is the state of a session.
type SessionState struct {
	// InitializeParams are the parameters from the initialize request.
	InitializeParams *InitializeParams `json:"initializeParams"`

	// LogLevel is the logging level for the session.
	LogLevel LoggingLevel `json:"logLevel"`

	// TODO: resource subscriptions
}

// defaultSessionIdleTimeout is how long a streamable session may go without
// any request before sessionManager considers it abandoned.
const defaultSessionIdleTimeout = 30 * time.Minute

// defaultMaxSessions bounds the number of concurrent streamable sessions a
// handler will track before it starts rejecting new ones. Zero means
// unbounded.
const defaultMaxSessions = 0

// sessionManager tracks last-activity timestamps for streamable sessions and
// periodically evicts ones that have been idle too long, so that a
// long-running handler doesn't accumulate unbounded session state from
// clients that disconnect without sending a DELETE.
//
// It also enforces an optional cap on the number of concurrently tracked
// sessions.
type sessionManager struct {
	idleTimeout time.Duration
	maxSessions int

	mu       sync.Mutex
	lastSeen map[string]time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// newSessionManager creates a sessionManager. A zero idleTimeout disables
// idle eviction; a zero maxSessions disables the session cap.
func newSessionManager(idleTimeout time.Duration, maxSessions int) *sessionManager {
	return &sessionManager{
		idleTimeout: idleTimeout,
		maxSessions: maxSessions,
		lastSeen:    make(map[string]time.Time),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// touch records activity for the session with the given ID.
func (m *sessionManager) touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen[id] = time.Now()
}

// forget stops tracking the session with the given ID.
func (m *sessionManager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lastSeen, id)
}

// count returns the number of tracked sessions.
func (m *sessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lastSeen)
}

// overCapacity reports whether adding one more session would exceed
// maxSessions.
func (m *sessionManager) overCapacity() bool {
	if m.maxSessions <= 0 {
		return false
	}
	return m.count() >= m.maxSessions
}

// idleSessions returns the IDs of sessions that have not been touched since
// the idle timeout.
func (m *sessionManager) idleSessions(now time.Time) []string {
	if m.idleTimeout <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, last := range m.lastSeen {
		if now.Sub(last) >= m.idleTimeout {
			ids = append(ids, id)
		}
	}
	return ids
}

// run periodically calls evict for every session that has exceeded the idle
// timeout, until Stop is called. It blocks, so callers should run it in its
// own goroutine.
func (m *sessionManager) run(evict func(id string)) {
	defer close(m.done)
	if m.idleTimeout <= 0 {
		<-m.stop
		return
	}
	interval := m.idleTimeout / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			for _, id := range m.idleSessions(now) {
				m.forget(id)
				evict(id)
			}
		}
	}
}

// Stop halts the background prune loop started by run, and waits for it to
// exit.
func (m *sessionManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}
