// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"sync"
)

// TaskStore durably persists the public record of a task created by the
// task-augmented tools/call flow, independent of the in-process
// serverTaskEntry bookkeeping (cancellation func, completion channel) that
// cannot survive a restart regardless of storage backend.
//
// A TaskStore lets GetTask and ListTasks answer for tasks created before a
// restart, as long as the client reconnects with the same session ID. It
// does not resume in-flight tool execution: a task still "working" when the
// process restarted has no way to finish, since the goroutine running it is
// gone.
//
// Implementations must be safe for concurrent use.
type TaskStore interface {
	// Save persists the current state of task, scoped to sessionID.
	Save(ctx context.Context, sessionID string, task *Task) error
	// Load returns the persisted task with the given ID scoped to sessionID,
	// or nil if none is recorded.
	Load(ctx context.Context, sessionID, taskID string) (*Task, error)
	// List returns all persisted tasks scoped to sessionID.
	List(ctx context.Context, sessionID string) ([]*Task, error)
	// Delete forgets the persisted task with the given ID scoped to
	// sessionID. It is not an error if no such task is recorded.
	Delete(ctx context.Context, sessionID, taskID string) error
}

// MemoryTaskStore is an in-memory TaskStore, primarily intended for testing.
type MemoryTaskStore struct {
	mu    sync.Mutex
	tasks map[string]map[string]*Task // sessionID -> taskID -> task
}

// NewMemoryTaskStore returns a new MemoryTaskStore.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]map[string]*Task)}
}

// Save implements TaskStore.
func (s *MemoryTaskStore) Save(ctx context.Context, sessionID string, task *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *task
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[sessionID] == nil {
		s.tasks[sessionID] = make(map[string]*Task)
	}
	s.tasks[sessionID][task.TaskID] = &cp
	return nil
}

// Load implements TaskStore.
func (s *MemoryTaskStore) Load(ctx context.Context, sessionID, taskID string) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[sessionID][taskID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// List implements TaskStore.
func (s *MemoryTaskStore) List(ctx context.Context, sessionID string) ([]*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Task
	for _, t := range s.tasks[sessionID] {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

// Delete implements TaskStore.
func (s *MemoryTaskStore) Delete(ctx context.Context, sessionID, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks[sessionID], taskID)
	return nil
}
