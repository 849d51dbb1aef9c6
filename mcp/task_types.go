// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file holds the wire types for the task subsystem: the "call-now,
// fetch-later" augmentation that lets a request be run asynchronously and
// polled for completion instead of answered inline.

package mcp

// TaskStatus is the lifecycle state of a task. Completed, Failed, and
// Cancelled are terminal: once reached, a task's status never changes again.
type TaskStatus string

const (
	TaskStatusWorking   TaskStatus = "working"
	TaskStatusInputRequired TaskStatus = "input_required"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskParams is the "task" field attached to a request that may be run as a
// task, requesting task augmentation and optionally bounding its lifetime.
type TaskParams struct {
	// TTL is the task's lifetime in milliseconds, counted from its creation;
	// once it has passed, the task expires and is removed. Nil means the task
	// does not expire.
	TTL *int64 `json:"ttl,omitempty"`
}

// Task describes the current state of an in-flight or completed task.
type Task struct {
	Meta `json:"_meta,omitempty"`
	// TaskID uniquely identifies the task within its session.
	TaskID string `json:"taskId"`
	// Status is the task's current lifecycle state.
	Status TaskStatus `json:"status"`
	// StatusMessage is a human-readable description of the current status.
	StatusMessage string `json:"statusMessage,omitempty"`
	// CreatedAt is an RFC3339 timestamp of task creation.
	CreatedAt string `json:"createdAt"`
	// LastUpdatedAt is an RFC3339 timestamp of the last status transition.
	LastUpdatedAt string `json:"lastUpdatedAt"`
	// TTL is the task's lifetime in milliseconds, counted from its creation,
	// or null if none was requested.
	TTL *int64 `json:"ttl"`
}

// CreateTaskResult is returned in place of a normal result when a request is
// accepted for task execution rather than answered synchronously.
type CreateTaskResult struct {
	Meta `json:"_meta,omitempty"`
	Task *Task `json:"task"`
}

func (*CreateTaskResult) isResult() {}

// GetTaskParams identifies a task for tasks/get.
type GetTaskParams struct {
	Meta   `json:"_meta,omitempty"`
	TaskID string `json:"taskId"`
}

func (x *GetTaskParams) isParams()              {}
func (x *GetTaskParams) GetProgressToken() any  { return getProgressToken(x) }
func (x *GetTaskParams) SetProgressToken(t any) { setProgressToken(x, t) }

// GetTaskResult is the response to tasks/get: the task's current state.
type GetTaskResult Task

func (*GetTaskResult) isResult() {}

// ListTasksParams requests a page of the calling session's tasks.
type ListTasksParams struct {
	Meta   `json:"_meta,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

func (x *ListTasksParams) isParams()              {}
func (x *ListTasksParams) GetProgressToken() any  { return getProgressToken(x) }
func (x *ListTasksParams) SetProgressToken(t any) { setProgressToken(x, t) }
func (x *ListTasksParams) cursorPtr() *string     { return &x.Cursor }

// ListTasksResult is a page of the calling session's tasks.
type ListTasksResult struct {
	Meta       `json:"_meta,omitempty"`
	Tasks      []*Task `json:"tasks"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

func (x *ListTasksResult) isResult()              {}
func (x *ListTasksResult) nextCursorPtr() *string { return &x.NextCursor }

// CancelTaskParams identifies a task for tasks/cancel.
type CancelTaskParams struct {
	Meta   `json:"_meta,omitempty"`
	TaskID string `json:"taskId"`
}

func (x *CancelTaskParams) isParams()              {}
func (x *CancelTaskParams) GetProgressToken() any  { return getProgressToken(x) }
func (x *CancelTaskParams) SetProgressToken(t any) { setProgressToken(x, t) }

// CancelTaskResult is the task's state immediately after cancellation.
type CancelTaskResult Task

func (*CancelTaskResult) isResult() {}

// TaskResultParams identifies a task for tasks/result, which blocks until
// the task reaches a terminal state and then returns its underlying result.
type TaskResultParams struct {
	Meta   `json:"_meta,omitempty"`
	TaskID string `json:"taskId"`
}

func (x *TaskResultParams) isParams()              {}
func (x *TaskResultParams) GetProgressToken() any  { return getProgressToken(x) }
func (x *TaskResultParams) SetProgressToken(t any) { setProgressToken(x, t) }

// TaskStatusNotificationParams carries a task's updated state in a
// notifications/tasks/status message.
type TaskStatusNotificationParams Task

func (*TaskStatusNotificationParams) isParams()                {}
func (x *TaskStatusNotificationParams) GetProgressToken() any  { return getProgressToken(x) }
func (x *TaskStatusNotificationParams) SetProgressToken(t any) { setProgressToken(x, t) }
