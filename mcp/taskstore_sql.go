// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// SQLTaskStore is a TaskStore backed by a SQL database.
//
// It expects a table created with:
//
//	CREATE TABLE mcp_tasks (
//		session_id TEXT NOT NULL,
//		task_id    TEXT NOT NULL,
//		task       JSONB NOT NULL,
//		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//		PRIMARY KEY (session_id, task_id)
//	)
type SQLTaskStore struct {
	db *sql.DB
}

// NewSQLTaskStore returns a SQLTaskStore using db, which the caller owns and
// is responsible for closing.
func NewSQLTaskStore(db *sql.DB) *SQLTaskStore {
	return &SQLTaskStore{db: db}
}

// Save implements TaskStore.
func (s *SQLTaskStore) Save(ctx context.Context, sessionID string, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mcp_tasks (session_id, task_id, task, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_id, task_id) DO UPDATE SET task = $3, updated_at = now()`,
		sessionID, task.TaskID, data)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// Load implements TaskStore.
func (s *SQLTaskStore) Load(ctx context.Context, sessionID, taskID string) (*Task, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT task FROM mcp_tasks WHERE session_id = $1 AND task_id = $2`,
		sessionID, taskID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}

// List implements TaskStore.
func (s *SQLTaskStore) List(ctx context.Context, sessionID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task FROM mcp_tasks WHERE session_id = $1 ORDER BY updated_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var t Task
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// Delete implements TaskStore.
func (s *SQLTaskStore) Delete(ctx context.Context, sessionID, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mcp_tasks WHERE session_id = $1 AND task_id = $2`, sessionID, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
