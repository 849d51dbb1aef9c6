// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// SQLEventStore is an EventStore backed by a SQL database, for deployments
// that run the streamable HTTP handler behind a load balancer across
// multiple processes and want stream events to survive a restart.
//
// It expects a table created with:
//
//	CREATE TABLE mcp_stream_events (
//		session_id TEXT NOT NULL,
//		stream_id  BIGINT NOT NULL,
//		idx        INTEGER NOT NULL,
//		data       BYTEA NOT NULL,
//		stored_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
//		PRIMARY KEY (session_id, stream_id, idx)
//	)
type SQLEventStore struct {
	db *sql.DB
}

// NewSQLEventStore returns a SQLEventStore using db, which the caller owns
// and is responsible for closing.
func NewSQLEventStore(db *sql.DB) *SQLEventStore {
	return &SQLEventStore{db: db}
}

// Append implements EventStore.
func (s *SQLEventStore) Append(ctx context.Context, ev StoredEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_stream_events (session_id, stream_id, idx, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, stream_id, idx) DO NOTHING`,
		ev.SessionID, ev.StreamID, ev.Index, ev.Data)
	if err != nil {
		return fmt.Errorf("append stream event: %w", err)
	}
	return nil
}

// Since implements EventStore.
func (s *SQLEventStore) Since(ctx context.Context, sessionID string, streamID int64, fromIndex int) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, data, stored_at FROM mcp_stream_events
		WHERE session_id = $1 AND stream_id = $2 AND idx >= $3
		ORDER BY idx ASC`,
		sessionID, streamID, fromIndex)
	if err != nil {
		return nil, fmt.Errorf("query stream events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		ev := StoredEvent{SessionID: sessionID, StreamID: streamID}
		if err := rows.Scan(&ev.Index, &ev.Data, &ev.StoredAt); err != nil {
			return nil, fmt.Errorf("scan stream event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stream events: %w", err)
	}
	return events, nil
}

// DeleteSession implements EventStore.
func (s *SQLEventStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mcp_stream_events WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session stream events: %w", err)
	}
	return nil
}
