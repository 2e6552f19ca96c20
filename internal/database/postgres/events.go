package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/presence-guard/internal/database"
)

// EventStore persists transition events in PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates an event store over the pool.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// RecordTransition inserts one audit event.
func (s *EventStore) RecordTransition(ctx context.Context, ev database.TransitionEvent) error {
	_, err := s.pool.db.ExecContext(ctx, `
		INSERT INTO transitions (id, from_state, to_state, observation, occurred_at, action_fired, action_suppressed, action_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ev.ID, ev.From, ev.To, ev.Observation, ev.At, ev.ActionFired, ev.ActionSuppressed, ev.ActionError)
	if err != nil {
		return fmt.Errorf("inserting transition event: %w", err)
	}
	return nil
}

// RecentTransitions returns up to limit events, newest first.
func (s *EventStore) RecentTransitions(ctx context.Context, limit int) ([]database.TransitionEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.db.QueryContext(ctx, `
		SELECT id, from_state, to_state, observation, occurred_at, action_fired, action_suppressed, action_error
		FROM transitions
		ORDER BY occurred_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	var events []database.TransitionEvent
	for rows.Next() {
		var ev database.TransitionEvent
		if err := rows.Scan(&ev.ID, &ev.From, &ev.To, &ev.Observation, &ev.At,
			&ev.ActionFired, &ev.ActionSuppressed, &ev.ActionError); err != nil {
			return nil, fmt.Errorf("scanning transition row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transition rows: %w", err)
	}
	return events, nil
}

// Close closes the underlying pool.
func (s *EventStore) Close() error {
	return s.pool.Close()
}
