// Package database defines the audit event store and enrollment
// encoding cache used by the monitor, with PostgreSQL and MariaDB
// backends plus a JSONL file fallback.
package database

import (
	"context"
	"time"
)

// TransitionEvent is one committed security-state transition, written to
// the audit log together with what the dispatcher did about it.
type TransitionEvent struct {
	ID               string    `json:"id"`
	From             string    `json:"from"`
	To               string    `json:"to"`
	Observation      string    `json:"observation"`
	At               time.Time `json:"at"`
	ActionFired      bool      `json:"action_fired"`
	ActionSuppressed bool      `json:"action_suppressed"`
	ActionError      string    `json:"action_error,omitempty"`
}

// EventStore persists transitions as an append-only audit log.
type EventStore interface {
	RecordTransition(ctx context.Context, ev TransitionEvent) error
	// RecentTransitions returns up to limit events, newest first.
	RecentTransitions(ctx context.Context, limit int) ([]TransitionEvent, error)
	Close() error
}

// CachedEncoding is one enrollment image's face encoding keyed by the
// image's content hash.
type CachedEncoding struct {
	FileHash  string
	Identity  string
	Encoding  []float32
	CreatedAt time.Time
}
