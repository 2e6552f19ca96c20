// Package mariadb implements the audit event store on MariaDB/MySQL for
// hosts that already run one. The enrollment encoding cache is
// PostgreSQL-only; MariaDB has no vector type worth using for it.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/presence-guard/internal/database"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// normalizeDSN forces parseTime on so DATETIME columns scan into
// time.Time, preserving whatever parameters the DSN already carries.
func normalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parsing MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// NewPool creates a new MariaDB connection pool and verifies the
// connection.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	dsn, err := normalizeDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Migrate creates the schema. Idempotent.
func (p *Pool) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transitions (
			id CHAR(36) PRIMARY KEY,
			from_state VARCHAR(16) NOT NULL,
			to_state VARCHAR(16) NOT NULL,
			observation VARCHAR(32) NOT NULL,
			occurred_at DATETIME(6) NOT NULL,
			action_fired BOOLEAN NOT NULL DEFAULT FALSE,
			action_suppressed BOOLEAN NOT NULL DEFAULT FALSE,
			action_error TEXT NOT NULL,
			INDEX idx_transitions_occurred_at (occurred_at DESC)
		)
	`)
	if err != nil {
		return fmt.Errorf("running migration: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// EventStore persists transition events in MariaDB.
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
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
		LIMIT ?
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
