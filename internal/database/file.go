package database

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileStore appends transition events to a JSONL file. Used when no
// database backend is configured, so the audit trail survives even on
// minimal deployments.
type FileStore struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewFileStore opens (or creates) the audit file for appending.
func NewFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit file %s: %w", path, err)
	}
	return &FileStore{path: path, file: f}, nil
}

// RecordTransition appends one event as a JSON line.
func (s *FileStore) RecordTransition(ctx context.Context, ev TransitionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling transition event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("audit file %s is closed", s.path)
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending to audit file: %w", err)
	}
	return nil
}

// RecentTransitions reads the file back and returns the newest events
// first. The audit file is small in practice (one line per transition,
// not per tick), so a full scan is fine.
func (s *FileStore) RecentTransitions(ctx context.Context, limit int) ([]TransitionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening audit file for read: %w", err)
	}
	defer f.Close()

	var events []TransitionEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev TransitionEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // tolerate a torn final line from a crashed process
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning audit file: %w", err)
	}

	// Newest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Close closes the underlying file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("closing audit file: %w", err)
	}
	return nil
}

// NopStore discards events. Used when auditing is not configured at all.
type NopStore struct{}

func (NopStore) RecordTransition(ctx context.Context, ev TransitionEvent) error {
	return nil
}

func (NopStore) RecentTransitions(ctx context.Context, limit int) ([]TransitionEvent, error) {
	return nil, nil
}

func (NopStore) Close() error { return nil }
