// Package eventstore persists progress events so a session's history
// survives the in-memory bus.
package eventstore

import (
	"context"
	"time"
)

// Record is one persisted event.
type Record struct {
	ID        int64
	SessionID string
	Seq       int64
	Type      string
	Timestamp time.Time
	Payload   []byte
	Metadata  map[string]string
}

// Store defines the interface for persisting and retrieving events.
type Store interface {
	// Append adds an event. (SessionID, Seq) is unique; appending a duplicate is a no-op.
	Append(ctx context.Context, r Record) error

	// GetBySession retrieves all events of a session ordered by Seq.
	GetBySession(ctx context.Context, sessionID string) ([]Record, error)

	// GetRange retrieves events with start <= Timestamp <= end.
	GetRange(ctx context.Context, start, end time.Time) ([]Record, error)

	// DeleteSession removes a session's events and reports how many were removed.
	DeleteSession(ctx context.Context, sessionID string) (int64, error)

	// Close closes the store and releases resources.
	Close() error
}
