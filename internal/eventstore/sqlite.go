package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based event store.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, wrap(ErrDatabaseOpenFailed, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, wrap(ErrInitializeSchemaFailed, err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS progress_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		ts INTEGER NOT NULL,
		payload BLOB NOT NULL,
		metadata TEXT,
		UNIQUE(session_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_progress_session ON progress_events(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_progress_ts ON progress_events(ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a new event to the store.
func (s *SQLiteStore) Append(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON []byte
	if r.Metadata != nil {
		var err error
		if metadataJSON, err = json.Marshal(r.Metadata); err != nil {
			return wrap(ErrEventAppendFailed, err)
		}
	}
	if r.Payload == nil {
		r.Payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress_events (session_id, seq, event_type, ts, payload, metadata)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(session_id, seq) DO NOTHING`,
		r.SessionID, r.Seq, r.Type, r.Timestamp.UnixNano(), r.Payload, metadataJSON,
	)
	if err != nil {
		return wrap(ErrEventAppendFailed, err)
	}
	return nil
}

// GetBySession retrieves all events for a session.
func (s *SQLiteStore) GetBySession(ctx context.Context, sessionID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, seq, event_type, ts, payload, metadata
		 FROM progress_events WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	defer rows.Close()
	return s.scanRecords(rows)
}

// GetRange retrieves events within a time range.
func (s *SQLiteStore) GetRange(ctx context.Context, start, end time.Time) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, seq, event_type, ts, payload, metadata
		 FROM progress_events WHERE ts >= ? AND ts <= ? ORDER BY id`,
		start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	defer rows.Close()
	return s.scanRecords(rows)
}

// DeleteSession removes a session's events.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM progress_events WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, wrap(ErrEventQueryFailed, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		var ts int64
		var metadataJSON []byte
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Seq, &r.Type, &ts, &r.Payload, &metadataJSON); err != nil {
			return nil, wrap(ErrEventScanFailed, err)
		}
		r.Timestamp = time.Unix(0, ts)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
				return nil, wrap(ErrEventScanFailed, err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(ErrEventScanFailed, err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
