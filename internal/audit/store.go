// Package audit provides PostgreSQL-backed storage for an append-only log
// of received callback events. Rows capture the event type, the affected
// user, and the raw payload (for operator review); the log is best-effort
// and never gates the webhook reply.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Store manages the event audit log in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates an audit store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL at dsn, verifies the connection, and applies
// pending schema migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: postgres connection failed: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

// Record inserts one audit row for a handled event. The payload is stored
// as JSONB so operators can query into it.
func (s *Store) Record(ctx context.Context, eventType string, userID string, messageToken int64, payload []byte) error {
	const q = `
		INSERT INTO viber_events (id, event_type, user_id, message_token, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	// lib/pq binds []byte as bytea; jsonb wants text.
	_, err := s.db.ExecContext(ctx, q,
		uuid.New().String(),
		eventType,
		userID,
		messageToken,
		string(payload),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// CountByType returns how many events of the given type have been recorded.
func (s *Store) CountByType(ctx context.Context, eventType string) (int, error) {
	const q = `SELECT COUNT(*) FROM viber_events WHERE event_type = $1`

	var count int
	if err := s.db.QueryRowContext(ctx, q, eventType).Scan(&count); err != nil {
		return 0, fmt.Errorf("audit: count events: %w", err)
	}
	return count, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
