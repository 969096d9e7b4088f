// Package storage - last-known session status
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trafficpilot/internal/models"
)

// ErrNotFound is returned when no status was ever recorded for a session
var ErrNotFound = errors.New("session status not found")

// StatusStore handles session status database operations
type StatusStore struct {
	db *Database
}

// NewStatusStore creates a new StatusStore
func NewStatusStore(db *Database) *StatusStore {
	return &StatusStore{db: db}
}

// Save records event as the latest status of its session
func (s *StatusStore) Save(ctx context.Context, event models.BotStatusEvent) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO session_status (session_id, status, message, first_seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			updated_at = excluded.updated_at
	`, event.SessionID, string(event.Status), event.Message, ts.UnixMilli(), ts.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save session status: %w", err)
	}

	return nil
}

// Get returns the latest status of a session
func (s *StatusStore) Get(ctx context.Context, sessionID string) (models.BotStatusEvent, error) {
	var (
		event     models.BotStatusEvent
		status    string
		updatedAt int64
	)

	err := s.db.db.QueryRowContext(ctx, `
		SELECT session_id, status, message, updated_at
		FROM session_status WHERE session_id = ?
	`, sessionID).Scan(&event.SessionID, &status, &event.Message, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return models.BotStatusEvent{}, ErrNotFound
	}
	if err != nil {
		return models.BotStatusEvent{}, fmt.Errorf("failed to get session status: %w", err)
	}

	event.Status = models.Status(status)
	event.Timestamp = time.UnixMilli(updatedAt)
	return event, nil
}

// CountByStatus returns how many sessions currently sit in each status
func (s *StatusStore) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM session_status GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count session statuses: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.Status(status)] = n
	}

	return counts, rows.Err()
}

// PruneFinished deletes terminal rows last updated before cutoff
func (s *StatusStore) PruneFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM session_status
			WHERE status IN (?, ?) AND updated_at < ?
		`, string(models.StatusCompleted), string(models.StatusError), cutoff.UnixMilli())
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune session statuses: %w", err)
	}

	return deleted, nil
}
