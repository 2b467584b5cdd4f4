package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionRepository tracks issued session ids so they can be revoked.
type SessionRepository struct {
	conn *sql.DB
}

// NewSessionRepository returns a repository over conn.
func NewSessionRepository(conn *sql.DB) *SessionRepository {
	return &SessionRepository{conn: conn}
}

// Create records an issued session.
func (r *SessionRepository) Create(ctx context.Context, id, userID string, expiresAt time.Time) error {
	_, err := r.conn.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		id, userID, time.Now().UTC(), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Active returns the owning user of an unexpired, unrevoked session.
func (r *SessionRepository) Active(ctx context.Context, id string) (string, error) {
	var (
		userID    string
		expiresAt time.Time
	)
	err := r.conn.QueryRowContext(ctx,
		"SELECT user_id, expires_at FROM sessions WHERE id = ?", id).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	if !expiresAt.After(time.Now()) {
		return "", ErrNotFound
	}
	return userID, nil
}

// Revoke deletes a session. Revoking an unknown id is not an error.
func (r *SessionRepository) Revoke(ctx context.Context, id string) error {
	if _, err := r.conn.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired sessions and returns how many were removed.
func (r *SessionRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.conn.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}
