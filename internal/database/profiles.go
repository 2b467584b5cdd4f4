package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ProfileRow is a stored profile document with its version.
type ProfileRow struct {
	UserID    string
	Document  []byte
	Version   int64
	UpdatedAt time.Time
}

// ProfileRepository persists profile documents with optimistic versioning.
type ProfileRepository struct {
	conn *sql.DB
}

// NewProfileRepository returns a repository over conn.
func NewProfileRepository(conn *sql.DB) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

// Get returns the current document for userID.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*ProfileRow, error) {
	var (
		row ProfileRow
		doc string
	)
	err := r.conn.QueryRowContext(ctx,
		"SELECT user_id, document, version, updated_at FROM profiles WHERE user_id = ?", userID).
		Scan(&row.UserID, &doc, &row.Version, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	row.Document = []byte(doc)
	return &row, nil
}

// Write replaces the document if it is still at expectedVersion and returns
// the stored row. When idempotencyKey is set, the key is recorded in the same
// transaction; a key already recorded for the user yields ErrDuplicate and
// nothing is written.
func (r *ProfileRepository) Write(ctx context.Context, userID string, document []byte, expectedVersion int64, idempotencyKey string) (*ProfileRow, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if idempotencyKey != "" {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO applied_mutations (user_id, key, applied_at) VALUES (?, ?, ?)",
			userID, idempotencyKey, now)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrDuplicate
			}
			return nil, fmt.Errorf("record idempotency key: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE profiles SET document = ?, version = version + 1, updated_at = ? WHERE user_id = ? AND version = ?",
		string(document), now, userID, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM profiles WHERE user_id = ?", userID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, ErrVersionConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &ProfileRow{
		UserID:    userID,
		Document:  document,
		Version:   expectedVersion + 1,
		UpdatedAt: now,
	}, nil
}

// MutationApplied reports whether idempotencyKey was already recorded for
// userID.
func (r *ProfileRepository) MutationApplied(ctx context.Context, userID, idempotencyKey string) (bool, error) {
	var one int
	err := r.conn.QueryRowContext(ctx,
		"SELECT 1 FROM applied_mutations WHERE user_id = ? AND key = ?", userID, idempotencyKey).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return true, nil
}
