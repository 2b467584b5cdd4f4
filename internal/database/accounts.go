package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AccountRecord is the stored form of an account.
type AccountRecord struct {
	ID               string
	Email            string
	Username         string
	PasswordHash     string
	EmailVerified    bool
	VerificationCode string
	CreatedAt        time.Time
}

// AccountRepository persists accounts.
type AccountRepository struct {
	conn *sql.DB
}

// NewAccountRepository returns a repository over conn.
func NewAccountRepository(conn *sql.DB) *AccountRepository {
	return &AccountRepository{conn: conn}
}

// CreateWithProfile inserts the account and its initial profile document in a
// single transaction. A taken email yields ErrDuplicate.
func (r *AccountRepository) CreateWithProfile(ctx context.Context, acct AccountRecord, document []byte) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, email, username, password_hash, email_verified, verification_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		acct.ID, acct.Email, acct.Username, acct.PasswordHash, acct.EmailVerified, acct.VerificationCode, acct.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, document, version, updated_at)
		VALUES (?, ?, 1, ?)`,
		acct.ID, string(document), acct.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	return tx.Commit()
}

// GetByEmail returns the account with the given email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*AccountRecord, error) {
	return r.scanOne(r.conn.QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, email_verified, verification_code, created_at
		FROM accounts WHERE email = ?`, email))
}

// GetByID returns the account with the given id.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*AccountRecord, error) {
	return r.scanOne(r.conn.QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, email_verified, verification_code, created_at
		FROM accounts WHERE id = ?`, id))
}

// MarkVerified flags the account's email as verified and clears the code.
func (r *AccountRepository) MarkVerified(ctx context.Context, id string) error {
	res, err := r.conn.ExecContext(ctx,
		"UPDATE accounts SET email_verified = 1, verification_code = '' WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccountRepository) scanOne(row *sql.Row) (*AccountRecord, error) {
	var a AccountRecord
	err := row.Scan(&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.EmailVerified, &a.VerificationCode, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}
