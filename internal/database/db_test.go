package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"animeshelf/internal/database"
)

func openDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(database.Config{DatabasePath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedAccount(t *testing.T, db *database.DB, id, email string) {
	t.Helper()
	acct := database.AccountRecord{
		ID:           id,
		Email:        email,
		Username:     "tester",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.Accounts.CreateWithProfile(context.Background(), acct, []byte(`{"watched":[]}`)); err != nil {
		t.Fatalf("create account: %v", err)
	}
}

func TestCreateWithProfileRejectsDuplicateEmail(t *testing.T) {
	db := openDB(t)
	seedAccount(t, db, "u1", "a@example.com")

	err := db.Accounts.CreateWithProfile(context.Background(), database.AccountRecord{
		ID:        "u2",
		Email:     "a@example.com",
		Username:  "other",
		CreatedAt: time.Now().UTC(),
	}, []byte(`{}`))
	if !errors.Is(err, database.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if _, err := db.Profiles.Get(context.Background(), "u2"); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected no profile for rejected account, got %v", err)
	}
}

func TestProfileWriteDetectsVersionConflict(t *testing.T) {
	db := openDB(t)
	seedAccount(t, db, "u1", "a@example.com")
	ctx := context.Background()

	row, err := db.Profiles.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Version != 1 {
		t.Fatalf("expected initial version 1, got %d", row.Version)
	}

	updated, err := db.Profiles.Write(ctx, "u1", []byte(`{"watched":[{"id":1,"title":"A"}]}`), row.Version, "")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	if _, err := db.Profiles.Write(ctx, "u1", []byte(`{}`), row.Version, ""); !errors.Is(err, database.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict for stale write, got %v", err)
	}

	if _, err := db.Profiles.Write(ctx, "missing", []byte(`{}`), 1, ""); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown profile, got %v", err)
	}
}

func TestProfileWriteRecordsIdempotencyKey(t *testing.T) {
	db := openDB(t)
	seedAccount(t, db, "u1", "a@example.com")
	ctx := context.Background()

	if _, err := db.Profiles.Write(ctx, "u1", []byte(`{}`), 1, "key-1"); err != nil {
		t.Fatalf("write: %v", err)
	}
	applied, err := db.Profiles.MutationApplied(ctx, "u1", "key-1")
	if err != nil || !applied {
		t.Fatalf("expected key to be recorded, applied=%v err=%v", applied, err)
	}

	if _, err := db.Profiles.Write(ctx, "u1", []byte(`{}`), 2, "key-1"); !errors.Is(err, database.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for replayed key, got %v", err)
	}
	row, _ := db.Profiles.Get(ctx, "u1")
	if row.Version != 2 {
		t.Fatalf("replayed key must not bump version, got %d", row.Version)
	}
}

func TestSessionsRevokeAndExpire(t *testing.T) {
	db := openDB(t)
	seedAccount(t, db, "u1", "a@example.com")
	ctx := context.Background()

	if err := db.Sessions.Create(ctx, "s1", "u1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := db.Sessions.Create(ctx, "s2", "u1", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("create expired session: %v", err)
	}

	userID, err := db.Sessions.Active(ctx, "s1")
	if err != nil || userID != "u1" {
		t.Fatalf("expected active session for u1, got %q err=%v", userID, err)
	}
	if _, err := db.Sessions.Active(ctx, "s2"); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected expired session to be inactive, got %v", err)
	}

	purged, err := db.Sessions.PurgeExpired(ctx)
	if err != nil || purged != 1 {
		t.Fatalf("expected one purged session, got %d err=%v", purged, err)
	}

	if err := db.Sessions.Revoke(ctx, "s1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := db.Sessions.Active(ctx, "s1"); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected revoked session to be inactive, got %v", err)
	}
}
