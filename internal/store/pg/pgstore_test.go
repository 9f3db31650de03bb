package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"tempora.dev/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func userRow(username string) *sqlmock.Rows {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "username", "email", "password_hash", "role_id", "enabled", "locked",
		"failed_login_count", "expires_at", "force_password_change", "last_password_change_at",
		"created_at", "updated_at",
	}).AddRow("u1", username, "a@example.com", "$2a$10$hash", "role-USER", true, false,
		0, nil, false, now, now, now)
}

func TestFindByUsername(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select (.+) from users where username=\\$1").
		WithArgs("alice").
		WillReturnRows(userRow("alice"))

	user, err := store.Users(ctx).FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if user.Username != "alice" || user.Email != "a@example.com" || user.RoleID != "role-USER" {
		t.Fatalf("user: %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByUsernameNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select (.+) from users where username=\\$1").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Users(ctx).FindByUsername(ctx, "ghost")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementFailedLoginsSingleAtomicUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("update users").
		WithArgs("alice", 5).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_count", "locked"}).AddRow(5, true))

	count, locked, err := store.Users(ctx).IncrementFailedLogins(ctx, "alice", 5)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 5 || !locked {
		t.Fatalf("count=%d locked=%v", count, locked)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIncrementFailedLoginsUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("update users").
		WithArgs("ghost", 5).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_count", "locked"}))

	_, _, err := store.Users(ctx).IncrementFailedLogins(ctx, "ghost", 5)
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUnlockRequiresExistingRow(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("update users set locked=false").
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Users(ctx).Unlock(ctx, "alice"); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	mock.ExpectExec("update users set locked=false").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Users(ctx).Unlock(ctx, "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePasswordClearsForceFlag(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	changedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	expiresAt := changedAt.Add(90 * 24 * time.Hour)

	mock.ExpectExec("update users").
		WithArgs("alice", "$2a$10$newhash", changedAt, expiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Users(ctx).UpdatePassword(ctx, "alice", "$2a$10$newhash", changedAt, &expiresAt)
	if err != nil {
		t.Fatalf("update password: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetForRoleRunsInTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("delete from role_permissions").
		WithArgs("role-USER").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("insert into role_permissions").
		WithArgs("role-USER", "tasks:read").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Permissions(ctx).SetForRole(ctx, "role-USER", []string{"tasks:read"})
	if err != nil {
		t.Fatalf("set for role: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetForRoleRejectsUnknownPermission(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("delete from role_permissions").
		WithArgs("role-USER").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// Insert-select matches no permission row.
	mock.ExpectExec("insert into role_permissions").
		WithArgs("role-USER", "no:such").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Permissions(ctx).SetForRole(ctx, "role-USER", []string{"no:such"})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditListPaginates(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "username", "at", "outcome", "source"}).
		AddRow("a2", "alice", at, "FAILURE", "10.0.0.1").
		AddRow("a1", "alice", at.Add(-time.Minute), "SUCCESS", "10.0.0.1")
	mock.ExpectQuery("select id, username, at, outcome, source").
		WithArgs("alice", 2, 2).
		WillReturnRows(rows)

	entries, err := store.Audit(ctx).List(ctx, "alice", 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Outcome != auth.LoginFailure {
		t.Fatalf("entries: %+v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
