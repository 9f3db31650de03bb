package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRevocationStoreRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewRevocationStore(db)
	ctx := context.Background()
	expiresAt := time.Date(2026, 3, 24, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("insert into revoked_tokens").
		WithArgs("jti-1", expiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Revoke(ctx, "jti-1", expiresAt); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// Empty jti is a no-op, no query expected.
	if err := store.Revoke(ctx, "", expiresAt); err != nil {
		t.Fatalf("revoke empty: %v", err)
	}

	mock.ExpectQuery("select exists").
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	revoked, err := store.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Fatal("expected jti-1 revoked")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevocationStorePurge(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewRevocationStore(db)

	mock.ExpectExec("delete from revoked_tokens").
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := store.Purge(context.Background())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 3 {
		t.Fatalf("purged %d, want 3", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
