package pg

import (
	"context"
	"database/sql"
	"time"

	"tempora.dev/internal/token"
)

// RevocationStore is the shared revocation registry for multi-instance
// deployments: a revoking write on one instance is visible to verify and
// refresh calls on every instance.
type RevocationStore struct {
	db *sql.DB
}

var _ token.RevocationRegistry = (*RevocationStore)(nil)

// NewRevocationStore wraps a database handle.
func NewRevocationStore(db *sql.DB) *RevocationStore {
	return &RevocationStore{db: db}
}

// Revoke records the jti until the token's own expiry.
func (s *RevocationStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		insert into revoked_tokens(jti, expires_at)
		values($1,$2)
		on conflict (jti) do nothing
	`, jti, expiresAt)
	return err
}

// IsRevoked reports whether the jti is revoked and still within its TTL.
func (s *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from revoked_tokens where jti=$1 and expires_at > now())`, jti,
	).Scan(&revoked)
	if err != nil {
		return false, err
	}
	return revoked, nil
}

// Purge deletes entries whose tokens have expired anyway. Intended to run
// alongside the daily lifecycle scan.
func (s *RevocationStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from revoked_tokens where expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
