package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	Audit(ctx context.Context) AuditStore
}

// UserStore manages user records. There is deliberately no rename operation:
// username is immutable after creation.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)

	// UpdatePassword replaces the hash, records the change time, applies
	// the new expiration date and clears the force-change flag.
	UpdatePassword(ctx context.Context, username, passwordHash string, changedAt time.Time, expiresAt *time.Time) error

	SetEnabled(ctx context.Context, username string, enabled bool) error
	Unlock(ctx context.Context, username string) error

	// IncrementFailedLogins atomically bumps the failed-login counter and
	// locks the account once the counter reaches threshold. Two concurrent
	// calls must never both observe the pre-increment value.
	IncrementFailedLogins(ctx context.Context, username string, threshold int) (count int, locked bool, err error)
	ResetFailedLogins(ctx context.Context, username string) error

	// ListWithExpiry returns users that have a non-null expiration date.
	ListWithExpiry(ctx context.Context) ([]*User, error)
}

// RoleStore manages roles.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
}

// PermissionStore manages the permission catalog and role grants.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	List(ctx context.Context) ([]Permission, error)
	SetForRole(ctx context.Context, roleID string, keys []string) error
	ForRole(ctx context.Context, roleID string) ([]Permission, error)
}

// AuditStore appends and reads immutable login audit entries.
type AuditStore interface {
	Append(ctx context.Context, entry *LoginAudit) error
	List(ctx context.Context, username string, page, pageSize int) ([]LoginAudit, error)
}
