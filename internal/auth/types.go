package auth

import "time"

// Well-known role names provisioned at install time.
const (
	RoleAdmin        = "ADMIN"
	RoleUser         = "USER"
	RoleGuest        = "GUEST"
	RoleExpenseAdmin = "EXPENSE_ADMIN"
)

// User represents an account in the credential store. Username is assigned
// once at creation and never reassigned; renaming means disabling the record
// and creating a new one.
type User struct {
	ID                   string     `json:"id"`
	Username             string     `json:"username"`
	Email                string     `json:"email,omitempty"`
	PasswordHash         string     `json:"-"`
	RoleID               string     `json:"role_id"`
	Enabled              bool       `json:"enabled"`
	Locked               bool       `json:"locked"`
	FailedLoginCount     int        `json:"failed_login_count"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	ForcePasswordChange  bool       `json:"force_password_change"`
	LastPasswordChangeAt time.Time  `json:"last_password_change_at"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Role groups permissions.
type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Permission is a (resource, action) capability. The pair is the natural key.
type Permission struct {
	ID          string    `json:"id"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Key returns the canonical "resource:action" form used for set membership.
func (p Permission) Key() string {
	return PermissionKey(p.Resource, p.Action)
}

// PermissionKey builds the canonical membership key for a pair.
func PermissionKey(resource, action string) string {
	return resource + ":" + action
}

// LoginOutcome is the recorded result of a login attempt.
type LoginOutcome string

const (
	LoginSuccess LoginOutcome = "SUCCESS"
	LoginFailure LoginOutcome = "FAILURE"
)

// LoginAudit is an append-only record of a login attempt. Entries are never
// mutated or deleted.
type LoginAudit struct {
	ID       string       `json:"id"`
	Username string       `json:"username"`
	At       time.Time    `json:"at"`
	Outcome  LoginOutcome `json:"outcome"`
	Source   string       `json:"source,omitempty"`
}
