package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tempora.dev/internal/ids"
	"tempora.dev/internal/lifecycle"
	"tempora.dev/internal/obs"
	"tempora.dev/internal/token"
)

const (
	defaultPasswordValidity = 90 * 24 * time.Hour
	minPasswordLength       = 8

	maxAuditPageSize = 200
)

// Service drives the login flow and the credential lifecycle operations.
type Service struct {
	store    Store
	tokens   *token.Service
	lockout  *Lockout
	registry *Registry

	now              func() time.Time
	passwordValidity time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithPasswordValidity sets how long a replacement password stays valid for
// accounts that carry an expiration date.
func WithPasswordValidity(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.passwordValidity = d
		}
	}
}

// NewService constructs the auth service.
func NewService(store Store, tokens *token.Service, lockout *Lockout, registry *Registry, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if lockout == nil {
		return nil, errors.New("auth: lockout manager is required")
	}
	if registry == nil {
		return nil, errors.New("auth: permission registry is required")
	}
	svc := &Service{
		store:            store,
		tokens:           tokens,
		lockout:          lockout,
		registry:         registry,
		now:              time.Now,
		passwordValidity: defaultPasswordValidity,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// EnsureBuiltins makes sure the permission catalog exists.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.Permissions(ctx).Ensure(ctx, BuiltinPermissions)
}

// Registry exposes the permission registry for admin handlers.
func (s *Service) Registry() *Registry { return s.registry }

// Login authenticates the credentials and issues a token pair. The error for
// an unknown username and for a wrong password is identical, so callers
// cannot probe which usernames exist.
func (s *Service) Login(ctx context.Context, username, password, source string) (token.Pair, *User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		obs.LoginAttempts.WithLabelValues("failure").Inc()
		return token.Pair{}, nil, ErrInvalidCredentials
	}

	user, err := s.store.Users(ctx).FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.appendAudit(ctx, username, LoginFailure, source)
			obs.LoginAttempts.WithLabelValues("failure").Inc()
			return token.Pair{}, nil, ErrInvalidCredentials
		}
		return token.Pair{}, nil, err
	}

	// A locked or disabled account fails regardless of password
	// correctness.
	if !user.Enabled {
		s.appendAudit(ctx, username, LoginFailure, source)
		obs.LoginAttempts.WithLabelValues("failure").Inc()
		return token.Pair{}, nil, ErrAccountDisabled
	}
	if user.Locked {
		s.appendAudit(ctx, username, LoginFailure, source)
		obs.LoginAttempts.WithLabelValues("failure").Inc()
		return token.Pair{}, nil, ErrAccountLocked
	}

	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		if _, lockErr := s.lockout.RecordFailure(ctx, username); lockErr != nil {
			return token.Pair{}, nil, lockErr
		}
		s.appendAudit(ctx, username, LoginFailure, source)
		obs.LoginAttempts.WithLabelValues("failure").Inc()
		return token.Pair{}, nil, ErrInvalidCredentials
	}

	if s.passwordExpired(user) || user.ForcePasswordChange {
		s.appendAudit(ctx, username, LoginFailure, source)
		obs.LoginAttempts.WithLabelValues("failure").Inc()
		roleName, err := s.roleName(ctx, user.RoleID)
		if err != nil {
			return token.Pair{}, nil, err
		}
		if roleName == RoleGuest {
			// GUEST cannot self-service a password change; this is
			// terminal until an administrator intervenes.
			return token.Pair{}, nil, ErrPasswordChangeNotAllowed
		}
		return token.Pair{}, nil, ErrPasswordExpired
	}

	if err := s.lockout.Reset(ctx, username); err != nil {
		return token.Pair{}, nil, err
	}
	pair, err := s.tokens.Issue(ctx, user.Username)
	if err != nil {
		return token.Pair{}, nil, err
	}
	s.appendAudit(ctx, username, LoginSuccess, source)
	obs.LoginAttempts.WithLabelValues("success").Inc()
	return pair, user, nil
}

// Refresh rotates a refresh token. Tokens minted before the most recent
// password change are void even if unexpired (cutoff rule); disabled and
// locked accounts cannot mint new pairs.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	pair, _, err := s.tokens.Refresh(ctx, refreshToken, func(ctx context.Context, subject string) (time.Time, error) {
		user, err := s.store.Users(ctx).FindByUsername(ctx, subject)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return time.Time{}, token.ErrMalformed
			}
			return time.Time{}, err
		}
		if !user.Enabled {
			return time.Time{}, ErrAccountDisabled
		}
		if user.Locked {
			return time.Time{}, ErrAccountLocked
		}
		return user.LastPasswordChangeAt, nil
	})
	return pair, err
}

// Logout is idempotent. Revocation of the supplied refresh token is best
// effort.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	return s.tokens.Logout(ctx, accessToken, refreshToken)
}

// VerifyAccess resolves a principal from a verified access token.
func (s *Service) VerifyAccess(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.tokens.VerifyAccess(ctx, accessToken)
	if err != nil {
		return Principal{}, err
	}
	user, err := s.store.Users(ctx).FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, token.ErrMalformed
		}
		return Principal{}, err
	}
	if !user.Enabled {
		return Principal{}, ErrAccountDisabled
	}
	if user.Locked {
		return Principal{}, ErrAccountLocked
	}
	roleName, err := s.roleName(ctx, user.RoleID)
	if err != nil {
		return Principal{}, err
	}
	return Principal{User: user, RoleName: roleName}, nil
}

// ChangePassword lets a user replace their password. An expired password is
// accepted here exactly once for this purpose: the moment the new hash is
// written, the old password is void and the token cutoff takes effect.
// GUEST accounts are excluded from password self-service.
func (s *Service) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	username = strings.TrimSpace(username)
	if username == "" || oldPassword == "" {
		return ErrInvalidCredentials
	}
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	user, err := s.store.Users(ctx).FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if !user.Enabled {
		return ErrAccountDisabled
	}
	if user.Locked {
		return ErrAccountLocked
	}
	roleName, err := s.roleName(ctx, user.RoleID)
	if err != nil {
		return err
	}
	if roleName == RoleGuest {
		return ErrPasswordChangeNotAllowed
	}
	if err := VerifyPassword(user.PasswordHash, oldPassword); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	var expiresAt *time.Time
	if user.ExpiresAt != nil {
		next := now.Add(s.passwordValidity)
		expiresAt = &next
	}
	return s.store.Users(ctx).UpdatePassword(ctx, username, hash, now, expiresAt)
}

// GetLoginAudit reads the append-only login audit log. Access is granted to
// holders of the audit:read permission, or to any caller reading their own
// entries. pageSize is clamped to [1, 200].
func (s *Service) GetLoginAudit(ctx context.Context, targetUsername string, page, pageSize int) ([]LoginAudit, error) {
	caller, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil, ErrPermissionDenied
	}
	targetUsername = strings.TrimSpace(targetUsername)
	if targetUsername != caller.User.Username {
		if !s.registry.Allowed(caller.User.RoleID, ResourceAudit, ActionRead) {
			obs.PermissionDenials.WithLabelValues(ResourceAudit, ActionRead).Inc()
			return nil, ErrPermissionDenied
		}
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxAuditPageSize {
		pageSize = maxAuditPageSize
	}
	return s.store.Audit(ctx).List(ctx, targetUsername, page, pageSize)
}

// CreateUserParams is the provisioning input.
type CreateUserParams struct {
	Username            string
	Password            string
	RoleName            string
	Email               string
	ExpiresAt           *time.Time
	ForcePasswordChange bool
}

// CreateUser provisions an account. The username is fixed for the record's
// lifetime; renaming means disabling this record and creating a new one.
func (s *Service) CreateUser(ctx context.Context, p CreateUserParams) (*User, error) {
	p.Username = strings.TrimSpace(p.Username)
	if p.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(p.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	role, err := s.store.Roles(ctx).FindByName(ctx, strings.TrimSpace(p.RoleName))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown role %s", ErrInvalidInput, p.RoleName)
		}
		return nil, err
	}
	hash, err := HashPassword(p.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:                   ids.New(),
		Username:             p.Username,
		Email:                strings.TrimSpace(p.Email),
		PasswordHash:         hash,
		RoleID:               role.ID,
		Enabled:              true,
		ExpiresAt:            p.ExpiresAt,
		ForcePasswordChange:  p.ForcePasswordChange,
		LastPasswordChangeAt: now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// RolePermissions returns a role's grants in canonical "resource:action"
// form, resolved by role name.
func (s *Service) RolePermissions(ctx context.Context, roleName string) ([]string, error) {
	role, err := s.store.Roles(ctx).FindByName(ctx, strings.TrimSpace(roleName))
	if err != nil {
		return nil, err
	}
	return s.registry.KeysForRole(role.ID), nil
}

// SetRolePermissions replaces a role's grants. The change is visible to the
// next authorization check in this process.
func (s *Service) SetRolePermissions(ctx context.Context, roleName string, keys []string) error {
	role, err := s.store.Roles(ctx).FindByName(ctx, strings.TrimSpace(roleName))
	if err != nil {
		return err
	}
	return s.registry.SetForRole(ctx, role.ID, keys)
}

// Unlock clears a lockout; administrator action only, enforced at the
// boundary.
func (s *Service) Unlock(ctx context.Context, username string) error {
	return s.store.Users(ctx).Unlock(ctx, strings.TrimSpace(username))
}

// SetEnabled enables or disables an account.
func (s *Service) SetEnabled(ctx context.Context, username string, enabled bool) error {
	return s.store.Users(ctx).SetEnabled(ctx, strings.TrimSpace(username), enabled)
}

func (s *Service) passwordExpired(u *User) bool {
	if u.ExpiresAt == nil {
		return false
	}
	return lifecycle.DaysRemaining(s.now(), *u.ExpiresAt) <= 0
}

func (s *Service) roleName(ctx context.Context, roleID string) (string, error) {
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return "", err
	}
	return role.Name, nil
}

func (s *Service) appendAudit(ctx context.Context, username string, outcome LoginOutcome, source string) {
	entry := &LoginAudit{
		ID:       ids.New(),
		Username: username,
		At:       s.now().UTC(),
		Outcome:  outcome,
		Source:   source,
	}
	if err := s.store.Audit(ctx).Append(ctx, entry); err != nil {
		obs.LogRequest(map[string]any{
			"level": "error",
			"msg":   "audit append failed",
			"error": err.Error(),
		})
	}
}
