// Package memory implements auth.Store in process memory. It backs tests and
// the datastore-less dev mode of cmd/api.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tempora.dev/internal/auth"
	"tempora.dev/internal/ids"
)

// Store holds everything behind one mutex; counter updates are therefore
// fully serialized per account, which is what the lockout contract requires.
type Store struct {
	mu        sync.Mutex
	usersByID map[string]string // id -> username
	users     map[string]*auth.User
	roles     map[string]*auth.Role
	perms     map[string]auth.Permission // key -> permission
	rolePerms map[string]map[string]struct{}
	audit     []auth.LoginAudit
}

var _ auth.Store = (*Store)(nil)

// New constructs an empty store.
func New() *Store {
	return &Store{
		usersByID: make(map[string]string),
		users:     make(map[string]*auth.User),
		roles:     make(map[string]*auth.Role),
		perms:     make(map[string]auth.Permission),
		rolePerms: make(map[string]map[string]struct{}),
	}
}

func (s *Store) Users(context.Context) auth.UserStore             { return &userStore{s} }
func (s *Store) Roles(context.Context) auth.RoleStore             { return &roleStore{s} }
func (s *Store) Permissions(context.Context) auth.PermissionStore { return &permissionStore{s} }
func (s *Store) Audit(context.Context) auth.AuditStore            { return &auditStore{s} }

// User store ---------------------------------------------------------------

type userStore struct{ s *Store }

func (u *userStore) Create(_ context.Context, user *auth.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, exists := u.s.users[user.Username]; exists {
		return auth.ErrAlreadyExists
	}
	if user.ID == "" {
		user.ID = ids.New()
	}
	cp := *user
	u.s.users[user.Username] = &cp
	u.s.usersByID[user.ID] = user.Username
	return nil
}

func (u *userStore) Find(_ context.Context, id string) (*auth.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	username, ok := u.s.usersByID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyUser(u.s.users[username]), nil
}

func (u *userStore) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[username]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyUser(user), nil
}

func (u *userStore) UpdatePassword(_ context.Context, username, passwordHash string, changedAt time.Time, expiresAt *time.Time) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[username]
	if !ok {
		return auth.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.LastPasswordChangeAt = changedAt
	user.ExpiresAt = copyTime(expiresAt)
	user.ForcePasswordChange = false
	user.UpdatedAt = changedAt
	return nil
}

func (u *userStore) SetEnabled(_ context.Context, username string, enabled bool) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[username]
	if !ok {
		return auth.ErrNotFound
	}
	user.Enabled = enabled
	return nil
}

func (u *userStore) Unlock(_ context.Context, username string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[username]
	if !ok {
		return auth.ErrNotFound
	}
	user.Locked = false
	user.FailedLoginCount = 0
	return nil
}

func (u *userStore) IncrementFailedLogins(_ context.Context, username string, threshold int) (int, bool, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[username]
	if !ok {
		return 0, false, auth.ErrNotFound
	}
	user.FailedLoginCount++
	if user.FailedLoginCount >= threshold {
		user.Locked = true
	}
	return user.FailedLoginCount, user.Locked, nil
}

func (u *userStore) ResetFailedLogins(_ context.Context, username string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[username]
	if !ok {
		return auth.ErrNotFound
	}
	user.FailedLoginCount = 0
	return nil
}

func (u *userStore) ListWithExpiry(_ context.Context) ([]*auth.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	var out []*auth.User
	for _, user := range u.s.users {
		if user.ExpiresAt != nil {
			out = append(out, copyUser(user))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Role store ---------------------------------------------------------------

type roleStore struct{ s *Store }

func (r *roleStore) Create(_ context.Context, role *auth.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.roles {
		if existing.Name == role.Name {
			return auth.ErrAlreadyExists
		}
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	cp := *role
	r.s.roles[role.ID] = &cp
	return nil
}

func (r *roleStore) Find(_ context.Context, id string) (*auth.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (r *roleStore) FindByName(_ context.Context, name string) (*auth.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if role.Name == name {
			cp := *role
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *roleStore) List(_ context.Context) ([]*auth.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*auth.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		cp := *role
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Permission store ---------------------------------------------------------

type permissionStore struct{ s *Store }

func (p *permissionStore) Ensure(_ context.Context, perms []auth.Permission) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	for _, perm := range perms {
		key := perm.Key()
		if _, ok := p.s.perms[key]; ok {
			continue
		}
		if perm.ID == "" {
			perm.ID = ids.New()
		}
		p.s.perms[key] = perm
	}
	return nil
}

func (p *permissionStore) List(_ context.Context) ([]auth.Permission, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	out := make([]auth.Permission, 0, len(p.s.perms))
	for _, perm := range p.s.perms {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (p *permissionStore) SetForRole(_ context.Context, roleID string, keys []string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if _, known := p.s.perms[key]; !known {
			return auth.ErrNotFound
		}
		set[key] = struct{}{}
	}
	p.s.rolePerms[roleID] = set
	return nil
}

func (p *permissionStore) ForRole(_ context.Context, roleID string) ([]auth.Permission, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	set := p.s.rolePerms[roleID]
	out := make([]auth.Permission, 0, len(set))
	for key := range set {
		if perm, ok := p.s.perms[key]; ok {
			out = append(out, perm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// Audit store --------------------------------------------------------------

type auditStore struct{ s *Store }

func (a *auditStore) Append(_ context.Context, entry *auth.LoginAudit) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	a.s.audit = append(a.s.audit, *entry)
	return nil
}

func (a *auditStore) List(_ context.Context, username string, page, pageSize int) ([]auth.LoginAudit, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var filtered []auth.LoginAudit
	for _, entry := range a.s.audit {
		if username == "" || entry.Username == username {
			filtered = append(filtered, entry)
		}
	}
	// Newest first.
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].At.After(filtered[j].At) })
	start := (page - 1) * pageSize
	if start >= len(filtered) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	out := make([]auth.LoginAudit, end-start)
	copy(out, filtered[start:end])
	return out, nil
}

func copyUser(u *auth.User) *auth.User {
	cp := *u
	cp.ExpiresAt = copyTime(u.ExpiresAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
