package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the role → permission-set mapping in memory. It is rebuilt
// synchronously on every permission mutation, so a grant written through
// SetForRole is visible to the very next authorization check in this process.
type Registry struct {
	store Store

	mu    sync.RWMutex
	perms map[string]map[string]struct{}
}

// NewRegistry constructs an empty registry. Call Rebuild before serving.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store: store,
		perms: make(map[string]map[string]struct{}),
	}
}

// Rebuild reloads every role's grants from the store.
func (r *Registry) Rebuild(ctx context.Context) error {
	roles, err := r.store.Roles(ctx).List(ctx)
	if err != nil {
		return fmt.Errorf("registry rebuild: %w", err)
	}
	fresh := make(map[string]map[string]struct{}, len(roles))
	for _, role := range roles {
		grants, err := r.store.Permissions(ctx).ForRole(ctx, role.ID)
		if err != nil {
			return fmt.Errorf("registry rebuild role %s: %w", role.Name, err)
		}
		set := make(map[string]struct{}, len(grants))
		for _, p := range grants {
			set[p.Key()] = struct{}{}
		}
		fresh[role.ID] = set
	}

	r.mu.Lock()
	r.perms = fresh
	r.mu.Unlock()
	return nil
}

// Allowed reports whether the role holds the (resource, action) grant. Pure
// set membership: no hierarchy, no wildcards, no role special cases.
func (r *Registry) Allowed(roleID, resource, action string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.perms[roleID]
	if !ok {
		return false
	}
	_, ok = set[PermissionKey(resource, action)]
	return ok
}

// SetForRole writes the role's grants through to the store and rebuilds, so
// the change is immediately observable.
func (r *Registry) SetForRole(ctx context.Context, roleID string, keys []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if err := r.store.Permissions(ctx).SetForRole(ctx, roleID, dedupeKeys(keys)); err != nil {
		return err
	}
	return r.Rebuild(ctx)
}

// KeysForRole returns the role's grants in sorted canonical form.
func (r *Registry) KeysForRole(roleID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.perms[roleID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func dedupeKeys(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keys))
	result := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, k)
	}
	return result
}
