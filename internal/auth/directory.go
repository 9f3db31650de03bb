package auth

import (
	"context"

	"tempora.dev/internal/lifecycle"
)

// directory adapts the credential store to the lifecycle scanner's view.
type directory struct {
	store Store
}

// NewDirectory exposes the store as a lifecycle.Directory.
func NewDirectory(store Store) lifecycle.Directory {
	return &directory{store: store}
}

func (d *directory) ListWithExpiry(ctx context.Context) ([]lifecycle.Account, error) {
	users, err := d.store.Users(ctx).ListWithExpiry(ctx)
	if err != nil {
		return nil, err
	}
	// Role names are resolved once per distinct role, not per user.
	names := make(map[string]string)
	accounts := make([]lifecycle.Account, 0, len(users))
	for _, u := range users {
		name, ok := names[u.RoleID]
		if !ok {
			role, err := d.store.Roles(ctx).Find(ctx, u.RoleID)
			if err != nil {
				return nil, err
			}
			name = role.Name
			names[u.RoleID] = name
		}
		accounts = append(accounts, lifecycle.Account{
			Username:  u.Username,
			Email:     u.Email,
			RoleName:  name,
			Enabled:   u.Enabled,
			Locked:    u.Locked,
			ExpiresAt: u.ExpiresAt,
		})
	}
	return accounts, nil
}
