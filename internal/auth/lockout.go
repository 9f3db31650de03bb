package auth

import (
	"context"

	"tempora.dev/internal/obs"
)

// Lockout tracks consecutive failed login attempts per account. The counter
// update is atomic at the store level, so concurrent failures on the same
// account cannot both read the pre-increment value and miss the trip point.
// A locked account stays locked until an administrator unlocks it.
type Lockout struct {
	store     Store
	threshold int
}

// NewLockout builds a manager with the given trip threshold.
func NewLockout(store Store, threshold int) *Lockout {
	if threshold < 1 {
		threshold = 5
	}
	return &Lockout{store: store, threshold: threshold}
}

// RecordFailure registers one failed attempt and reports whether the account
// is now locked.
func (l *Lockout) RecordFailure(ctx context.Context, username string) (bool, error) {
	count, locked, err := l.store.Users(ctx).IncrementFailedLogins(ctx, username, l.threshold)
	if err != nil {
		return false, err
	}
	if locked && count == l.threshold {
		obs.LockoutsTripped.Inc()
	}
	return locked, nil
}

// Reset clears the counter after a successful login.
func (l *Lockout) Reset(ctx context.Context, username string) error {
	return l.store.Users(ctx).ResetFailedLogins(ctx, username)
}

// Threshold returns the configured trip point.
func (l *Lockout) Threshold() int { return l.threshold }
