package token

import (
	"context"
	"sync"
	"time"
)

// RevocationRegistry tracks revoked token ids until their natural expiry.
// Retaining an entry past the token's own expiry is pointless: the token
// would already fail the expiry check.
type RevocationRegistry interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryRegistry is the in-process default. In a multi-instance deployment a
// shared registry (see store/pg) is required for revocation to be global.
type MemoryRegistry struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryRegistry constructs a registry. A nil clock means time.Now.
func NewMemoryRegistry(now func() time.Time) *MemoryRegistry {
	if now == nil {
		now = time.Now
	}
	return &MemoryRegistry{
		now:     now,
		entries: make(map[string]time.Time),
	}
}

// Revoke records the jti until expiresAt. Entries already past expiry are
// not stored.
func (r *MemoryRegistry) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gcLocked(now)
	if expiresAt.After(now) {
		r.entries[jti] = expiresAt
	}
	return nil
}

// IsRevoked reports whether the jti was revoked and has not yet aged out.
func (r *MemoryRegistry) IsRevoked(_ context.Context, jti string) (bool, error) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.entries[jti]
	if !ok {
		return false, nil
	}
	if !exp.After(now) {
		delete(r.entries, jti)
		return false, nil
	}
	return true, nil
}

// Len reports live entries, for tests and diagnostics.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gcLocked(r.now())
	return len(r.entries)
}

func (r *MemoryRegistry) gcLocked(now time.Time) {
	for jti, exp := range r.entries {
		if !exp.After(now) {
			delete(r.entries, jti)
		}
	}
}
