package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"tempora.dev/internal/auth"
	"tempora.dev/internal/store/memory"
)

func seedLockoutUser(t *testing.T, st *memory.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if err := st.Roles(ctx).Create(ctx, &auth.Role{ID: "role-USER", Name: auth.RoleUser, CreatedAt: now}); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := st.Users(ctx).Create(ctx, &auth.User{
		ID:       "u1",
		Username: "alice",
		RoleID:   "role-USER",
		Enabled:  true,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func TestLockoutTripsExactlyAtThreshold(t *testing.T) {
	st := memory.New()
	seedLockoutUser(t, st)
	lockout := auth.NewLockout(st, 5)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		locked, err := lockout.RecordFailure(ctx, "alice")
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if locked {
			t.Fatalf("locked after %d failures, threshold is 5", i)
		}
	}

	locked, err := lockout.RecordFailure(ctx, "alice")
	if err != nil {
		t.Fatalf("failure 5: %v", err)
	}
	if !locked {
		t.Fatal("expected lock at the fifth failure")
	}

	user, err := st.Users(ctx).FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !user.Locked || user.FailedLoginCount != 5 {
		t.Fatalf("user state: locked=%v count=%d", user.Locked, user.FailedLoginCount)
	}
}

func TestLockoutResetClearsCounter(t *testing.T) {
	st := memory.New()
	seedLockoutUser(t, st)
	lockout := auth.NewLockout(st, 5)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := lockout.RecordFailure(ctx, "alice"); err != nil {
			t.Fatalf("failure: %v", err)
		}
	}
	if err := lockout.Reset(ctx, "alice"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// The window starts over: four more failures still do not lock.
	for i := 0; i < 4; i++ {
		locked, err := lockout.RecordFailure(ctx, "alice")
		if err != nil {
			t.Fatalf("failure: %v", err)
		}
		if locked {
			t.Fatalf("locked after reset + %d failures", i+1)
		}
	}
}

func TestLockoutConcurrentFailuresCountExactly(t *testing.T) {
	st := memory.New()
	seedLockoutUser(t, st)
	lockout := auth.NewLockout(st, 5)
	ctx := context.Background()

	const attempts = 25
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, _ = lockout.RecordFailure(ctx, "alice")
		}()
	}
	wg.Wait()

	user, err := st.Users(ctx).FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if user.FailedLoginCount != attempts {
		t.Fatalf("count = %d, want %d (no lost updates)", user.FailedLoginCount, attempts)
	}
	if !user.Locked {
		t.Fatal("expected account locked")
	}
}

func TestLockoutStaysLockedUntilAdminUnlock(t *testing.T) {
	st := memory.New()
	seedLockoutUser(t, st)
	lockout := auth.NewLockout(st, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := lockout.RecordFailure(ctx, "alice"); err != nil {
			t.Fatalf("failure: %v", err)
		}
	}

	if err := st.Users(ctx).Unlock(ctx, "alice"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	user, err := st.Users(ctx).FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if user.Locked || user.FailedLoginCount != 0 {
		t.Fatalf("after unlock: locked=%v count=%d", user.Locked, user.FailedLoginCount)
	}
}
