package lifecycle

import (
	"testing"
	"time"
)

var scanDay = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

func TestDaysRemainingUsesCalendarDays(t *testing.T) {
	cases := []struct {
		name      string
		today     time.Time
		expiresAt time.Time
		want      int
	}{
		{"same day different hours", scanDay, scanDay.Add(8 * time.Hour), 0},
		{"tomorrow just after midnight", scanDay, time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC), 1},
		{"yesterday late evening", scanDay, time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC), -1},
		{"five days out", scanDay, scanDay.AddDate(0, 0, 5), 5},
		{"non-utc inputs collapse to utc dates", scanDay, scanDay.AddDate(0, 0, 2).In(time.FixedZone("X", 5*3600)), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DaysRemaining(tc.today, tc.expiresAt); got != tc.want {
				t.Fatalf("DaysRemaining = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestStateTransitions(t *testing.T) {
	const window = 7
	cases := []struct {
		name      string
		expiresAt time.Time
		want      Status
	}{
		{"well in the future", scanDay.AddDate(0, 0, 30), StatusActive},
		{"just outside the window", scanDay.AddDate(0, 0, 8), StatusActive},
		{"window boundary", scanDay.AddDate(0, 0, 7), StatusExpiringSoon},
		{"five days left", scanDay.AddDate(0, 0, 5), StatusExpiringSoon},
		{"last day before expiry", scanDay.AddDate(0, 0, 1), StatusExpiringSoon},
		{"expiry day itself", scanDay, StatusExpired},
		{"expired yesterday", scanDay.AddDate(0, 0, -1), StatusExpiredNotice},
		{"expired two days ago", scanDay.AddDate(0, 0, -2), StatusExpired},
		{"expired long ago", scanDay.AddDate(0, -3, 0), StatusExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := State(scanDay, tc.expiresAt, window); got != tc.want {
				t.Fatalf("State = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExpiredNoticeWindowIsOneDay(t *testing.T) {
	// The notice state holds for exactly one calendar day, which is what
	// makes the expired notification fire exactly once without any
	// persisted flag.
	expiresAt := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	days := 0
	for d := 0; d < 30; d++ {
		today := expiresAt.AddDate(0, 0, d)
		if State(today, expiresAt, 7) == StatusExpiredNotice {
			days++
		}
	}
	if days != 1 {
		t.Fatalf("notice state held for %d days, want exactly 1", days)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusActive:        "active",
		StatusExpiringSoon:  "expiring_soon",
		StatusExpiredNotice: "expired_notice",
		StatusExpired:       "expired",
		Status(42):          "unknown",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", status, got, want)
		}
	}
}
