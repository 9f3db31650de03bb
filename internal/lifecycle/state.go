package lifecycle

import "time"

// Status is the password expiration state derived purely from dates. No
// persisted "already notified" flag exists anywhere: the ExpiredNotice state
// is true on exactly one calendar day, which is what makes the expired
// notification exactly-once per instance.
type Status int

const (
	// StatusActive: expiry is further out than the warning window.
	StatusActive Status = iota
	// StatusExpiringSoon: 0 < days remaining <= window. A warning is sent
	// every day the scan runs in this state; the repeats are intended.
	StatusExpiringSoon
	// StatusExpiredNotice: expired exactly yesterday. The single expired
	// notification fires in this state.
	StatusExpiredNotice
	// StatusExpired: expired earlier than yesterday, or expiring today.
	// Login is blocked, silently.
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExpiringSoon:
		return "expiring_soon"
	case StatusExpiredNotice:
		return "expired_notice"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// DaysRemaining returns expiresAt − today in whole UTC calendar days.
func DaysRemaining(today, expiresAt time.Time) int {
	return int(dateOnly(expiresAt).Sub(dateOnly(today)).Hours() / 24)
}

// State computes the lifecycle status for the given day. window is the
// number of days before expiry that warnings start.
func State(today, expiresAt time.Time, window int) Status {
	n := DaysRemaining(today, expiresAt)
	switch {
	case n > window:
		return StatusActive
	case n > 0:
		return StatusExpiringSoon
	case n == -1:
		return StatusExpiredNotice
	default:
		return StatusExpired
	}
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
