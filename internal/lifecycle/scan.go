package lifecycle

import (
	"context"
	"fmt"
	"time"

	"tempora.dev/internal/obs"
)

// Notifier delivers a notification to one recipient. The real mail transport
// lives outside this core; see the notify package for the logging adapter.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Account is the slice of a user record the scan needs.
type Account struct {
	Username  string
	Email     string
	RoleName  string
	Enabled   bool
	Locked    bool
	ExpiresAt *time.Time
}

// Directory lists accounts that carry an expiration date.
type Directory interface {
	ListWithExpiry(ctx context.Context) ([]Account, error)
}

// Summary is what the manual trigger returns: counts only, no per-user
// detail.
type Summary struct {
	Scanned        int `json:"scanned"`
	Warned         int `json:"warned"`
	ExpiredNotices int `json:"expired_notices"`
	Skipped        int `json:"skipped"`
}

// Scanner drives the daily notification pass. It is idempotent per calendar
// day given the same clock value. When several service instances run the
// scan independently without a shared lock, the expired notice degrades to
// exactly-once per instance; coordinating that requires an external
// distributed lock and is out of scope here.
type Scanner struct {
	dir      Directory
	notifier Notifier
	now      func() time.Time
	window   int
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) ScannerOption {
	return func(s *Scanner) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithWindow overrides the warning window in days.
func WithWindow(days int) ScannerOption {
	return func(s *Scanner) {
		if days > 0 {
			s.window = days
		}
	}
}

// NewScanner constructs a Scanner with a 7-day default window.
func NewScanner(dir Directory, notifier Notifier, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		dir:      dir,
		notifier: notifier,
		now:      time.Now,
		window:   7,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one scan. GUEST accounts are excluded unconditionally: they
// cannot self-service a password change, so warning them is pointless.
// Disabled, locked, expiry-less and email-less accounts are skipped without
// error.
func (s *Scanner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	defer func() {
		obs.LifecycleScanDuration.Observe(time.Since(start).Seconds())
	}()

	accounts, err := s.dir.ListWithExpiry(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("lifecycle scan: %w", err)
	}

	today := s.now()
	var sum Summary
	for _, acct := range accounts {
		sum.Scanned++
		if acct.RoleName == "GUEST" || !acct.Enabled || acct.Locked || acct.Email == "" || acct.ExpiresAt == nil {
			sum.Skipped++
			continue
		}
		switch State(today, *acct.ExpiresAt, s.window) {
		case StatusExpiringSoon:
			n := DaysRemaining(today, *acct.ExpiresAt)
			subject, body := warningMessage(n)
			if err := s.notifier.Send(ctx, acct.Email, subject, body); err != nil {
				return sum, fmt.Errorf("lifecycle scan: notify %s: %w", acct.Username, err)
			}
			obs.LifecycleNotices.WithLabelValues("warning").Inc()
			sum.Warned++
		case StatusExpiredNotice:
			err := s.notifier.Send(ctx, acct.Email,
				"Your Tempora password has expired",
				"Your password has expired and sign-in is blocked. Reset it now to regain access.")
			if err != nil {
				return sum, fmt.Errorf("lifecycle scan: notify %s: %w", acct.Username, err)
			}
			obs.LifecycleNotices.WithLabelValues("expired").Inc()
			sum.ExpiredNotices++
		default:
			sum.Skipped++
		}
	}
	return sum, nil
}

// warningMessage keys the urgency wording to the remaining days.
func warningMessage(days int) (subject, body string) {
	switch {
	case days == 1:
		return "Your Tempora password expires tomorrow",
			"Your password expires tomorrow. Change it today to avoid losing access."
	case days <= 3:
		return fmt.Sprintf("Your Tempora password expires in %d days", days),
			fmt.Sprintf("Your password expires in %d days. Please change it soon.", days)
	default:
		return fmt.Sprintf("Your Tempora password expires in %d days", days),
			fmt.Sprintf("Your password expires in %d days. Consider changing it at your convenience.", days)
	}
}
