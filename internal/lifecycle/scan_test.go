package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type sentMessage struct {
	recipient string
	subject   string
	body      string
}

type recordingNotifier struct {
	sent []sentMessage
	fail bool
}

func (n *recordingNotifier) Send(_ context.Context, recipient, subject, body string) error {
	if n.fail {
		return errors.New("smtp unavailable")
	}
	n.sent = append(n.sent, sentMessage{recipient: recipient, subject: subject, body: body})
	return nil
}

type staticDirectory struct {
	accounts []Account
	err      error
}

func (d *staticDirectory) ListWithExpiry(context.Context) ([]Account, error) {
	return d.accounts, d.err
}

func days(n int) *time.Time {
	t := scanDay.AddDate(0, 0, n)
	return &t
}

func TestScanWarnsInsideWindow(t *testing.T) {
	notifier := &recordingNotifier{}
	dir := &staticDirectory{accounts: []Account{
		{Username: "alice", Email: "alice@example.com", RoleName: "USER", Enabled: true, ExpiresAt: days(5)},
		{Username: "bob", Email: "bob@example.com", RoleName: "USER", Enabled: true, ExpiresAt: days(30)},
	}}
	scanner := NewScanner(dir, notifier, WithClock(func() time.Time { return scanDay }))

	sum, err := scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Scanned != 2 || sum.Warned != 1 || sum.ExpiredNotices != 0 || sum.Skipped != 1 {
		t.Fatalf("summary: %+v", sum)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("sent = %d messages", len(notifier.sent))
	}
	msg := notifier.sent[0]
	if msg.recipient != "alice@example.com" {
		t.Fatalf("recipient %q", msg.recipient)
	}
	if !strings.Contains(msg.subject, "5 days") {
		t.Fatalf("subject %q does not mention the remaining days", msg.subject)
	}
}

func TestScanWarnsDailyWhileExpiredNoticeFiresOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	expiresAt := scanDay.AddDate(0, 0, 2)
	dir := &staticDirectory{accounts: []Account{
		{Username: "alice", Email: "alice@example.com", RoleName: "USER", Enabled: true, ExpiresAt: &expiresAt},
	}}

	var today time.Time
	scanner := NewScanner(dir, notifier, WithClock(func() time.Time { return today }))

	// Walk day by day across the expiry date: warnings on day-2 and day-1,
	// silence on the expiry day, the single expired notice the day after,
	// silence forever after.
	var expiredNotices, warnings int
	for d := 0; d < 10; d++ {
		today = scanDay.AddDate(0, 0, d)
		sum, err := scanner.Run(context.Background())
		if err != nil {
			t.Fatalf("day %d: %v", d, err)
		}
		warnings += sum.Warned
		expiredNotices += sum.ExpiredNotices
	}
	if warnings != 2 {
		t.Fatalf("warnings = %d, want 2", warnings)
	}
	if expiredNotices != 1 {
		t.Fatalf("expired notices = %d, want exactly 1", expiredNotices)
	}
}

func TestScanTomorrowWarningWording(t *testing.T) {
	notifier := &recordingNotifier{}
	dir := &staticDirectory{accounts: []Account{
		{Username: "alice", Email: "alice@example.com", RoleName: "USER", Enabled: true, ExpiresAt: days(1)},
	}}
	scanner := NewScanner(dir, notifier, WithClock(func() time.Time { return scanDay }))

	if _, err := scanner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(notifier.sent) != 1 || !strings.Contains(notifier.sent[0].subject, "tomorrow") {
		t.Fatalf("sent: %+v", notifier.sent)
	}
}

func TestScanSkipsIneligibleAccounts(t *testing.T) {
	notifier := &recordingNotifier{}
	dir := &staticDirectory{accounts: []Account{
		{Username: "guest", Email: "guest@example.com", RoleName: "GUEST", Enabled: true, ExpiresAt: days(3)},
		{Username: "disabled", Email: "d@example.com", RoleName: "USER", Enabled: false, ExpiresAt: days(3)},
		{Username: "locked", Email: "l@example.com", RoleName: "USER", Enabled: true, Locked: true, ExpiresAt: days(3)},
		{Username: "no-email", RoleName: "USER", Enabled: true, ExpiresAt: days(3)},
		{Username: "no-expiry", Email: "n@example.com", RoleName: "USER", Enabled: true},
	}}
	scanner := NewScanner(dir, notifier, WithClock(func() time.Time { return scanDay }))

	sum, err := scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Scanned != 5 || sum.Skipped != 5 || sum.Warned != 0 || sum.ExpiredNotices != 0 {
		t.Fatalf("summary: %+v", sum)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("expected no messages, got %+v", notifier.sent)
	}
}

func TestScanPropagatesNotifierFailure(t *testing.T) {
	notifier := &recordingNotifier{fail: true}
	dir := &staticDirectory{accounts: []Account{
		{Username: "alice", Email: "alice@example.com", RoleName: "USER", Enabled: true, ExpiresAt: days(3)},
	}}
	scanner := NewScanner(dir, notifier, WithClock(func() time.Time { return scanDay }))

	if _, err := scanner.Run(context.Background()); err == nil {
		t.Fatal("expected notifier failure to surface")
	}
}

func TestScanPropagatesDirectoryFailure(t *testing.T) {
	scanner := NewScanner(&staticDirectory{err: errors.New("db down")}, &recordingNotifier{},
		WithClock(func() time.Time { return scanDay }))
	if _, err := scanner.Run(context.Background()); err == nil {
		t.Fatal("expected directory failure to surface")
	}
}
