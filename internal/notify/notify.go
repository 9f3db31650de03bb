package notify

import (
	"context"

	"tempora.dev/internal/obs"
)

// LogNotifier writes notifications to the structured log instead of sending
// mail. The production transport is wired in by the deployment; this adapter
// keeps local runs and the lifecycle scan observable without SMTP.
type LogNotifier struct{}

// NewLogNotifier constructs the adapter.
func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

// Send records the notification as a JSON log line.
func (n *LogNotifier) Send(_ context.Context, recipient, subject, body string) error {
	obs.LogRequest(map[string]any{
		"type":      "notification",
		"recipient": recipient,
		"subject":   subject,
		"body":      body,
	})
	return nil
}
