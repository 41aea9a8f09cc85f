// Package notify sends runner lifecycle events (a task went blocked or
// cancelled, the runner hit a fatal error) to a Slack webhook. Unlike the
// teacher's multi-provider Manager, the runner has exactly one audience —
// whoever is watching the dispatch channel — so this package is
// deliberately narrower: one provider, no threads, no reactions.
package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// EventKind identifies the runner lifecycle events worth notifying about.
type EventKind string

const (
	EventTaskBlocked   EventKind = "task_blocked"
	EventTaskCancelled EventKind = "task_cancelled"
	EventRunnerFatal   EventKind = "runner_fatal"
)

// Notifier sends a Slack message for a runner event. WebhookURL == ""
// disables notifications (PostWebhookFunc is never called).
type Notifier struct {
	WebhookURL string

	// PostWebhookFunc is swappable in tests; defaults to slack.PostWebhook.
	PostWebhookFunc func(url string, msg *slack.WebhookMessage) error
}

// NewNotifier returns a Notifier posting to webhookURL via the real Slack
// API client.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{WebhookURL: webhookURL, PostWebhookFunc: slack.PostWebhook}
}

// Notify posts a message for the given event. It is a no-op (returns nil)
// when no webhook is configured, so callers never need to branch on
// whether notifications are enabled.
func (n *Notifier) Notify(ctx context.Context, kind EventKind, project, taskID, detail string) error {
	if n.WebhookURL == "" {
		return nil
	}
	if n.PostWebhookFunc == nil {
		n.PostWebhookFunc = slack.PostWebhook
	}

	text := formatMessage(kind, project, taskID, detail)
	msg := &slack.WebhookMessage{Text: text}

	if err := n.PostWebhookFunc(n.WebhookURL, msg); err != nil {
		return fmt.Errorf("slack notify %s: %w", kind, err)
	}
	return nil
}

func formatMessage(kind EventKind, project, taskID, detail string) string {
	switch kind {
	case EventTaskBlocked:
		return fmt.Sprintf(":warning: [%s] task %s blocked: %s", project, taskID, detail)
	case EventTaskCancelled:
		return fmt.Sprintf(":octagonal_sign: [%s] task %s cancelled", project, taskID)
	case EventRunnerFatal:
		return fmt.Sprintf(":rotating_light: runner fatal error in %s: %s", project, detail)
	default:
		return fmt.Sprintf("[%s] %s: %s", project, taskID, detail)
	}
}
