package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotify_NoopWithoutWebhook(t *testing.T) {
	n := &Notifier{}
	err := n.Notify(context.Background(), EventTaskBlocked, "acme", "aaaaaaaa", "exit code 1")
	assert.NoError(t, err)
}

func TestNotify_PostsFormattedMessage(t *testing.T) {
	var captured *slack.WebhookMessage
	n := &Notifier{
		WebhookURL: "https://hooks.slack.test/x",
		PostWebhookFunc: func(url string, msg *slack.WebhookMessage) error {
			captured = msg
			return nil
		},
	}

	err := n.Notify(context.Background(), EventTaskBlocked, "acme", "aaaaaaaa", "exit code 1")
	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Contains(t, captured.Text, "acme")
	assert.Contains(t, captured.Text, "aaaaaaaa")
	assert.Contains(t, captured.Text, "exit code 1")
}

func TestNotify_WrapsPostError(t *testing.T) {
	n := &Notifier{
		WebhookURL: "https://hooks.slack.test/x",
		PostWebhookFunc: func(url string, msg *slack.WebhookMessage) error {
			return errors.New("network down")
		},
	}

	err := n.Notify(context.Background(), EventRunnerFatal, "acme", "", "disk full")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "network down")
}

func TestFormatMessage_Cancelled(t *testing.T) {
	msg := formatMessage(EventTaskCancelled, "acme", "bbbbbbbb", "")
	assert.Contains(t, msg, "cancelled")
	assert.Contains(t, msg, "bbbbbbbb")
}
