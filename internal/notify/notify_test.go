package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigeonpool/pigeonpool-sync-server/internal/config"
)

func TestNewSender(t *testing.T) {
	t.Parallel()

	sender, err := NewSender(config.NotificationsConfig{})
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, sender)

	sender, err = NewSender(config.NotificationsConfig{WebhookURL: "https://hooks.example.com/send"})
	require.NoError(t, err)
	assert.IsType(t, &WebhookSender{}, sender)
}

func TestWebhookSenderSend(t *testing.T) {
	t.Parallel()

	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, 5*time.Second)
	msg := InterimResults(6)
	err := sender.Send(context.Background(), []string{"alice@example.com", "bob@example.com"}, msg)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, got.Recipients)
	assert.Equal(t, "Interim Results for week 6", got.Subject)
	assert.Contains(t, got.Text, "Week 6 Interim Results")
	assert.Contains(t, got.HTML, "<b>ALL Pigeons</b>")
}

func TestWebhookSenderSkipsEmptyRecipients(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, 5*time.Second)
	require.NoError(t, sender.Send(context.Background(), nil, PickReminder()))
	assert.Equal(t, int32(0), calls.Load())
}

func TestWebhookSenderErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, 5*time.Second)
	err := sender.Send(context.Background(), []string{"alice@example.com"}, PickReminder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestCompose(t *testing.T) {
	t.Parallel()

	final := FinalResults(12)
	assert.Equal(t, "Week 12 Results", final.Subject)
	assert.Contains(t, final.Text, "Tuesday midnight deadline")

	reminder := PickReminder()
	assert.Contains(t, reminder.Subject, "Enter Your Picks")
	assert.NotContains(t, reminder.Text, "%!")
}
