package notifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArashiWander/argus/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func webhookChannel(name, url string) *entity.NotificationChannel {
	return &entity.NotificationChannel{
		Name:    name,
		Type:    entity.ChannelWebhook,
		Enabled: true,
		Webhook: &entity.WebhookChannelConfig{URL: url},
	}
}

func testNotification() *entity.Notification {
	return &entity.Notification{
		Kind:      "alert",
		RefID:     uuid.New(),
		Title:     "[high] High CPU",
		Message:   "cpu_usage on api is 95.00 (threshold 90.00)",
		Severity:  entity.SeverityHigh,
		CreatedAt: time.Now().UTC(),
	}
}

// fakeSender fails or stalls per channel name.
type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	fail  map[string]error
	delay map[string]time.Duration
}

func (f *fakeSender) Send(ctx context.Context, channel *entity.NotificationChannel, _ *entity.Notification) error {
	if d, ok := f.delay[channel.Name]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err, ok := f.fail[channel.Name]; ok {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, channel.Name)
	f.mu.Unlock()
	return nil
}

func TestChannelCRUD(t *testing.T) {
	svc := NewService(testLogger())

	created, err := svc.CreateChannel(webhookChannel("ops", "https://hooks.example.com/ops"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	got, err := svc.GetChannel(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ops", got.Name)

	update := webhookChannel("ops-eu", "https://hooks.example.com/ops-eu")
	updated, err := svc.UpdateChannel(created.ID, update)
	require.NoError(t, err)
	assert.Equal(t, "ops-eu", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	assert.Len(t, svc.ListChannels(), 1)

	require.NoError(t, svc.DeleteChannel(created.ID))
	assert.ErrorIs(t, svc.DeleteChannel(created.ID), entity.ErrNotFound)
}

func TestChannelValidation(t *testing.T) {
	svc := NewService(testLogger())

	tests := []struct {
		name    string
		channel *entity.NotificationChannel
	}{
		{"missing name", webhookChannel("", "https://hooks.example.com")},
		{"bad type", &entity.NotificationChannel{Name: "x", Type: "pager"}},
		{"bad url", webhookChannel("ops", "not-a-url")},
		{"email without recipients", &entity.NotificationChannel{
			Name: "mail", Type: entity.ChannelEmail,
			Email: &entity.EmailChannelConfig{Host: "smtp.example.com", Port: 587, FromEmail: "argus@example.com"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateChannel(tt.channel)
			require.Error(t, err)
			assert.True(t, entity.IsValidation(err))
		})
	}
}

func TestResolve(t *testing.T) {
	svc := NewService(testLogger())

	a, _ := svc.CreateChannel(webhookChannel("a", "https://hooks.example.com/a"))
	b, _ := svc.CreateChannel(webhookChannel("b", "https://hooks.example.com/b"))

	disabled := webhookChannel("c", "https://hooks.example.com/c")
	disabled.Enabled = false
	c, _ := svc.CreateChannel(disabled)

	all := svc.Resolve(nil)
	assert.Len(t, all, 2, "empty id list resolves every enabled channel")

	some := svc.Resolve([]uuid.UUID{a.ID, c.ID, uuid.New()})
	require.Len(t, some, 1, "disabled and unknown ids are dropped")
	assert.Equal(t, a.ID, some[0].ID)

	_ = b
}

func TestDispatchIsolatesFailingChannel(t *testing.T) {
	svc := NewService(testLogger())
	_, err := svc.CreateChannel(webhookChannel("good", "https://hooks.example.com/good"))
	require.NoError(t, err)
	_, err = svc.CreateChannel(webhookChannel("bad", "https://hooks.example.com/bad"))
	require.NoError(t, err)

	sender := &fakeSender{fail: map[string]error{"bad": errors.New("connection refused")}}
	d := NewDispatcher(context.Background(), svc, testLogger(), time.Second)
	d.SetSender(entity.ChannelWebhook, sender)

	results := d.Dispatch(context.Background(), testNotification())
	require.Len(t, results, 2)

	byName := map[string]DeliveryResult{}
	for _, r := range results {
		byName[r.ChannelName] = r
	}
	assert.True(t, byName["good"].OK)
	assert.False(t, byName["bad"].OK)
	assert.Contains(t, byName["bad"].Error, "connection refused")
	assert.Equal(t, []string{"good"}, sender.sent)
}

func TestDispatchTimeoutBoundsSlowChannel(t *testing.T) {
	svc := NewService(testLogger())
	_, err := svc.CreateChannel(webhookChannel("fast", "https://hooks.example.com/fast"))
	require.NoError(t, err)
	_, err = svc.CreateChannel(webhookChannel("slow", "https://hooks.example.com/slow"))
	require.NoError(t, err)

	sender := &fakeSender{delay: map[string]time.Duration{"slow": time.Minute}}
	d := NewDispatcher(context.Background(), svc, testLogger(), 50*time.Millisecond)
	d.SetSender(entity.ChannelWebhook, sender)

	start := time.Now()
	results := d.Dispatch(context.Background(), testNotification())
	elapsed := time.Since(start)

	require.Len(t, results, 2)
	assert.Less(t, elapsed, time.Second, "fan-out waits at most the per-channel timeout, not the sum")

	byName := map[string]DeliveryResult{}
	for _, r := range results {
		byName[r.ChannelName] = r
	}
	assert.True(t, byName["fast"].OK)
	assert.False(t, byName["slow"].OK)
}

func TestDispatchRateLimitsPerChannel(t *testing.T) {
	svc := NewService(testLogger())
	_, err := svc.CreateChannel(webhookChannel("ops", "https://hooks.example.com/ops"))
	require.NoError(t, err)

	sender := &fakeSender{}
	d := NewDispatcher(context.Background(), svc, testLogger(), time.Second)
	d.SetSender(entity.ChannelWebhook, sender)

	ok, limited := 0, 0
	for i := 0; i < channelRateBurst+2; i++ {
		results := d.Dispatch(context.Background(), testNotification())
		require.Len(t, results, 1)
		if results[0].OK {
			ok++
		} else {
			limited++
		}
	}
	assert.Equal(t, channelRateBurst, ok)
	assert.Equal(t, 2, limited)
}

// shutdownSender blocks until its context ends and reports why.
type shutdownSender struct {
	errs chan error
}

func (s *shutdownSender) Send(ctx context.Context, _ *entity.NotificationChannel, _ *entity.Notification) error {
	<-ctx.Done()
	s.errs <- ctx.Err()
	return ctx.Err()
}

func TestNotifyAbortsOnShutdown(t *testing.T) {
	svc := NewService(testLogger())
	_, err := svc.CreateChannel(webhookChannel("ops", "https://hooks.example.com/ops"))
	require.NoError(t, err)

	root, cancel := context.WithCancel(context.Background())
	sender := &shutdownSender{errs: make(chan error, 1)}
	d := NewDispatcher(root, svc, testLogger(), time.Minute)
	d.SetSender(entity.ChannelWebhook, sender)

	// Fire-and-forget delivery stalls in the sender until the process
	// context is cancelled; it must not wait out the minute-long timeout.
	d.Notify(context.Background(), testNotification())
	cancel()

	select {
	case err := <-sender.errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery was not cancelled by the process context")
	}
}

func TestDispatchNoChannels(t *testing.T) {
	svc := NewService(testLogger())
	d := NewDispatcher(context.Background(), svc, testLogger(), time.Second)

	assert.Nil(t, d.Dispatch(context.Background(), testNotification()))
}

func TestWebhookSenderPostsJSON(t *testing.T) {
	var (
		gotContentType string
		gotHeader      string
		gotBody        []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotHeader = r.Header.Get("X-Token")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	channel := webhookChannel("ops", server.URL)
	channel.Webhook.Headers = map[string]string{"X-Token": "s3cret"}

	sender := newWebhookSender(time.Second)
	err := sender.Send(context.Background(), channel, testNotification())
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "s3cret", gotHeader)
	assert.Contains(t, string(gotBody), "High CPU")
}

func TestWebhookSenderRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender := newWebhookSender(time.Second)
	err := sender.Send(context.Background(), webhookChannel("ops", server.URL), testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSlackSenderFormatsMessage(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := &entity.NotificationChannel{
		Name:    "slack-ops",
		Type:    entity.ChannelSlack,
		Enabled: true,
		Slack:   &entity.SlackChannelConfig{WebhookURL: server.URL, Channel: "#alerts"},
	}

	sender := newSlackSender(time.Second)
	require.NoError(t, sender.Send(context.Background(), channel, testNotification()))

	body := string(gotBody)
	assert.Contains(t, body, "High CPU")
	assert.Contains(t, body, "#alerts")
}
