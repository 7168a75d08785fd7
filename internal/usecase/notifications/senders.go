package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/ArashiWander/argus/internal/entity"
)

var (
	errRateLimited = errors.New("channel rate limit exceeded")
	errNoSender    = errors.New("no sender for channel type")
)

// emailSender delivers over SMTP with optional plain auth.
type emailSender struct{}

func (emailSender) Send(ctx context.Context, channel *entity.NotificationChannel, n *entity.Notification) error {
	cfg := channel.Email
	if cfg == nil {
		return errors.New("email config missing")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	msg := buildEmail(cfg, n)

	// net/smtp has no context support; bound the dial through the context.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, cfg.FromEmail, cfg.Recipients, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildEmail(cfg *entity.EmailChannelConfig, n *entity.Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", cfg.FromEmail)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(cfg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", n.Title)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(n.Message)
	fmt.Fprintf(&b, "\r\n\r\nSeverity: %s\r\nAt: %s\r\n",
		n.Severity, n.CreatedAt.Format(time.RFC3339))
	return []byte(b.String())
}

// webhookSender posts the notification as JSON to a configured URL.
type webhookSender struct {
	client *http.Client
}

func newWebhookSender(timeout time.Duration) *webhookSender {
	return &webhookSender{client: &http.Client{Timeout: timeout}}
}

func (s *webhookSender) Send(ctx context.Context, channel *entity.NotificationChannel, n *entity.Notification) error {
	cfg := channel.Webhook
	if cfg == nil {
		return errors.New("webhook config missing")
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// slackSender posts a formatted message to a Slack incoming webhook.
type slackSender struct {
	client *http.Client
}

func newSlackSender(timeout time.Duration) *slackSender {
	return &slackSender{client: &http.Client{Timeout: timeout}}
}

func (s *slackSender) Send(ctx context.Context, channel *entity.NotificationChannel, n *entity.Notification) error {
	cfg := channel.Slack
	if cfg == nil {
		return errors.New("slack config missing")
	}

	payload := map[string]string{
		"text": fmt.Sprintf("*%s*\n%s", n.Title, n.Message),
	}
	if cfg.Channel != "" {
		payload["channel"] = cfg.Channel
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned %s", resp.Status)
	}
	return nil
}
