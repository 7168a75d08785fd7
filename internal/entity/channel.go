package entity

import (
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Notification channel types
const (
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
	ChannelSlack   = "slack"
)

// EmailChannelConfig configures SMTP delivery for an email channel.
type EmailChannelConfig struct {
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	FromEmail  string   `json:"from_email"`
	Username   string   `json:"username,omitempty"`
	Password   string   `json:"password,omitempty"`
	Recipients []string `json:"recipients"`
}

// WebhookChannelConfig configures an HTTP POST target.
type WebhookChannelConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// SlackChannelConfig configures a Slack incoming webhook.
type SlackChannelConfig struct {
	WebhookURL string `json:"webhook_url"`
	Channel    string `json:"channel,omitempty"`
}

// NotificationChannel is a configured delivery target bound to alert rules.
// Exactly one of the type-specific configs is set, matching Type.
type NotificationChannel struct {
	ID        uuid.UUID             `json:"id"`
	Name      string                `json:"name"`
	Type      string                `json:"type"`
	Enabled   bool                  `json:"enabled"`
	Email     *EmailChannelConfig   `json:"email,omitempty"`
	Webhook   *WebhookChannelConfig `json:"webhook,omitempty"`
	Slack     *SlackChannelConfig   `json:"slack,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Validate checks the channel and its type-specific config.
func (c *NotificationChannel) Validate() error {
	if c.Name == "" {
		return Invalid("name", "required")
	}
	switch c.Type {
	case ChannelEmail:
		if c.Email == nil {
			return Invalid("email", "config required for email channel")
		}
		if c.Email.Host == "" {
			return Invalid("email.host", "required")
		}
		if len(c.Email.Recipients) == 0 {
			return Invalid("email.recipients", "at least one required")
		}
	case ChannelWebhook:
		if c.Webhook == nil {
			return Invalid("webhook", "config required for webhook channel")
		}
		if !validURL(c.Webhook.URL) {
			return Invalid("webhook.url", "must be a valid http(s) URL")
		}
	case ChannelSlack:
		if c.Slack == nil {
			return Invalid("slack", "config required for slack channel")
		}
		if !validURL(c.Slack.WebhookURL) {
			return Invalid("slack.webhook_url", "must be a valid http(s) URL")
		}
	default:
		return Invalid("type", "must be one of email, webhook, slack")
	}
	return nil
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Notification is the payload fanned out to channels when an alert or
// security alert is created.
type Notification struct {
	Kind       string      `json:"kind"` // alert, security_alert, anomaly
	RefID      uuid.UUID   `json:"ref_id"`
	Title      string      `json:"title"`
	Message    string      `json:"message"`
	Severity   string      `json:"severity"`
	ChannelIDs []uuid.UUID `json:"-"` // empty = all enabled channels
	CreatedAt  time.Time   `json:"created_at"`
}
