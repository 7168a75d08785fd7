package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ArashiWander/argus/internal/entity"
)

// DefaultSendTimeout bounds one channel delivery attempt.
const DefaultSendTimeout = 10 * time.Second

// Per-channel rate limit guarding against notification storms.
const (
	channelRateInterval = time.Second
	channelRateBurst    = 5
)

// Sender delivers one notification to one channel.
type Sender interface {
	Send(ctx context.Context, channel *entity.NotificationChannel, n *entity.Notification) error
}

// DeliveryResult reports the outcome of one channel delivery.
type DeliveryResult struct {
	ChannelID   uuid.UUID `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	ChannelType string    `json:"channel_type"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
}

// Dispatcher fans notifications out to channels concurrently. Each channel
// gets its own goroutine and timeout, so one slow or failing channel never
// delays or blocks the others, and the whole fan-out lasts at most the
// per-channel timeout rather than the sum.
type Dispatcher struct {
	base     context.Context
	channels *Service
	logger   *slog.Logger
	timeout  time.Duration
	senders  map[string]Sender

	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
}

// NewDispatcher creates a dispatcher with the default senders for each
// channel type. base is the process context; cancelling it aborts in-flight
// deliveries on shutdown. A non-positive timeout falls back to
// DefaultSendTimeout.
func NewDispatcher(base context.Context, channels *Service, logger *slog.Logger, timeout time.Duration) *Dispatcher {
	if base == nil {
		base = context.Background()
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Dispatcher{
		base:     base,
		channels: channels,
		logger:   logger,
		timeout:  timeout,
		senders: map[string]Sender{
			entity.ChannelEmail:   &emailSender{},
			entity.ChannelWebhook: newWebhookSender(timeout),
			entity.ChannelSlack:   newSlackSender(timeout),
		},
		limiters: make(map[uuid.UUID]*rate.Limiter),
	}
}

// SetSender replaces the sender for a channel type.
func (d *Dispatcher) SetSender(channelType string, sender Sender) {
	d.senders[channelType] = sender
}

// Notify delivers the notification in the background. Dispatch never blocks
// the caller and never reports failure upward; failed deliveries are logged.
func (d *Dispatcher) Notify(_ context.Context, n *entity.Notification) {
	// Detached from the caller so an alert transition never waits on, nor is
	// cancelled with, its notification fan-out. The process context still
	// bounds delivery: shutdown aborts anything in flight.
	go d.Dispatch(d.base, n)
}

// Dispatch fans the notification out to its channels and waits for every
// delivery to settle. Used directly by the channel test endpoint.
func (d *Dispatcher) Dispatch(ctx context.Context, n *entity.Notification) []DeliveryResult {
	targets := d.channels.Resolve(n.ChannelIDs)
	if len(targets) == 0 {
		return nil
	}

	results := make([]DeliveryResult, len(targets))
	var wg sync.WaitGroup

	for i, channel := range targets {
		wg.Add(1)
		go func(i int, channel *entity.NotificationChannel) {
			defer wg.Done()
			results[i] = d.deliver(ctx, channel, n)
		}(i, channel)
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) deliver(ctx context.Context, channel *entity.NotificationChannel, n *entity.Notification) DeliveryResult {
	result := DeliveryResult{
		ChannelID:   channel.ID,
		ChannelName: channel.Name,
		ChannelType: channel.Type,
	}

	fail := func(err error) DeliveryResult {
		derr := &entity.DispatchError{Channel: channel.Name, Err: err}
		result.Error = derr.Error()
		d.logger.Warn("notification delivery failed",
			"channel", channel.Name,
			"type", channel.Type,
			"kind", n.Kind,
			"error", err)
		return result
	}

	if !d.limiter(channel.ID).Allow() {
		return fail(errRateLimited)
	}

	sender, ok := d.senders[channel.Type]
	if !ok {
		return fail(errNoSender)
	}

	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := sender.Send(sctx, channel, n); err != nil {
		return fail(err)
	}

	result.OK = true
	d.logger.Debug("notification delivered",
		"channel", channel.Name,
		"type", channel.Type,
		"kind", n.Kind)
	return result
}

func (d *Dispatcher) limiter(id uuid.UUID) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Every(channelRateInterval), channelRateBurst)
		d.limiters[id] = l
	}
	return l
}
