// Package notifications manages delivery channels and fans alert
// notifications out to them.
package notifications

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ArashiWander/argus/internal/entity"
)

// Service owns the notification channel registry.
type Service struct {
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[uuid.UUID]*entity.NotificationChannel
}

// NewService creates a channel registry.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		logger:   logger,
		channels: make(map[uuid.UUID]*entity.NotificationChannel),
	}
}

// CreateChannel registers a new delivery channel.
func (s *Service) CreateChannel(channel *entity.NotificationChannel) (*entity.NotificationChannel, error) {
	if err := channel.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := *channel
	stored.ID = uuid.New()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.mu.Lock()
	s.channels[stored.ID] = &stored
	s.mu.Unlock()

	out := stored
	return &out, nil
}

// UpdateChannel replaces an existing channel.
func (s *Service) UpdateChannel(id uuid.UUID, channel *entity.NotificationChannel) (*entity.NotificationChannel, error) {
	if err := channel.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.channels[id]
	if !ok {
		return nil, entity.ErrNotFound
	}

	updated := *channel
	updated.ID = id
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	s.channels[id] = &updated

	out := updated
	return &out, nil
}

// GetChannel returns the channel with the given id.
func (s *Service) GetChannel(id uuid.UUID) (*entity.NotificationChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, ok := s.channels[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	out := *channel
	return &out, nil
}

// ListChannels returns a copy of all registered channels.
func (s *Service) ListChannels() []*entity.NotificationChannel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.NotificationChannel, 0, len(s.channels))
	for _, channel := range s.channels {
		c := *channel
		out = append(out, &c)
	}
	return out
}

// DeleteChannel removes a channel. Rules referencing it simply stop
// delivering there.
func (s *Service) DeleteChannel(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[id]; !ok {
		return entity.ErrNotFound
	}
	delete(s.channels, id)
	return nil
}

// Resolve returns the enabled channels to deliver to. An empty id list means
// every enabled channel; unknown and disabled ids are silently dropped.
func (s *Service) Resolve(ids []uuid.UUID) []*entity.NotificationChannel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.NotificationChannel
	if len(ids) == 0 {
		for _, channel := range s.channels {
			if channel.Enabled {
				c := *channel
				out = append(out, &c)
			}
		}
		return out
	}

	for _, id := range ids {
		channel, ok := s.channels[id]
		if !ok || !channel.Enabled {
			continue
		}
		c := *channel
		out = append(out, &c)
	}
	return out
}
