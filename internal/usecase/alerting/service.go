// Package alerting evaluates threshold alert rules against metric windows.
package alerting

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ArashiWander/argus/internal/entity"
)

// WindowStore provides read access to recent metric samples.
type WindowStore interface {
	Snapshot(metric, service string, lookback time.Duration) []entity.MetricSample
	Services(metric string) []string
}

// AlertCreator records rule breaches. The lifecycle manager behind it
// guarantees at most one open alert per rule.
type AlertCreator interface {
	CreateOrUpdateForRule(ctx context.Context, rule *entity.AlertRule, currentValue float64) (*entity.Alert, bool)
}

// SweepResult summarizes one evaluation pass over all enabled rules.
type SweepResult struct {
	RulesEvaluated int `json:"rules_evaluated"`
	Breaches       int `json:"breaches"`
	AlertsCreated  int `json:"alerts_created"`
}

// Service owns the alert rule registry and the periodic evaluation loop.
type Service struct {
	store   WindowStore
	creator AlertCreator
	logger  *slog.Logger

	mu    sync.RWMutex
	rules map[uuid.UUID]*entity.AlertRule

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewService creates an alerting service.
func NewService(store WindowStore, creator AlertCreator, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		creator: creator,
		logger:  logger,
		rules:   make(map[uuid.UUID]*entity.AlertRule),
	}
}

// CreateRule registers a new alert rule.
func (s *Service) CreateRule(rule *entity.AlertRule) (*entity.AlertRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := *rule
	stored.ID = uuid.New()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.mu.Lock()
	s.rules[stored.ID] = &stored
	s.mu.Unlock()

	out := stored
	return &out, nil
}

// UpdateRule replaces the mutable fields of an existing rule. Disabling a
// rule stops future evaluations; alerts it already produced keep their state.
func (s *Service) UpdateRule(id uuid.UUID, rule *entity.AlertRule) (*entity.AlertRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rules[id]
	if !ok {
		return nil, entity.ErrNotFound
	}

	updated := *rule
	updated.ID = id
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	s.rules[id] = &updated

	out := updated
	return &out, nil
}

// GetRule returns the rule with the given id.
func (s *Service) GetRule(id uuid.UUID) (*entity.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	out := *rule
	return &out, nil
}

// ListRules returns a copy of all registered rules.
func (s *Service) ListRules() []*entity.AlertRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.AlertRule, 0, len(s.rules))
	for _, rule := range s.rules {
		r := *rule
		out = append(out, &r)
	}
	return out
}

// DeleteRule removes a rule. Alerts it produced remain.
func (s *Service) DeleteRule(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return entity.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// RunEvaluation evaluates every enabled rule once against the current
// windows.
func (s *Service) RunEvaluation(ctx context.Context) *SweepResult {
	s.mu.RLock()
	enabled := make([]*entity.AlertRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.Enabled {
			r := *rule
			enabled = append(enabled, &r)
		}
	}
	s.mu.RUnlock()

	result := &SweepResult{RulesEvaluated: len(enabled)}
	for _, rule := range enabled {
		breached, value := s.evaluateRule(rule)
		if !breached {
			continue
		}
		result.Breaches++
		if _, created := s.creator.CreateOrUpdateForRule(ctx, rule, value); created {
			result.AlertsCreated++
		}
	}
	return result
}

// evaluateRule reports whether the rule's condition held across its full
// duration for any matching series, and the breaching series' latest value.
func (s *Service) evaluateRule(rule *entity.AlertRule) (bool, float64) {
	services := []string{rule.Service}
	if rule.Service == "" {
		services = s.store.Services(rule.MetricName)
	}

	for _, svc := range services {
		samples := s.store.Snapshot(rule.MetricName, svc, rule.Duration())
		if breached, value := sustainedBreach(rule, samples); breached {
			return true, value
		}
	}
	return false, 0
}

// sustainedBreach requires every sample in the window to satisfy the
// condition and the samples to span the rule duration, with one minute of
// slack for scrape jitter. A momentary spike or a sparse window never fires.
func sustainedBreach(rule *entity.AlertRule, samples []entity.MetricSample) (bool, float64) {
	if len(samples) == 0 {
		return false, 0
	}

	for _, sample := range samples {
		if !entity.CompareCondition(rule.Condition, sample.Value, rule.Threshold) {
			return false, 0
		}
	}

	coverage := samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)
	if coverage < rule.Duration()-time.Minute {
		return false, 0
	}
	return true, samples[len(samples)-1].Value
}

// Start launches the periodic evaluation loop. No-op if already running.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(ctx, interval)

	s.logger.Info("alert evaluator started", "interval", interval.String())
}

// Stop halts the evaluation loop.
func (s *Service) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
	s.running = false

	s.logger.Info("alert evaluator stopped")
}

func (s *Service) loop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res := s.RunEvaluation(ctx)
			if res.AlertsCreated > 0 {
				s.logger.Info("alert evaluation finished",
					"rules", res.RulesEvaluated,
					"breaches", res.Breaches,
					"alerts_created", res.AlertsCreated)
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
