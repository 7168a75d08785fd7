// Package threats correlates security events against frequency and pattern
// rules and raises risk-scored security alerts.
package threats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ArashiWander/argus/internal/entity"
)

// DefaultRetention bounds how long ingested events stay available for
// correlation.
const DefaultRetention = 24 * time.Hour

// AlertSink receives correlator findings and answers cool-down queries.
type AlertSink interface {
	CreateSecurityAlert(ctx context.Context, alert *entity.SecurityAlert) error
	LastSecurityAlertFor(ruleID uuid.UUID, groupKey string) (time.Time, bool)
}

// SweepResult summarizes one correlation pass.
type SweepResult struct {
	RulesEvaluated int `json:"rules_evaluated"`
	EventsScanned  int `json:"events_scanned"`
	AlertsCreated  int `json:"alerts_created"`
	Suppressed     int `json:"suppressed"`
}

// Service owns the threat rule registry and the event buffer.
type Service struct {
	sink      AlertSink
	logger    *slog.Logger
	retention time.Duration

	mu     sync.RWMutex
	rules  map[uuid.UUID]*entity.ThreatRule
	events []entity.SecurityEvent

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewService creates a threat correlation service. A non-positive retention
// falls back to DefaultRetention.
func NewService(sink AlertSink, logger *slog.Logger, retention time.Duration) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Service{
		sink:      sink,
		logger:    logger,
		retention: retention,
		rules:     make(map[uuid.UUID]*entity.ThreatRule),
	}
}

// IngestEvent validates and buffers a security event for correlation.
func (s *Service) IngestEvent(event *entity.SecurityEvent) (*entity.SecurityEvent, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	stored := *event
	stored.ID = uuid.New()
	stored.IngestedAt = time.Now().UTC()

	s.mu.Lock()
	s.events = append(s.events, stored)
	s.pruneLocked(stored.Timestamp)
	s.mu.Unlock()

	out := stored
	return &out, nil
}

// pruneLocked drops events older than the retention window, measured from the
// newest event timestamp. Caller holds s.mu.
func (s *Service) pruneLocked(newest time.Time) {
	cutoff := newest.Add(-s.retention)
	drop := 0
	for drop < len(s.events) && s.events[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		s.events = append(s.events[:0], s.events[drop:]...)
	}
}

// RecentEvents returns the newest buffered events in ingestion order.
func (s *Service) RecentEvents(limit int) []entity.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.events)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]entity.SecurityEvent, n)
	copy(out, s.events[len(s.events)-n:])
	return out
}

// CreateRule registers a new threat rule.
func (s *Service) CreateRule(rule *entity.ThreatRule) (*entity.ThreatRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	stored := *rule
	stored.ID = uuid.New()

	s.mu.Lock()
	s.rules[stored.ID] = &stored
	s.mu.Unlock()

	out := stored
	return &out, nil
}

// UpdateRule replaces an existing rule.
func (s *Service) UpdateRule(id uuid.UUID, rule *entity.ThreatRule) (*entity.ThreatRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return nil, entity.ErrNotFound
	}

	updated := *rule
	updated.ID = id
	s.rules[id] = &updated

	out := updated
	return &out, nil
}

// GetRule returns the rule with the given id.
func (s *Service) GetRule(id uuid.UUID) (*entity.ThreatRule, error) {
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
func (s *Service) ListRules() []*entity.ThreatRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.ThreatRule, 0, len(s.rules))
	for _, rule := range s.rules {
		r := *rule
		out = append(out, &r)
	}
	return out
}

// DeleteRule removes a rule. Security alerts it produced remain.
func (s *Service) DeleteRule(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return entity.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// RunCorrelation evaluates every enabled rule against the buffered events.
// Alerts deduplicate per (rule, group key): once a group alerted, further
// matches inside the rule window are suppressed.
func (s *Service) RunCorrelation(ctx context.Context) *SweepResult {
	s.mu.RLock()
	enabled := make([]*entity.ThreatRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.Enabled {
			r := *rule
			enabled = append(enabled, &r)
		}
	}
	events := make([]entity.SecurityEvent, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	now := time.Now().UTC()
	result := &SweepResult{RulesEvaluated: len(enabled), EventsScanned: len(events)}

	for _, rule := range enabled {
		switch rule.RuleType {
		case entity.ThreatRuleFrequency:
			s.correlateFrequency(ctx, rule, events, now, result)
		case entity.ThreatRulePattern:
			s.correlatePattern(ctx, rule, events, now, result)
		}
	}
	return result
}

func eventMatches(rule *entity.ThreatRule, e *entity.SecurityEvent) bool {
	if rule.EventType != "" && e.EventType != rule.EventType {
		return false
	}
	if rule.Outcome != "" && e.Outcome != rule.Outcome {
		return false
	}
	return true
}

func groupKeyOf(rule *entity.ThreatRule, e *entity.SecurityEvent) string {
	switch rule.GroupBy {
	case entity.GroupByUsername:
		return e.Username
	case entity.GroupBySourceIP:
		return e.SourceIP
	}
	if e.SourceIP != "" {
		return e.SourceIP
	}
	return e.Username
}

func (s *Service) correlateFrequency(ctx context.Context, rule *entity.ThreatRule, events []entity.SecurityEvent, now time.Time, result *SweepResult) {
	windowStart := now.Add(-rule.Window())

	type group struct {
		ids     []uuid.UUID
		outcome string
	}
	groups := make(map[string]*group)

	for i := range events {
		e := &events[i]
		if e.Timestamp.Before(windowStart) || !eventMatches(rule, e) {
			continue
		}
		key := groupKeyOf(rule, e)
		if key == "" {
			continue
		}
		g := groups[key]
		if g == nil {
			g = &group{}
			groups[key] = g
		}
		g.ids = append(g.ids, e.ID)
		g.outcome = e.Outcome
	}

	for key, g := range groups {
		if len(g.ids) < rule.Threshold {
			continue
		}
		if s.inCooldown(rule, key, now) {
			result.Suppressed++
			continue
		}

		outcome := rule.Outcome
		if outcome == "" {
			outcome = g.outcome
		}

		alert := &entity.SecurityAlert{
			RuleID:     rule.ID,
			RuleName:   rule.Name,
			ThreatType: threatTypeOf(rule),
			Severity:   rule.Severity,
			Description: fmt.Sprintf("%d %s events for %s=%s within %dm",
				len(g.ids), threatTypeOf(rule), rule.GroupBy, key, rule.WindowMinutes),
			RiskScore:       entity.ComputeRiskScore(rule.Severity, outcome, len(g.ids), rule.Threshold),
			GroupKey:        key,
			RelatedEventIDs: g.ids,
			CreatedAt:       now,
		}
		s.raise(ctx, alert, result)
	}
}

func (s *Service) correlatePattern(ctx context.Context, rule *entity.ThreatRule, events []entity.SecurityEvent, now time.Time, result *SweepResult) {
	windowStart := now.Add(-rule.Window())

	for i := range events {
		e := &events[i]
		if e.Timestamp.Before(windowStart) || !eventMatches(rule, e) {
			continue
		}
		key := groupKeyOf(rule, e)
		if s.inCooldown(rule, key, now) {
			result.Suppressed++
			continue
		}

		alert := &entity.SecurityAlert{
			RuleID:     rule.ID,
			RuleName:   rule.Name,
			ThreatType: threatTypeOf(rule),
			Severity:   rule.Severity,
			Description: fmt.Sprintf("%s event matched (%s, outcome %s)",
				e.EventType, e.Action, e.Outcome),
			RiskScore:       entity.ComputeRiskScore(rule.Severity, e.Outcome, 1, 0),
			GroupKey:        key,
			RelatedEventIDs: []uuid.UUID{e.ID},
			CreatedAt:       now,
		}
		s.raise(ctx, alert, result)
	}
}

func threatTypeOf(rule *entity.ThreatRule) string {
	if rule.EventType != "" {
		return rule.EventType
	}
	return rule.RuleType
}

// inCooldown reports whether (rule, group key) alerted within the rule window
// already.
func (s *Service) inCooldown(rule *entity.ThreatRule, groupKey string, now time.Time) bool {
	last, ok := s.sink.LastSecurityAlertFor(rule.ID, groupKey)
	return ok && now.Sub(last) < rule.Window()
}

func (s *Service) raise(ctx context.Context, alert *entity.SecurityAlert, result *SweepResult) {
	if err := s.sink.CreateSecurityAlert(ctx, alert); err != nil {
		s.logger.Warn("security alert rejected",
			"rule", alert.RuleName,
			"group_key", alert.GroupKey,
			"error", err)
		return
	}
	result.AlertsCreated++
}

// Start launches the periodic correlation loop. No-op if already running.
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

	s.logger.Info("threat correlator started", "interval", interval.String())
}

// Stop halts the correlation loop.
func (s *Service) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
	s.running = false

	s.logger.Info("threat correlator stopped")
}

func (s *Service) loop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res := s.RunCorrelation(ctx)
			if res.AlertsCreated > 0 || res.Suppressed > 0 {
				s.logger.Info("threat correlation finished",
					"rules", res.RulesEvaluated,
					"events", res.EventsScanned,
					"alerts_created", res.AlertsCreated,
					"suppressed", res.Suppressed)
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
