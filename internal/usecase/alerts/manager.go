// Package alerts owns the shared lifecycle of alerts, anomalies and security
// alerts: creation, deduplication, acknowledgement and resolution.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ArashiWander/argus/internal/entity"
)

// Notifier fans an alert notification out to delivery channels. Dispatch is
// best-effort and must not block lifecycle transitions.
type Notifier interface {
	Notify(ctx context.Context, n *entity.Notification)
}

// AuditSink archives lifecycle records to long-term storage. Implementations
// are fire-and-forget; archival failures never affect the in-memory state.
type AuditSink interface {
	ArchiveAlert(ctx context.Context, a *entity.Alert)
	ArchiveAnomaly(ctx context.Context, a *entity.Anomaly)
	ArchiveSecurityAlert(ctx context.Context, a *entity.SecurityAlert)
}

// Broadcaster pushes lifecycle events to live subscribers.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Manager is the single writer for all alert state. All hooks may be nil.
type Manager struct {
	logger      *slog.Logger
	notifier    Notifier
	sink        AuditSink
	broadcaster Broadcaster

	mu         sync.RWMutex
	alerts     map[uuid.UUID]*entity.Alert
	openByRule map[uuid.UUID]uuid.UUID
	anomalies  map[uuid.UUID]*entity.Anomaly
	security   map[uuid.UUID]*entity.SecurityAlert
}

// NewManager creates a lifecycle manager. notifier, sink and broadcaster may
// each be nil when the corresponding integration is disabled.
func NewManager(logger *slog.Logger, notifier Notifier, sink AuditSink, broadcaster Broadcaster) *Manager {
	return &Manager{
		logger:      logger,
		notifier:    notifier,
		sink:        sink,
		broadcaster: broadcaster,
		alerts:      make(map[uuid.UUID]*entity.Alert),
		openByRule:  make(map[uuid.UUID]uuid.UUID),
		anomalies:   make(map[uuid.UUID]*entity.Anomaly),
		security:    make(map[uuid.UUID]*entity.SecurityAlert),
	}
}

// CreateOrUpdateForRule records a rule breach. While an open alert exists for
// the rule its current value is refreshed in place; only a rule with no open
// alert produces a new one. The bool reports whether an alert was created.
func (m *Manager) CreateOrUpdateForRule(ctx context.Context, rule *entity.AlertRule, currentValue float64) (*entity.Alert, bool) {
	m.mu.Lock()

	if id, ok := m.openByRule[rule.ID]; ok {
		existing := m.alerts[id]
		existing.CurrentValue = currentValue
		out := *existing
		m.mu.Unlock()

		m.broadcast("alert_updated", &out)
		return &out, false
	}

	alert := &entity.Alert{
		ID:           uuid.New(),
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		MetricName:   rule.MetricName,
		Service:      rule.Service,
		CurrentValue: currentValue,
		Threshold:    rule.Threshold,
		Severity:     rule.Severity,
		Status:       entity.AlertStatusActive,
		TriggeredAt:  time.Now().UTC(),
	}
	m.alerts[alert.ID] = alert
	m.openByRule[rule.ID] = alert.ID
	out := *alert
	m.mu.Unlock()

	m.logger.Info("alert created",
		"alert_id", out.ID.String(),
		"rule", out.RuleName,
		"metric", out.MetricName,
		"severity", out.Severity,
		"value", out.CurrentValue)

	m.notify(ctx, &entity.Notification{
		Kind:  "alert",
		RefID: out.ID,
		Title: fmt.Sprintf("[%s] %s", out.Severity, out.RuleName),
		Message: fmt.Sprintf("%s on %s is %.2f (threshold %.2f)",
			out.MetricName, serviceOrAll(out.Service), out.CurrentValue, out.Threshold),
		Severity:   out.Severity,
		ChannelIDs: rule.NotificationChannels,
		CreatedAt:  out.TriggeredAt,
	})
	m.archiveAlert(ctx, &out)
	m.broadcast("alert_created", &out)

	return &out, true
}

func serviceOrAll(service string) string {
	if service == "" {
		return "all services"
	}
	return service
}

// AcknowledgeAlert marks an active alert as acknowledged. Acknowledging an
// alert that is not active reports ErrNotFound for the transition and leaves
// the alert unchanged.
func (m *Manager) AcknowledgeAlert(ctx context.Context, id uuid.UUID, by string) (*entity.Alert, error) {
	m.mu.Lock()
	alert, ok := m.alerts[id]
	if !ok || alert.Status != entity.AlertStatusActive {
		m.mu.Unlock()
		return nil, entity.ErrNotFound
	}

	now := time.Now().UTC()
	alert.Status = entity.AlertStatusAcknowledged
	alert.AcknowledgedBy = by
	alert.AcknowledgedAt = &now
	out := *alert
	m.mu.Unlock()

	m.archiveAlert(ctx, &out)
	m.broadcast("alert_updated", &out)
	return &out, nil
}

// ResolveAlert closes an alert. Resolution is terminal: resolving an already
// resolved alert reports ErrNotFound for the transition, and the rule may
// trigger a fresh alert on its next sustained breach.
func (m *Manager) ResolveAlert(ctx context.Context, id uuid.UUID) (*entity.Alert, error) {
	m.mu.Lock()
	alert, ok := m.alerts[id]
	if !ok || alert.Status == entity.AlertStatusResolved {
		m.mu.Unlock()
		return nil, entity.ErrNotFound
	}

	now := time.Now().UTC()
	alert.Status = entity.AlertStatusResolved
	alert.ResolvedAt = &now
	delete(m.openByRule, alert.RuleID)
	out := *alert
	m.mu.Unlock()

	m.archiveAlert(ctx, &out)
	m.broadcast("alert_updated", &out)
	return &out, nil
}

// GetAlert returns one alert by id.
func (m *Manager) GetAlert(id uuid.UUID) (*entity.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alert, ok := m.alerts[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	out := *alert
	return &out, nil
}

// ListAlerts returns alerts matching the filters, newest first, and the total
// match count before the limit was applied.
func (m *Manager) ListAlerts(filters entity.AlertFilters) ([]*entity.Alert, int64) {
	m.mu.RLock()
	matched := make([]*entity.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if !matchAlert(a, filters) {
			continue
		}
		out := *a
		matched = append(matched, &out)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].TriggeredAt.After(matched[j].TriggeredAt)
	})

	total := int64(len(matched))
	if filters.Limit > 0 && len(matched) > filters.Limit {
		matched = matched[:filters.Limit]
	}
	return matched, total
}

func matchAlert(a *entity.Alert, f entity.AlertFilters) bool {
	if f.MetricName != "" && a.MetricName != f.MetricName {
		return false
	}
	if f.Service != "" && a.Service != f.Service {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if !f.StartTime.IsZero() && a.TriggeredAt.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && a.TriggeredAt.After(f.EndTime) {
		return false
	}
	return true
}

// RecordAnomaly stores a detector finding and publishes it.
func (m *Manager) RecordAnomaly(ctx context.Context, anomaly *entity.Anomaly) error {
	if anomaly.DetectedAt.IsZero() {
		anomaly.DetectedAt = time.Now().UTC()
	}
	anomaly.ID = uuid.New()
	anomaly.Status = entity.AnomalyStatusActive

	m.mu.Lock()
	stored := *anomaly
	m.anomalies[stored.ID] = &stored
	m.mu.Unlock()

	m.logger.Info("anomaly recorded",
		"anomaly_id", stored.ID.String(),
		"metric", stored.MetricName,
		"service", stored.Service,
		"algorithm", stored.Algorithm,
		"score", stored.AnomalyScore,
		"severity", stored.Severity)

	if entity.SeverityRank(stored.Severity) >= entity.SeverityRank(entity.SeverityHigh) {
		m.notify(ctx, &entity.Notification{
			Kind:  "anomaly",
			RefID: stored.ID,
			Title: fmt.Sprintf("[%s] anomaly on %s", stored.Severity, stored.MetricName),
			Message: fmt.Sprintf("%s on %s is %.2f, expected %.2f (score %.2f, %s)",
				stored.MetricName, stored.Service, stored.ActualValue, stored.ExpectedValue,
				stored.AnomalyScore, stored.Algorithm),
			Severity:  stored.Severity,
			CreatedAt: stored.DetectedAt,
		})
	}
	m.archiveAnomaly(ctx, &stored)
	m.broadcast("anomaly_detected", &stored)
	return nil
}

// AcknowledgeAnomaly marks an active anomaly as acknowledged. Any other
// starting state reports ErrNotFound for the transition.
func (m *Manager) AcknowledgeAnomaly(ctx context.Context, id uuid.UUID, by string) (*entity.Anomaly, error) {
	m.mu.Lock()
	anomaly, ok := m.anomalies[id]
	if !ok || anomaly.Status != entity.AnomalyStatusActive {
		m.mu.Unlock()
		return nil, entity.ErrNotFound
	}

	now := time.Now().UTC()
	anomaly.Status = entity.AnomalyStatusAcknowledged
	anomaly.AcknowledgedBy = by
	anomaly.AcknowledgedAt = &now
	out := *anomaly
	m.mu.Unlock()

	m.archiveAnomaly(ctx, &out)
	m.broadcast("anomaly_updated", &out)
	return &out, nil
}

// ResolveAnomaly closes an anomaly. Resolution is terminal: resolving twice
// reports ErrNotFound for the transition.
func (m *Manager) ResolveAnomaly(ctx context.Context, id uuid.UUID) (*entity.Anomaly, error) {
	m.mu.Lock()
	anomaly, ok := m.anomalies[id]
	if !ok || anomaly.Status == entity.AnomalyStatusResolved {
		m.mu.Unlock()
		return nil, entity.ErrNotFound
	}

	now := time.Now().UTC()
	anomaly.Status = entity.AnomalyStatusResolved
	anomaly.ResolvedAt = &now
	out := *anomaly
	m.mu.Unlock()

	m.archiveAnomaly(ctx, &out)
	m.broadcast("anomaly_updated", &out)
	return &out, nil
}

// ListAnomalies returns anomalies matching the filters, newest first.
func (m *Manager) ListAnomalies(filters entity.AnomalyFilters) ([]*entity.Anomaly, int64) {
	m.mu.RLock()
	matched := make([]*entity.Anomaly, 0, len(m.anomalies))
	for _, a := range m.anomalies {
		if !matchAnomaly(a, filters) {
			continue
		}
		out := *a
		matched = append(matched, &out)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].DetectedAt.After(matched[j].DetectedAt)
	})

	total := int64(len(matched))
	if filters.Limit > 0 && len(matched) > filters.Limit {
		matched = matched[:filters.Limit]
	}
	return matched, total
}

func matchAnomaly(a *entity.Anomaly, f entity.AnomalyFilters) bool {
	if f.MetricName != "" && a.MetricName != f.MetricName {
		return false
	}
	if f.Service != "" && a.Service != f.Service {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if !f.StartTime.IsZero() && a.DetectedAt.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && a.DetectedAt.After(f.EndTime) {
		return false
	}
	return true
}

// CreateSecurityAlert stores a correlator finding and publishes it. The
// caller handles cool-down deduplication; every alert reaching here is kept.
func (m *Manager) CreateSecurityAlert(ctx context.Context, alert *entity.SecurityAlert) error {
	alert.ID = uuid.New()
	alert.Status = entity.SecurityAlertStatusActive
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	stored := *alert
	m.security[stored.ID] = &stored
	m.mu.Unlock()

	m.logger.Info("security alert created",
		"alert_id", stored.ID.String(),
		"rule", stored.RuleName,
		"threat_type", stored.ThreatType,
		"severity", stored.Severity,
		"risk_score", stored.RiskScore)

	m.notify(ctx, &entity.Notification{
		Kind:      "security_alert",
		RefID:     stored.ID,
		Title:     fmt.Sprintf("[%s] %s", stored.Severity, stored.RuleName),
		Message:   fmt.Sprintf("%s (risk score %d)", stored.Description, stored.RiskScore),
		Severity:  stored.Severity,
		CreatedAt: stored.CreatedAt,
	})
	m.archiveSecurityAlert(ctx, &stored)
	m.broadcast("security_alert_created", &stored)
	return nil
}

// AcknowledgeSecurityAlert moves an active security alert to investigating.
// Any other starting state reports ErrNotFound for the transition.
func (m *Manager) AcknowledgeSecurityAlert(ctx context.Context, id uuid.UUID, by string) (*entity.SecurityAlert, error) {
	m.mu.Lock()
	alert, ok := m.security[id]
	if !ok || alert.Status != entity.SecurityAlertStatusActive {
		m.mu.Unlock()
		return nil, entity.ErrNotFound
	}

	now := time.Now().UTC()
	alert.Status = entity.SecurityAlertStatusInvestigating
	alert.AcknowledgedBy = by
	alert.AcknowledgedAt = &now
	out := *alert
	m.mu.Unlock()

	m.archiveSecurityAlert(ctx, &out)
	m.broadcast("security_alert_updated", &out)
	return &out, nil
}

// ResolveSecurityAlert closes a security alert. Resolution is terminal:
// resolving twice reports ErrNotFound for the transition.
func (m *Manager) ResolveSecurityAlert(ctx context.Context, id uuid.UUID) (*entity.SecurityAlert, error) {
	m.mu.Lock()
	alert, ok := m.security[id]
	if !ok || alert.Status == entity.SecurityAlertStatusResolved {
		m.mu.Unlock()
		return nil, entity.ErrNotFound
	}

	now := time.Now().UTC()
	alert.Status = entity.SecurityAlertStatusResolved
	alert.ResolvedAt = &now
	out := *alert
	m.mu.Unlock()

	m.archiveSecurityAlert(ctx, &out)
	m.broadcast("security_alert_updated", &out)
	return &out, nil
}

// ListSecurityAlerts returns security alerts matching the filters, newest
// first.
func (m *Manager) ListSecurityAlerts(filters entity.SecurityAlertFilters) ([]*entity.SecurityAlert, int64) {
	m.mu.RLock()
	matched := make([]*entity.SecurityAlert, 0, len(m.security))
	for _, a := range m.security {
		if !matchSecurityAlert(a, filters) {
			continue
		}
		out := *a
		matched = append(matched, &out)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filters.Limit > 0 && len(matched) > filters.Limit {
		matched = matched[:filters.Limit]
	}
	return matched, total
}

func matchSecurityAlert(a *entity.SecurityAlert, f entity.SecurityAlertFilters) bool {
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if !f.StartTime.IsZero() && a.CreatedAt.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && a.CreatedAt.After(f.EndTime) {
		return false
	}
	return true
}

// LastSecurityAlertFor returns the creation time of the newest security alert
// for (rule, group key), for cool-down checks across restarts of the
// correlator loop.
func (m *Manager) LastSecurityAlertFor(ruleID uuid.UUID, groupKey string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last time.Time
	found := false
	for _, a := range m.security {
		if a.RuleID == ruleID && a.GroupKey == groupKey && a.CreatedAt.After(last) {
			last = a.CreatedAt
			found = true
		}
	}
	return last, found
}

// Stats summarizes current volumes across all three alert kinds.
func (m *Manager) Stats() *entity.AlertStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &entity.AlertStats{
		TotalAlerts:         int64(len(m.alerts)),
		TotalAnomalies:      int64(len(m.anomalies)),
		TotalSecurityAlerts: int64(len(m.security)),
		BySeverity:          make(map[string]int64),
		ByStatus:            make(map[string]int64),
	}

	for _, a := range m.alerts {
		stats.BySeverity[a.Severity]++
		stats.ByStatus[a.Status]++
	}
	for _, a := range m.anomalies {
		stats.BySeverity[a.Severity]++
		stats.ByStatus[a.Status]++
	}
	for _, a := range m.security {
		stats.BySeverity[a.Severity]++
		stats.ByStatus[a.Status]++
	}
	return stats
}

func (m *Manager) notify(ctx context.Context, n *entity.Notification) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, n)
}

func (m *Manager) archiveAlert(ctx context.Context, a *entity.Alert) {
	if m.sink == nil {
		return
	}
	m.sink.ArchiveAlert(ctx, a)
}

func (m *Manager) archiveAnomaly(ctx context.Context, a *entity.Anomaly) {
	if m.sink == nil {
		return
	}
	m.sink.ArchiveAnomaly(ctx, a)
}

func (m *Manager) archiveSecurityAlert(ctx context.Context, a *entity.SecurityAlert) {
	if m.sink == nil {
		return
	}
	m.sink.ArchiveSecurityAlert(ctx, a)
}

func (m *Manager) broadcast(event string, payload any) {
	if m.broadcaster == nil {
		return
	}
	m.broadcaster.Broadcast(event, payload)
}
