package alerts

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArashiWander/argus/internal/entity"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []*entity.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n *entity.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRule() *entity.AlertRule {
	return &entity.AlertRule{
		ID:              uuid.New(),
		Name:            "High CPU",
		MetricName:      "cpu_usage",
		Service:         "api",
		Condition:       entity.ConditionGreaterThan,
		Threshold:       90,
		DurationMinutes: 5,
		Severity:        entity.SeverityHigh,
	}
}

func TestCreateOrUpdateForRuleDeduplicates(t *testing.T) {
	notifier := &captureNotifier{}
	m := NewManager(testLogger(), notifier, nil, nil)
	ctx := context.Background()
	rule := testRule()

	first, created := m.CreateOrUpdateForRule(ctx, rule, 95)
	require.True(t, created)
	assert.Equal(t, entity.AlertStatusActive, first.Status)
	assert.Equal(t, 1, notifier.count())

	// A continuing breach refreshes the open alert instead of stacking a
	// duplicate, and sends no second notification.
	second, created := m.CreateOrUpdateForRule(ctx, rule, 97)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 97.0, second.CurrentValue)
	assert.Equal(t, 1, notifier.count())

	_, total := m.ListAlerts(entity.AlertFilters{})
	assert.Equal(t, int64(1), total)
}

func TestAcknowledgedAlertStillBlocksDuplicates(t *testing.T) {
	m := NewManager(testLogger(), nil, nil, nil)
	ctx := context.Background()
	rule := testRule()

	first, _ := m.CreateOrUpdateForRule(ctx, rule, 95)
	_, err := m.AcknowledgeAlert(ctx, first.ID, "oncall")
	require.NoError(t, err)

	_, created := m.CreateOrUpdateForRule(ctx, rule, 96)
	assert.False(t, created)
}

func TestResolvedRuleFiresFreshAlert(t *testing.T) {
	m := NewManager(testLogger(), nil, nil, nil)
	ctx := context.Background()
	rule := testRule()

	first, _ := m.CreateOrUpdateForRule(ctx, rule, 95)
	_, err := m.ResolveAlert(ctx, first.ID)
	require.NoError(t, err)

	second, created := m.CreateOrUpdateForRule(ctx, rule, 98)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAlertLifecycleTransitions(t *testing.T) {
	m := NewManager(testLogger(), nil, nil, nil)
	ctx := context.Background()

	alert, _ := m.CreateOrUpdateForRule(ctx, testRule(), 95)

	acked, err := m.AcknowledgeAlert(ctx, alert.ID, "oncall")
	require.NoError(t, err)
	assert.Equal(t, entity.AlertStatusAcknowledged, acked.Status)
	assert.Equal(t, "oncall", acked.AcknowledgedBy)
	require.NotNil(t, acked.AcknowledgedAt)

	// Acknowledging twice reports the failed transition and keeps the
	// original acknowledger.
	_, err = m.AcknowledgeAlert(ctx, alert.ID, "someone-else")
	assert.ErrorIs(t, err, entity.ErrNotFound)
	kept, err := m.GetAlert(alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "oncall", kept.AcknowledgedBy)
	assert.Equal(t, entity.AlertStatusAcknowledged, kept.Status)

	resolved, err := m.ResolveAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	// Resolution is terminal: re-resolving and re-acknowledging both report
	// the failed transition, and the record keeps its original timestamps.
	_, err = m.ResolveAlert(ctx, alert.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	final, err := m.GetAlert(alert.ID)
	require.NoError(t, err)
	assert.Equal(t, resolved.ResolvedAt, final.ResolvedAt)

	_, err = m.AcknowledgeAlert(ctx, alert.ID, "late")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestAcknowledgeUnknownAlert(t *testing.T) {
	m := NewManager(testLogger(), nil, nil, nil)

	_, err := m.AcknowledgeAlert(context.Background(), uuid.New(), "oncall")
	assert.ErrorIs(t, err, entity.ErrNotFound)
	_, err = m.ResolveAlert(context.Background(), uuid.New())
	assert.ErrorIs(t, err, entity.ErrNotFound)
	_, err = m.GetAlert(uuid.New())
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestListAlertsFiltersAndLimit(t *testing.T) {
	m := NewManager(testLogger(), nil, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rule := testRule()
		if i == 2 {
			rule.Severity = entity.SeverityCritical
		}
		m.CreateOrUpdateForRule(ctx, rule, 95)
	}

	critical, total := m.ListAlerts(entity.AlertFilters{Severity: entity.SeverityCritical})
	assert.Equal(t, int64(1), total)
	require.Len(t, critical, 1)
	assert.Equal(t, entity.SeverityCritical, critical[0].Severity)

	limited, total := m.ListAlerts(entity.AlertFilters{Limit: 2})
	assert.Equal(t, int64(3), total)
	assert.Len(t, limited, 2)
}

func TestRecordAnomalyLifecycle(t *testing.T) {
	notifier := &captureNotifier{}
	m := NewManager(testLogger(), notifier, nil, nil)
	ctx := context.Background()

	anomaly := &entity.Anomaly{
		MetricName:    "cpu_usage",
		Service:       "api",
		Algorithm:     entity.AlgorithmZScore,
		ExpectedValue: 20,
		ActualValue:   95,
		AnomalyScore:  2.4,
		Severity:      entity.SeverityHigh,
	}
	require.NoError(t, m.RecordAnomaly(ctx, anomaly))
	assert.NotEqual(t, uuid.Nil, anomaly.ID)
	assert.Equal(t, entity.AnomalyStatusActive, anomaly.Status)
	assert.Equal(t, 1, notifier.count(), "high severity anomalies notify")

	low := &entity.Anomaly{
		MetricName: "cpu_usage", Service: "api",
		Algorithm: entity.AlgorithmZScore, Severity: entity.SeverityMedium,
	}
	require.NoError(t, m.RecordAnomaly(ctx, low))
	assert.Equal(t, 1, notifier.count(), "medium severity anomalies stay quiet")

	acked, err := m.AcknowledgeAnomaly(ctx, anomaly.ID, "oncall")
	require.NoError(t, err)
	assert.Equal(t, entity.AnomalyStatusAcknowledged, acked.Status)

	_, err = m.AcknowledgeAnomaly(ctx, anomaly.ID, "someone-else")
	assert.ErrorIs(t, err, entity.ErrNotFound, "acknowledging twice is a failed transition")

	resolved, err := m.ResolveAnomaly(ctx, anomaly.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AnomalyStatusResolved, resolved.Status)

	_, err = m.ResolveAnomaly(ctx, anomaly.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound, "resolving twice is a failed transition")

	_, err = m.AcknowledgeAnomaly(ctx, anomaly.ID, "late")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestSecurityAlertLifecycle(t *testing.T) {
	notifier := &captureNotifier{}
	m := NewManager(testLogger(), notifier, nil, nil)
	ctx := context.Background()

	ruleID := uuid.New()
	alert := &entity.SecurityAlert{
		RuleID:      ruleID,
		RuleName:    "Repeated failed logins",
		ThreatType:  "brute_force",
		Severity:    entity.SeverityHigh,
		Description: "5 failed logins for alice in 10m",
		RiskScore:   60,
		GroupKey:    "alice",
	}
	require.NoError(t, m.CreateSecurityAlert(ctx, alert))
	assert.Equal(t, entity.SecurityAlertStatusActive, alert.Status)
	assert.Equal(t, 1, notifier.count())

	last, ok := m.LastSecurityAlertFor(ruleID, "alice")
	require.True(t, ok)
	assert.Equal(t, alert.CreatedAt, last)

	_, ok = m.LastSecurityAlertFor(ruleID, "bob")
	assert.False(t, ok)

	acked, err := m.AcknowledgeSecurityAlert(ctx, alert.ID, "analyst")
	require.NoError(t, err)
	assert.Equal(t, entity.SecurityAlertStatusInvestigating, acked.Status)

	_, err = m.AcknowledgeSecurityAlert(ctx, alert.ID, "second-analyst")
	assert.ErrorIs(t, err, entity.ErrNotFound, "acknowledging twice is a failed transition")

	resolved, err := m.ResolveSecurityAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SecurityAlertStatusResolved, resolved.Status)

	_, err = m.ResolveSecurityAlert(ctx, alert.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound, "resolving twice is a failed transition")

	_, err = m.AcknowledgeSecurityAlert(ctx, alert.ID, "late")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestStats(t *testing.T) {
	m := NewManager(testLogger(), nil, nil, nil)
	ctx := context.Background()

	alert, _ := m.CreateOrUpdateForRule(ctx, testRule(), 95)
	m.ResolveAlert(ctx, alert.ID)
	m.RecordAnomaly(ctx, &entity.Anomaly{MetricName: "m", Service: "s", Severity: entity.SeverityMedium})
	m.CreateSecurityAlert(ctx, &entity.SecurityAlert{RuleID: uuid.New(), Severity: entity.SeverityHigh})

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.TotalAlerts)
	assert.Equal(t, int64(1), stats.TotalAnomalies)
	assert.Equal(t, int64(1), stats.TotalSecurityAlerts)
	assert.Equal(t, int64(2), stats.BySeverity[entity.SeverityHigh])
	assert.Equal(t, int64(1), stats.ByStatus[entity.AlertStatusResolved])
	assert.Equal(t, int64(2), stats.ByStatus[entity.AlertStatusActive])
}
