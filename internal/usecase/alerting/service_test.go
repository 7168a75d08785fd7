package alerting

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArashiWander/argus/internal/entity"
	"github.com/ArashiWander/argus/internal/usecase/alerts"
	"github.com/ArashiWander/argus/internal/usecase/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRule() *entity.AlertRule {
	return &entity.AlertRule{
		Name:            "High CPU",
		MetricName:      "cpu_usage",
		Service:         "api",
		Condition:       entity.ConditionGreaterThan,
		Threshold:       90,
		DurationMinutes: 5,
		Severity:        entity.SeverityHigh,
		Enabled:         true,
	}
}

func fill(store *metrics.Store, service string, base time.Time, values ...float64) {
	for i, v := range values {
		store.Append(entity.MetricSample{
			MetricName: "cpu_usage",
			Service:    service,
			Value:      v,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		})
	}
}

func newFixture(t *testing.T) (*Service, *metrics.Store, *alerts.Manager) {
	t.Helper()
	store := metrics.NewStore(0)
	manager := alerts.NewManager(testLogger(), nil, nil, nil)
	return NewService(store, manager, testLogger()), store, manager
}

func TestRuleCRUD(t *testing.T) {
	svc, _, _ := newFixture(t)

	created, err := svc.CreateRule(testRule())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	got, err := svc.GetRule(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "High CPU", got.Name)

	update := testRule()
	update.Threshold = 80
	updated, err := svc.UpdateRule(created.ID, update)
	require.NoError(t, err)
	assert.Equal(t, 80.0, updated.Threshold)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	assert.Len(t, svc.ListRules(), 1)

	require.NoError(t, svc.DeleteRule(created.ID))
	assert.ErrorIs(t, svc.DeleteRule(created.ID), entity.ErrNotFound)
}

func TestCreateRuleValidation(t *testing.T) {
	svc, _, _ := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*entity.AlertRule)
	}{
		{"missing name", func(r *entity.AlertRule) { r.Name = "" }},
		{"missing metric", func(r *entity.AlertRule) { r.MetricName = "" }},
		{"bad condition", func(r *entity.AlertRule) { r.Condition = "ge" }},
		{"zero duration", func(r *entity.AlertRule) { r.DurationMinutes = 0 }},
		{"bad severity", func(r *entity.AlertRule) { r.Severity = "urgent" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := testRule()
			tt.mutate(rule)
			_, err := svc.CreateRule(rule)
			require.Error(t, err)
			assert.True(t, entity.IsValidation(err))
		})
	}
}

func TestSustainedBreachFires(t *testing.T) {
	svc, store, manager := newFixture(t)
	base := time.Now().UTC().Add(-10 * time.Minute)

	fill(store, "api", base, 95, 96, 97, 95, 98, 96)
	_, err := svc.CreateRule(testRule())
	require.NoError(t, err)

	res := svc.RunEvaluation(context.Background())
	assert.Equal(t, 1, res.RulesEvaluated)
	assert.Equal(t, 1, res.Breaches)
	assert.Equal(t, 1, res.AlertsCreated)

	open, total := manager.ListAlerts(entity.AlertFilters{Status: entity.AlertStatusActive})
	require.Equal(t, int64(1), total)
	assert.Equal(t, 96.0, open[0].CurrentValue)
	assert.Equal(t, entity.SeverityHigh, open[0].Severity)
}

func TestMomentaryBreachDoesNotFire(t *testing.T) {
	svc, store, _ := newFixture(t)
	base := time.Now().UTC().Add(-10 * time.Minute)

	// One sample dips below the threshold inside the window.
	fill(store, "api", base, 95, 96, 40, 95, 98, 96)
	_, err := svc.CreateRule(testRule())
	require.NoError(t, err)

	res := svc.RunEvaluation(context.Background())
	assert.Equal(t, 0, res.Breaches)
}

func TestSparseWindowDoesNotFire(t *testing.T) {
	svc, store, _ := newFixture(t)

	// All samples breach but span only two minutes of the five minute rule.
	base := time.Now().UTC().Add(-2 * time.Minute)
	fill(store, "api", base, 95, 96, 97)
	_, err := svc.CreateRule(testRule())
	require.NoError(t, err)

	res := svc.RunEvaluation(context.Background())
	assert.Equal(t, 0, res.Breaches)
}

func TestRepeatedEvaluationDoesNotStackAlerts(t *testing.T) {
	svc, store, manager := newFixture(t)
	base := time.Now().UTC().Add(-10 * time.Minute)

	fill(store, "api", base, 95, 96, 97, 95, 98, 96)
	_, err := svc.CreateRule(testRule())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		svc.RunEvaluation(context.Background())
	}

	_, total := manager.ListAlerts(entity.AlertFilters{})
	assert.Equal(t, int64(1), total)
}

func TestDisabledRuleSkipped(t *testing.T) {
	svc, store, _ := newFixture(t)
	base := time.Now().UTC().Add(-10 * time.Minute)

	fill(store, "api", base, 95, 96, 97, 95, 98, 96)
	rule := testRule()
	rule.Enabled = false
	_, err := svc.CreateRule(rule)
	require.NoError(t, err)

	res := svc.RunEvaluation(context.Background())
	assert.Equal(t, 0, res.RulesEvaluated)
}

func TestWildcardServiceRule(t *testing.T) {
	svc, store, manager := newFixture(t)
	base := time.Now().UTC().Add(-10 * time.Minute)

	fill(store, "api", base, 50, 50, 50, 50, 50, 50)
	fill(store, "worker", base, 95, 96, 97, 95, 98, 96)

	rule := testRule()
	rule.Service = ""
	_, err := svc.CreateRule(rule)
	require.NoError(t, err)

	res := svc.RunEvaluation(context.Background())
	assert.Equal(t, 1, res.Breaches)

	_, total := manager.ListAlerts(entity.AlertFilters{})
	assert.Equal(t, int64(1), total)
}

func TestLessThanCondition(t *testing.T) {
	svc, store, _ := newFixture(t)
	base := time.Now().UTC().Add(-10 * time.Minute)

	fill(store, "api", base, 2, 1, 3, 2, 1, 2)

	rule := testRule()
	rule.Name = "Low throughput"
	rule.Condition = entity.ConditionLessThan
	rule.Threshold = 10
	_, err := svc.CreateRule(rule)
	require.NoError(t, err)

	res := svc.RunEvaluation(context.Background())
	assert.Equal(t, 1, res.Breaches)
}

func TestEmptyWindowDoesNotFire(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, err := svc.CreateRule(testRule())
	require.NoError(t, err)

	res := svc.RunEvaluation(context.Background())
	assert.Equal(t, 1, res.RulesEvaluated)
	assert.Equal(t, 0, res.Breaches)
}
