package threats

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArashiWander/argus/internal/entity"
	"github.com/ArashiWander/argus/internal/usecase/alerts"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) (*Service, *alerts.Manager) {
	t.Helper()
	manager := alerts.NewManager(testLogger(), nil, nil, nil)
	return NewService(manager, testLogger(), 0), manager
}

func failedLoginRule() *entity.ThreatRule {
	return &entity.ThreatRule{
		Name:          "Repeated failed logins",
		RuleType:      entity.ThreatRuleFrequency,
		EventType:     "auth.login",
		Outcome:       entity.OutcomeFailure,
		GroupBy:       entity.GroupByUsername,
		Threshold:     5,
		WindowMinutes: 10,
		Severity:      entity.SeverityHigh,
		Enabled:       true,
	}
}

func failedLogin(username string, at time.Time) *entity.SecurityEvent {
	return &entity.SecurityEvent{
		EventType: "auth.login",
		Severity:  entity.SeverityMedium,
		Action:    "login",
		Outcome:   entity.OutcomeFailure,
		Username:  username,
		SourceIP:  "203.0.113.7",
		Timestamp: at,
	}
}

func TestIngestEventValidation(t *testing.T) {
	svc, _ := newFixture(t)

	stored, err := svc.IngestEvent(failedLogin("alice", time.Now().UTC()))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, stored.ID)
	assert.False(t, stored.IngestedAt.IsZero())

	bad := failedLogin("alice", time.Now().UTC())
	bad.Outcome = "denied"
	_, err = svc.IngestEvent(bad)
	require.Error(t, err)
	assert.True(t, entity.IsValidation(err))
}

func TestFrequencyRuleBelowThresholdStaysQuiet(t *testing.T) {
	svc, manager := newFixture(t)
	_, err := svc.CreateRule(failedLoginRule())
	require.NoError(t, err)

	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		_, err := svc.IngestEvent(failedLogin("alice", now.Add(-time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	res := svc.RunCorrelation(context.Background())
	assert.Equal(t, 0, res.AlertsCreated)

	_, total := manager.ListSecurityAlerts(entity.SecurityAlertFilters{})
	assert.Equal(t, int64(0), total)
}

func TestFrequencyRuleFiresAtThreshold(t *testing.T) {
	svc, manager := newFixture(t)
	_, err := svc.CreateRule(failedLoginRule())
	require.NoError(t, err)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, err := svc.IngestEvent(failedLogin("alice", now.Add(-time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	res := svc.RunCorrelation(context.Background())
	assert.Equal(t, 1, res.AlertsCreated)

	raised, total := manager.ListSecurityAlerts(entity.SecurityAlertFilters{})
	require.Equal(t, int64(1), total)
	alert := raised[0]
	assert.Equal(t, "Repeated failed logins", alert.RuleName)
	assert.Equal(t, entity.SeverityHigh, alert.Severity)
	assert.Equal(t, "alice", alert.GroupKey)
	assert.Len(t, alert.RelatedEventIDs, 5)

	// high severity (30) + failure outcome (20) + frequency bonus (10)
	assert.Equal(t, 60, alert.RiskScore)
}

func TestFrequencyRuleCoolDownSuppressesDuplicates(t *testing.T) {
	svc, manager := newFixture(t)
	_, err := svc.CreateRule(failedLoginRule())
	require.NoError(t, err)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, err := svc.IngestEvent(failedLogin("alice", now.Add(-time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	res := svc.RunCorrelation(context.Background())
	assert.Equal(t, 1, res.AlertsCreated)

	// A sixth failure inside the window must not raise a second alert.
	_, err = svc.IngestEvent(failedLogin("alice", now))
	require.NoError(t, err)

	res = svc.RunCorrelation(context.Background())
	assert.Equal(t, 0, res.AlertsCreated)
	assert.Equal(t, 1, res.Suppressed)

	_, total := manager.ListSecurityAlerts(entity.SecurityAlertFilters{})
	assert.Equal(t, int64(1), total)
}

func TestFrequencyRuleGroupsIndependently(t *testing.T) {
	svc, manager := newFixture(t)
	_, err := svc.CreateRule(failedLoginRule())
	require.NoError(t, err)

	now := time.Now().UTC()
	for _, user := range []string{"alice", "bob"} {
		for i := 0; i < 5; i++ {
			_, err := svc.IngestEvent(failedLogin(user, now.Add(-time.Duration(i)*time.Minute)))
			require.NoError(t, err)
		}
	}

	res := svc.RunCorrelation(context.Background())
	assert.Equal(t, 2, res.AlertsCreated)

	_, total := manager.ListSecurityAlerts(entity.SecurityAlertFilters{})
	assert.Equal(t, int64(2), total)
}

func TestEventsOutsideWindowIgnored(t *testing.T) {
	svc, _ := newFixture(t)
	_, err := svc.CreateRule(failedLoginRule())
	require.NoError(t, err)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, err := svc.IngestEvent(failedLogin("alice", now.Add(-30*time.Minute)))
		require.NoError(t, err)
	}

	res := svc.RunCorrelation(context.Background())
	assert.Equal(t, 0, res.AlertsCreated)
}

func TestPatternRuleMatchesSingleEvent(t *testing.T) {
	svc, manager := newFixture(t)

	rule := &entity.ThreatRule{
		Name:          "Blocked request",
		RuleType:      entity.ThreatRulePattern,
		Outcome:       entity.OutcomeBlocked,
		WindowMinutes: 5,
		Severity:      entity.SeverityCritical,
		Enabled:       true,
	}
	_, err := svc.CreateRule(rule)
	require.NoError(t, err)

	event := &entity.SecurityEvent{
		EventType: "waf.request",
		Severity:  entity.SeverityHigh,
		Action:    "http_post",
		Outcome:   entity.OutcomeBlocked,
		SourceIP:  "198.51.100.9",
		Timestamp: time.Now().UTC(),
	}
	_, err = svc.IngestEvent(event)
	require.NoError(t, err)

	res := svc.RunCorrelation(context.Background())
	assert.Equal(t, 1, res.AlertsCreated)

	raised, _ := manager.ListSecurityAlerts(entity.SecurityAlertFilters{})
	require.Len(t, raised, 1)
	assert.Equal(t, "198.51.100.9", raised[0].GroupKey)

	// critical severity (40) + blocked outcome (30), no frequency bonus
	assert.Equal(t, 70, raised[0].RiskScore)

	// Re-running inside the window does not duplicate the alert.
	res = svc.RunCorrelation(context.Background())
	assert.Equal(t, 0, res.AlertsCreated)
	assert.Equal(t, 1, res.Suppressed)
}

func TestDisabledRuleSkipped(t *testing.T) {
	svc, _ := newFixture(t)

	rule := failedLoginRule()
	rule.Enabled = false
	_, err := svc.CreateRule(rule)
	require.NoError(t, err)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, err := svc.IngestEvent(failedLogin("alice", now))
		require.NoError(t, err)
	}

	res := svc.RunCorrelation(context.Background())
	assert.Equal(t, 0, res.RulesEvaluated)
	assert.Equal(t, 0, res.AlertsCreated)
}

func TestRuleCRUD(t *testing.T) {
	svc, _ := newFixture(t)

	created, err := svc.CreateRule(failedLoginRule())
	require.NoError(t, err)

	got, err := svc.GetRule(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	update := failedLoginRule()
	update.Threshold = 10
	updated, err := svc.UpdateRule(created.ID, update)
	require.NoError(t, err)
	assert.Equal(t, 10, updated.Threshold)

	assert.Len(t, svc.ListRules(), 1)

	require.NoError(t, svc.DeleteRule(created.ID))
	assert.ErrorIs(t, svc.DeleteRule(created.ID), entity.ErrNotFound)
}

func TestCreateRuleValidation(t *testing.T) {
	svc, _ := newFixture(t)

	rule := failedLoginRule()
	rule.GroupBy = "hostname"
	_, err := svc.CreateRule(rule)
	require.Error(t, err)
	assert.True(t, entity.IsValidation(err))

	rule = failedLoginRule()
	rule.Threshold = 0
	_, err = svc.CreateRule(rule)
	require.Error(t, err)
	assert.True(t, entity.IsValidation(err))
}

func TestLoadRulesDir(t *testing.T) {
	svc, _ := newFixture(t)
	dir := t.TempDir()

	good := `rules:
  - name: Repeated failed logins
    rule_type: frequency
    event_type: auth.login
    outcome: failure
    group_by: username
    threshold: 5
    window_minutes: 10
    severity: high
  - name: Blocked request
    rule_type: pattern
    outcome: blocked
    window_minutes: 5
    severity: critical
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "defaults.yaml"), []byte(good), 0o644))

	// One malformed file and one file holding an invalid rule; both skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("rules: {not a list"), 0o644))
	invalid := "rules:\n  - name: Bad\n    rule_type: frequency\n    severity: high\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invalid.yaml"), []byte(invalid), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	loaded, err := svc.LoadRulesDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Len(t, svc.ListRules(), 2)

	for _, rule := range svc.ListRules() {
		assert.True(t, rule.Enabled, "seeded rules default to enabled")
	}
}

func TestLoadRulesDirMissing(t *testing.T) {
	svc, _ := newFixture(t)
	_, err := svc.LoadRulesDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
