package entity

import (
	"time"

	"github.com/google/uuid"
)

// Severity levels
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// SeverityRank orders severities for threshold comparisons. Unknown
// severities rank lowest.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// ValidSeverity reports whether severity is one of the four levels.
func ValidSeverity(severity string) bool {
	return SeverityRank(severity) > 0
}

// Threshold conditions
const (
	ConditionGreaterThan = "greater_than"
	ConditionLessThan    = "less_than"
	ConditionEquals      = "equals"
	ConditionNotEquals   = "not_equals"
)

// CompareCondition evaluates value against threshold under the given
// condition. Unknown conditions never match.
func CompareCondition(condition string, value, threshold float64) bool {
	switch condition {
	case ConditionGreaterThan:
		return value > threshold
	case ConditionLessThan:
		return value < threshold
	case ConditionEquals:
		return value == threshold
	case ConditionNotEquals:
		return value != threshold
	}
	return false
}

// AlertRule is a threshold rule evaluated against a metric window. It fires
// only when every sample across the full duration satisfies the condition;
// a momentary breach is not sufficient.
type AlertRule struct {
	ID                   uuid.UUID   `json:"id"`
	Name                 string      `json:"name"`
	MetricName           string      `json:"metric_name"`
	Service              string      `json:"service,omitempty"`
	Condition            string      `json:"condition"`
	Threshold            float64     `json:"threshold"`
	DurationMinutes      int         `json:"duration_minutes"`
	Severity             string      `json:"severity"`
	NotificationChannels []uuid.UUID `json:"notification_channels"`
	Enabled              bool        `json:"enabled"`
	CreatedBy            string      `json:"created_by"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// Validate checks all fields before the rule is applied.
func (r *AlertRule) Validate() error {
	if r.Name == "" {
		return Invalid("name", "required")
	}
	if r.MetricName == "" {
		return Invalid("metric_name", "required")
	}
	switch r.Condition {
	case ConditionGreaterThan, ConditionLessThan, ConditionEquals, ConditionNotEquals:
	default:
		return Invalid("condition", "must be one of greater_than, less_than, equals, not_equals")
	}
	if r.DurationMinutes < 1 {
		return Invalid("duration_minutes", "must be at least 1")
	}
	if !ValidSeverity(r.Severity) {
		return Invalid("severity", "must be one of critical, high, medium, low")
	}
	return nil
}

// Duration returns the sustained-breach window of the rule.
func (r *AlertRule) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// Alert statuses. Resolved is terminal: a rule that fires again after
// resolution creates a new alert rather than reopening the old one.
const (
	AlertStatusActive       = "active"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
)

// Alert is the canonical record of a firing rule. At most one open (active or
// acknowledged) alert exists per rule at any time.
type Alert struct {
	ID             uuid.UUID  `json:"id"`
	RuleID         uuid.UUID  `json:"rule_id"`
	RuleName       string     `json:"rule_name"`
	MetricName     string     `json:"metric_name"`
	Service        string     `json:"service,omitempty"`
	CurrentValue   float64    `json:"current_value"`
	Threshold      float64    `json:"threshold"`
	Severity       string     `json:"severity"`
	Status         string     `json:"status"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Open reports whether the alert still counts against its rule's
// one-open-alert limit.
func (a *Alert) Open() bool {
	return a.Status == AlertStatusActive || a.Status == AlertStatusAcknowledged
}

// AlertFilters narrows alert list queries.
type AlertFilters struct {
	MetricName string    `json:"metric_name"`
	Service    string    `json:"service"`
	Severity   string    `json:"severity"`
	Status     string    `json:"status"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Limit      int       `json:"limit"`
}

// AlertStats summarizes alert volumes by severity and status across alert
// kinds, for the dashboard overview.
type AlertStats struct {
	TotalAlerts         int64            `json:"total_alerts"`
	TotalAnomalies      int64            `json:"total_anomalies"`
	TotalSecurityAlerts int64            `json:"total_security_alerts"`
	BySeverity          map[string]int64 `json:"by_severity"`
	ByStatus            map[string]int64 `json:"by_status"`
}
