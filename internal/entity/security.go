package entity

import (
	"time"

	"github.com/google/uuid"
)

// Security event outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBlocked = "blocked"
)

// SecurityEvent is a single audit/security fact consumed by the threat
// correlator, e.g. a failed login or a blocked request.
type SecurityEvent struct {
	ID         uuid.UUID `json:"id"`
	EventType  string    `json:"event_type"`
	Severity   string    `json:"severity"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	Username   string    `json:"username,omitempty"`
	SourceIP   string    `json:"source_ip,omitempty"`
	Target     string    `json:"target,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Validate checks an event at the ingestion boundary.
func (e *SecurityEvent) Validate() error {
	if e.EventType == "" {
		return Invalid("event_type", "required")
	}
	if !ValidSeverity(e.Severity) {
		return Invalid("severity", "must be one of critical, high, medium, low")
	}
	if e.Action == "" {
		return Invalid("action", "required")
	}
	switch e.Outcome {
	case OutcomeSuccess, OutcomeFailure, OutcomeBlocked:
	default:
		return Invalid("outcome", "must be one of success, failure, blocked")
	}
	if e.Timestamp.IsZero() {
		return Invalid("timestamp", "required")
	}
	return nil
}

// Threat rule types
const (
	ThreatRuleFrequency = "frequency"
	ThreatRulePattern   = "pattern"
)

// Group-by attributes for frequency rules
const (
	GroupByUsername = "username"
	GroupBySourceIP = "source_ip"
)

// ThreatRule matches security events either by count within a time window
// (frequency, e.g. "5 failed logins for the same username in 10 minutes") or
// by single-event attributes (pattern, e.g. outcome=blocked).
type ThreatRule struct {
	ID            uuid.UUID `json:"id" yaml:"-"`
	Name          string    `json:"name" yaml:"name"`
	RuleType      string    `json:"rule_type" yaml:"rule_type"`
	EventType     string    `json:"event_type,omitempty" yaml:"event_type"`
	Outcome       string    `json:"outcome,omitempty" yaml:"outcome"`
	GroupBy       string    `json:"group_by,omitempty" yaml:"group_by"`
	Threshold     int       `json:"threshold,omitempty" yaml:"threshold"`
	WindowMinutes int       `json:"window_minutes,omitempty" yaml:"window_minutes"`
	Severity      string    `json:"severity" yaml:"severity"`
	Enabled       bool      `json:"enabled" yaml:"enabled"`
	Description   string    `json:"description,omitempty" yaml:"description"`
}

// Validate checks all fields before the rule is applied.
func (r *ThreatRule) Validate() error {
	if r.Name == "" {
		return Invalid("name", "required")
	}
	if !ValidSeverity(r.Severity) {
		return Invalid("severity", "must be one of critical, high, medium, low")
	}
	switch r.RuleType {
	case ThreatRuleFrequency:
		switch r.GroupBy {
		case GroupByUsername, GroupBySourceIP:
		default:
			return Invalid("group_by", "must be one of username, source_ip")
		}
		if r.Threshold < 1 {
			return Invalid("threshold", "must be at least 1")
		}
		if r.WindowMinutes < 1 {
			return Invalid("window_minutes", "must be at least 1")
		}
	case ThreatRulePattern:
		if r.EventType == "" && r.Outcome == "" {
			return Invalid("pattern", "event_type or outcome required")
		}
	default:
		return Invalid("rule_type", "must be one of frequency, pattern")
	}
	if r.Outcome != "" {
		switch r.Outcome {
		case OutcomeSuccess, OutcomeFailure, OutcomeBlocked:
		default:
			return Invalid("outcome", "must be one of success, failure, blocked")
		}
	}
	return nil
}

// Window returns the rule's correlation window, which also serves as its
// deduplication cool-down.
func (r *ThreatRule) Window() time.Duration {
	if r.WindowMinutes < 1 {
		return time.Minute
	}
	return time.Duration(r.WindowMinutes) * time.Minute
}

// SecurityAlert statuses. Investigating is the acknowledged stage of the
// shared lifecycle; resolved is terminal.
const (
	SecurityAlertStatusActive        = "active"
	SecurityAlertStatusInvestigating = "investigating"
	SecurityAlertStatusResolved      = "resolved"
)

// SecurityAlert is a risk-scored finding emitted by the threat correlator.
type SecurityAlert struct {
	ID              uuid.UUID   `json:"id"`
	RuleID          uuid.UUID   `json:"rule_id"`
	RuleName        string      `json:"rule_name"`
	ThreatType      string      `json:"threat_type"`
	Severity        string      `json:"severity"`
	Description     string      `json:"description"`
	RiskScore       int         `json:"risk_score"`
	Status          string      `json:"status"`
	GroupKey        string      `json:"group_key,omitempty"`
	RelatedEventIDs []uuid.UUID `json:"related_event_ids"`
	CreatedAt       time.Time   `json:"created_at"`
	AcknowledgedBy  string      `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
}

// SecurityAlertFilters narrows security alert list queries.
type SecurityAlertFilters struct {
	Severity  string    `json:"severity"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Limit     int       `json:"limit"`
}

// Risk score weights. Score = severity weight + outcome weight + frequency
// bonus, capped at 100.
const (
	MaxRiskScore           = 100
	MaxFrequencyMultiplier = 3.0
)

func severityWeight(severity string) int {
	switch severity {
	case SeverityCritical:
		return 40
	case SeverityHigh:
		return 30
	case SeverityMedium:
		return 20
	default:
		return 10
	}
}

func outcomeWeight(outcome string) int {
	switch outcome {
	case OutcomeBlocked:
		return 30
	case OutcomeFailure:
		return 20
	case OutcomeSuccess:
		return 5
	}
	return 0
}

// ComputeRiskScore combines rule severity, event outcome and match frequency
// into an integer used to rank security alerts. The frequency multiplier is
// matched/threshold capped at MaxFrequencyMultiplier.
func ComputeRiskScore(severity, outcome string, matched, threshold int) int {
	score := severityWeight(severity) + outcomeWeight(outcome)

	if threshold > 0 && matched > 0 {
		ratio := float64(matched) / float64(threshold)
		if ratio > MaxFrequencyMultiplier {
			ratio = MaxFrequencyMultiplier
		}
		score += int(ratio * 10)
	}

	if score > MaxRiskScore {
		score = MaxRiskScore
	}
	return score
}
