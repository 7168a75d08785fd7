package clickhouse

import (
	"context"
	"log/slog"
	"time"

	"github.com/ArashiWander/argus/internal/entity"
)

// AuditRepository archives alert lifecycle records. Writes are asynchronous
// and best-effort: a failed insert is logged and dropped, never retried into
// the caller's path.
type AuditRepository struct {
	conn   *Connection
	logger *slog.Logger
}

// NewAuditRepository creates the audit archive repository.
func NewAuditRepository(conn *Connection, logger *slog.Logger) *AuditRepository {
	return &AuditRepository{conn: conn, logger: logger}
}

const (
	alertsAuditDDL = `
		CREATE TABLE IF NOT EXISTS alerts_audit (
			alert_id     UUID,
			rule_id      UUID,
			rule_name    String,
			metric_name  String,
			service      String,
			current_value Float64,
			threshold    Float64,
			severity     LowCardinality(String),
			status       LowCardinality(String),
			triggered_at DateTime64(3, 'UTC'),
			recorded_at  DateTime64(3, 'UTC') DEFAULT now64(3)
		) ENGINE = MergeTree()
		ORDER BY (triggered_at, alert_id)
		TTL toDateTime(triggered_at) + INTERVAL 90 DAY`

	anomaliesAuditDDL = `
		CREATE TABLE IF NOT EXISTS anomalies_audit (
			anomaly_id     UUID,
			metric_name    String,
			service        String,
			algorithm      LowCardinality(String),
			expected_value Float64,
			actual_value   Float64,
			anomaly_score  Float64,
			severity       LowCardinality(String),
			status         LowCardinality(String),
			detected_at    DateTime64(3, 'UTC'),
			recorded_at    DateTime64(3, 'UTC') DEFAULT now64(3)
		) ENGINE = MergeTree()
		ORDER BY (detected_at, anomaly_id)
		TTL toDateTime(detected_at) + INTERVAL 90 DAY`

	securityAuditDDL = `
		CREATE TABLE IF NOT EXISTS security_alerts_audit (
			alert_id    UUID,
			rule_id     UUID,
			rule_name   String,
			threat_type LowCardinality(String),
			severity    LowCardinality(String),
			status      LowCardinality(String),
			description String,
			risk_score  Int32,
			group_key   String,
			created_at  DateTime64(3, 'UTC'),
			recorded_at DateTime64(3, 'UTC') DEFAULT now64(3)
		) ENGINE = MergeTree()
		ORDER BY (created_at, alert_id)
		TTL toDateTime(created_at) + INTERVAL 180 DAY`
)

// Migrate creates the audit tables if they do not exist.
func (r *AuditRepository) Migrate(ctx context.Context) error {
	for _, ddl := range []string{alertsAuditDDL, anomaliesAuditDDL, securityAuditDDL} {
		if err := r.conn.Exec(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveAlert records an alert state. Every lifecycle transition appends a
// row, so the archive holds the full history of each alert.
func (r *AuditRepository) ArchiveAlert(_ context.Context, a *entity.Alert) {
	row := *a
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := r.conn.Exec(ctx, `
			INSERT INTO alerts_audit
				(alert_id, rule_id, rule_name, metric_name, service,
				 current_value, threshold, severity, status, triggered_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID, row.RuleID, row.RuleName, row.MetricName, row.Service,
			row.CurrentValue, row.Threshold, row.Severity, row.Status, row.TriggeredAt)
		if err != nil {
			r.logger.Warn("failed to archive alert", "alert_id", row.ID.String(), "error", err)
		}
	}()
}

// ArchiveAnomaly records an anomaly state.
func (r *AuditRepository) ArchiveAnomaly(_ context.Context, a *entity.Anomaly) {
	row := *a
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := r.conn.Exec(ctx, `
			INSERT INTO anomalies_audit
				(anomaly_id, metric_name, service, algorithm,
				 expected_value, actual_value, anomaly_score, severity, status, detected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID, row.MetricName, row.Service, row.Algorithm,
			row.ExpectedValue, row.ActualValue, row.AnomalyScore, row.Severity, row.Status, row.DetectedAt)
		if err != nil {
			r.logger.Warn("failed to archive anomaly", "anomaly_id", row.ID.String(), "error", err)
		}
	}()
}

// ArchiveSecurityAlert records a security alert state.
func (r *AuditRepository) ArchiveSecurityAlert(_ context.Context, a *entity.SecurityAlert) {
	row := *a
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := r.conn.Exec(ctx, `
			INSERT INTO security_alerts_audit
				(alert_id, rule_id, rule_name, threat_type, severity,
				 status, description, risk_score, group_key, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID, row.RuleID, row.RuleName, row.ThreatType, row.Severity,
			row.Status, row.Description, int32(row.RiskScore), row.GroupKey, row.CreatedAt)
		if err != nil {
			r.logger.Warn("failed to archive security alert", "alert_id", row.ID.String(), "error", err)
		}
	}()
}
