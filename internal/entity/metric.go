package entity

import (
	"time"

	"github.com/google/uuid"
)

// MetricSample is a single ingested measurement for one (metric, service)
// pair. Samples are immutable once recorded.
type MetricSample struct {
	MetricName string    `json:"metric_name" ch:"metric_name"`
	Service    string    `json:"service" ch:"service"`
	Value      float64   `json:"value" ch:"value"`
	Timestamp  time.Time `json:"timestamp" ch:"timestamp"`
}

// Validate checks a sample at the ingestion boundary.
func (s *MetricSample) Validate() error {
	if s.MetricName == "" {
		return Invalid("metric_name", "required")
	}
	if s.Service == "" {
		return Invalid("service", "required")
	}
	if s.Timestamp.IsZero() {
		return Invalid("timestamp", "required")
	}
	return nil
}

// Detection algorithms
const (
	AlgorithmZScore        = "zscore"
	AlgorithmIQR           = "iqr"
	AlgorithmMovingAverage = "moving_average"
	AlgorithmSeasonal      = "seasonal"
)

// Sensitivity and window bounds
const (
	MinSensitivity   = 1
	MaxSensitivity   = 10
	MinWindowMinutes = 5
)

// DetectionConfig selects an anomaly detection algorithm for one metric.
// Service is optional; an empty service matches every service emitting the
// metric. Unique by (metric_name, service).
type DetectionConfig struct {
	ID            uuid.UUID `json:"id"`
	MetricName    string    `json:"metric_name"`
	Service       string    `json:"service,omitempty"`
	Algorithm     string    `json:"algorithm"`
	Sensitivity   int       `json:"sensitivity"`
	WindowMinutes int       `json:"window_minutes"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks all fields before the config is applied.
func (c *DetectionConfig) Validate() error {
	if c.MetricName == "" {
		return Invalid("metric_name", "required")
	}
	switch c.Algorithm {
	case AlgorithmZScore, AlgorithmIQR, AlgorithmMovingAverage, AlgorithmSeasonal:
	default:
		return Invalid("algorithm", "must be one of zscore, iqr, moving_average, seasonal")
	}
	if c.Sensitivity < MinSensitivity || c.Sensitivity > MaxSensitivity {
		return Invalid("sensitivity", "must be between 1 and 10")
	}
	if c.WindowMinutes < MinWindowMinutes {
		return Invalid("window_minutes", "must be at least 5")
	}
	return nil
}

// Window returns the config's lookback duration.
func (c *DetectionConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// Key returns the (metric, service) identity the config is unique by.
func (c *DetectionConfig) Key() string {
	return c.MetricName + "|" + c.Service
}

// Anomaly statuses follow the shared alert lifecycle.
const (
	AnomalyStatusActive       = "active"
	AnomalyStatusAcknowledged = "acknowledged"
	AnomalyStatusResolved     = "resolved"
)

// Anomaly is a single detector finding: the latest sample of a window
// deviated from its expected value by more than the configured threshold.
type Anomaly struct {
	ID             uuid.UUID  `json:"id"`
	MetricName     string     `json:"metric_name"`
	Service        string     `json:"service"`
	Algorithm      string     `json:"algorithm"`
	ExpectedValue  float64    `json:"expected_value"`
	ActualValue    float64    `json:"actual_value"`
	AnomalyScore   float64    `json:"anomaly_score"`
	Severity       string     `json:"severity"`
	Status         string     `json:"status"`
	DetectedAt     time.Time  `json:"detected_at"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// AnomalyFilters narrows anomaly list queries.
type AnomalyFilters struct {
	MetricName string    `json:"metric_name"`
	Service    string    `json:"service"`
	Severity   string    `json:"severity"`
	Status     string    `json:"status"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Limit      int       `json:"limit"`
}
