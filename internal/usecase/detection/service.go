// Package detection runs statistical anomaly detection over metric windows.
package detection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ArashiWander/argus/internal/entity"
)

// DefaultWorkers bounds concurrent series evaluations per sweep.
const DefaultWorkers = 4

// WindowStore provides read access to recent metric samples.
type WindowStore interface {
	Snapshot(metric, service string, lookback time.Duration) []entity.MetricSample
	Services(metric string) []string
}

// AnomalyRecorder receives detector findings. The recorder assigns the ID and
// initial status.
type AnomalyRecorder interface {
	RecordAnomaly(ctx context.Context, anomaly *entity.Anomaly) error
}

// SweepResult summarizes one detection pass over all enabled configs.
type SweepResult struct {
	ConfigsEvaluated int `json:"configs_evaluated"`
	SeriesScanned    int `json:"series_scanned"`
	AnomaliesFound   int `json:"anomalies_found"`
	Errors           int `json:"errors"`
}

// Service owns the detection config registry and the periodic sweep.
type Service struct {
	store    WindowStore
	recorder AnomalyRecorder
	logger   *slog.Logger
	workers  int

	mu      sync.RWMutex
	configs map[uuid.UUID]*entity.DetectionConfig
	byKey   map[string]uuid.UUID

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewService creates a detection service. A non-positive workers count falls
// back to DefaultWorkers.
func NewService(store WindowStore, recorder AnomalyRecorder, logger *slog.Logger, workers int) *Service {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Service{
		store:    store,
		recorder: recorder,
		logger:   logger,
		workers:  workers,
		configs:  make(map[uuid.UUID]*entity.DetectionConfig),
		byKey:    make(map[string]uuid.UUID),
	}
}

// CreateConfig registers a new detection config. At most one config exists per
// (metric, service) pair.
func (s *Service) CreateConfig(cfg *entity.DetectionConfig) (*entity.DetectionConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[cfg.Key()]; exists {
		return nil, entity.Invalid("metric_name", "detection config already exists for this metric and service")
	}

	now := time.Now().UTC()
	stored := *cfg
	stored.ID = uuid.New()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.configs[stored.ID] = &stored
	s.byKey[stored.Key()] = stored.ID

	out := stored
	return &out, nil
}

// UpdateConfig replaces the mutable fields of an existing config.
func (s *Service) UpdateConfig(id uuid.UUID, cfg *entity.DetectionConfig) (*entity.DetectionConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.configs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}

	if other, exists := s.byKey[cfg.Key()]; exists && other != id {
		return nil, entity.Invalid("metric_name", "detection config already exists for this metric and service")
	}

	delete(s.byKey, current.Key())

	updated := *cfg
	updated.ID = id
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = time.Now().UTC()

	s.configs[id] = &updated
	s.byKey[updated.Key()] = id

	out := updated
	return &out, nil
}

// GetConfig returns the config with the given id.
func (s *Service) GetConfig(id uuid.UUID) (*entity.DetectionConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	out := *cfg
	return &out, nil
}

// ListConfigs returns a copy of all registered configs.
func (s *Service) ListConfigs() []*entity.DetectionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.DetectionConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		c := *cfg
		out = append(out, &c)
	}
	return out
}

// DeleteConfig removes a config from the registry.
func (s *Service) DeleteConfig(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return entity.ErrNotFound
	}
	delete(s.byKey, cfg.Key())
	delete(s.configs, id)
	return nil
}

// RunDetection evaluates every enabled config once. A config with an empty
// service is expanded to every service currently emitting the metric. Failures
// are isolated per series: one broken evaluation never blocks the rest of the
// sweep.
func (s *Service) RunDetection(ctx context.Context) (*SweepResult, error) {
	s.mu.RLock()
	enabled := make([]*entity.DetectionConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		if cfg.Enabled {
			c := *cfg
			enabled = append(enabled, &c)
		}
	}
	s.mu.RUnlock()

	type job struct {
		cfg     *entity.DetectionConfig
		service string
	}

	jobs := make(chan job)
	var (
		resMu  sync.Mutex
		result = SweepResult{ConfigsEvaluated: len(enabled)}
		wg     sync.WaitGroup
	)

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				found, err := s.evaluateSeries(ctx, j.cfg, j.service)
				resMu.Lock()
				result.SeriesScanned++
				if err != nil {
					result.Errors++
				}
				if found {
					result.AnomaliesFound++
				}
				resMu.Unlock()
				if err != nil {
					s.logger.Warn("detection evaluation failed",
						"metric", j.cfg.MetricName,
						"service", j.service,
						"algorithm", j.cfg.Algorithm,
						"error", err)
				}
			}
		}()
	}

	for _, cfg := range enabled {
		services := []string{cfg.Service}
		if cfg.Service == "" {
			services = s.store.Services(cfg.MetricName)
		}
		for _, svc := range services {
			select {
			case jobs <- job{cfg: cfg, service: svc}:
			case <-ctx.Done():
				close(jobs)
				wg.Wait()
				return &result, ctx.Err()
			}
		}
	}
	close(jobs)
	wg.Wait()

	return &result, nil
}

// evaluateSeries scores one (config, service) pair and records a finding when
// the latest sample is anomalous.
func (s *Service) evaluateSeries(ctx context.Context, cfg *entity.DetectionConfig, service string) (bool, error) {
	algo, ok := ForName(cfg.Algorithm)
	if !ok {
		return false, fmt.Errorf("unknown algorithm %q", cfg.Algorithm)
	}

	lookback := cfg.Window()
	if cfg.Algorithm == entity.AlgorithmSeasonal {
		// Seasonal comparison needs the previous cycle plus phase tolerance.
		lookback = 2*cfg.Window() + cfg.Window()/10
	}

	samples := s.store.Snapshot(cfg.MetricName, service, lookback)
	ev := algo.Evaluate(samples, cfg)
	if ev == nil {
		return false, nil
	}

	anomaly := &entity.Anomaly{
		MetricName:    cfg.MetricName,
		Service:       service,
		Algorithm:     cfg.Algorithm,
		ExpectedValue: ev.Expected,
		ActualValue:   ev.Actual,
		AnomalyScore:  ev.Score,
		Severity:      SeverityFromScore(ev.Score),
		DetectedAt:    time.Now().UTC(),
	}

	if err := s.recorder.RecordAnomaly(ctx, anomaly); err != nil {
		return false, fmt.Errorf("record anomaly: %w", err)
	}
	return true, nil
}

// Start launches the periodic sweep loop. It is a no-op if already running.
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

	s.logger.Info("detection engine started", "interval", interval.String(), "workers", s.workers)
}

// Stop halts the sweep loop and waits for the in-flight sweep to finish.
func (s *Service) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
	s.running = false

	s.logger.Info("detection engine stopped")
}

func (s *Service) loop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunDetection(ctx)
			if err != nil {
				s.logger.Error("detection sweep aborted", "error", err)
				continue
			}
			if res.AnomaliesFound > 0 || res.Errors > 0 {
				s.logger.Info("detection sweep finished",
					"configs", res.ConfigsEvaluated,
					"series", res.SeriesScanned,
					"anomalies", res.AnomaliesFound,
					"errors", res.Errors)
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
