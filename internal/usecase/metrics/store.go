// Package metrics holds the in-memory window store read by all detectors.
package metrics

import (
	"sync"
	"time"

	"github.com/ArashiWander/argus/internal/entity"
)

// DefaultLookback bounds how much history a window retains when the store is
// built without an explicit lookback.
const DefaultLookback = 24 * time.Hour

// Store keeps the recent samples of every (metric, service) pair. Appends and
// snapshots are safe to run concurrently; a snapshot is always a consistent
// copy and never observes a partially appended sample.
type Store struct {
	mu       sync.RWMutex
	windows  map[string]*window
	lookback time.Duration
}

// window is a ring buffer of samples ordered by timestamp.
type window struct {
	mu    sync.Mutex
	buf   []entity.MetricSample
	head  int
	count int
}

// NewStore creates a window store retaining up to lookback of history per
// window. A non-positive lookback falls back to DefaultLookback.
func NewStore(lookback time.Duration) *Store {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Store{
		windows:  make(map[string]*window),
		lookback: lookback,
	}
}

func key(metric, service string) string {
	return metric + "|" + service
}

// Append stores a sample and evicts entries older than the lookback.
// Timestamps are clamped monotonically non-decreasing within a window so the
// ordering invariant holds even for slightly out-of-order producers.
func (s *Store) Append(sample entity.MetricSample) {
	k := key(sample.MetricName, sample.Service)

	s.mu.RLock()
	w := s.windows[k]
	s.mu.RUnlock()

	if w == nil {
		s.mu.Lock()
		w = s.windows[k]
		if w == nil {
			w = &window{buf: make([]entity.MetricSample, 16)}
			s.windows[k] = w
		}
		s.mu.Unlock()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count > 0 {
		if last := w.at(w.count - 1).Timestamp; sample.Timestamp.Before(last) {
			sample.Timestamp = last
		}
	}

	cutoff := sample.Timestamp.Add(-s.lookback)
	for w.count > 0 && w.at(0).Timestamp.Before(cutoff) {
		w.head = (w.head + 1) % len(w.buf)
		w.count--
	}

	if w.count == len(w.buf) {
		w.grow()
	}
	*w.at(w.count) = sample
	w.count++
}

// at returns a pointer to the i-th oldest sample. Caller holds w.mu.
func (w *window) at(i int) *entity.MetricSample {
	return &w.buf[(w.head+i)%len(w.buf)]
}

// grow doubles the buffer, re-linearizing so head is 0. Caller holds w.mu.
func (w *window) grow() {
	next := make([]entity.MetricSample, len(w.buf)*2)
	for i := 0; i < w.count; i++ {
		next[i] = *w.at(i)
	}
	w.buf = next
	w.head = 0
}

// Snapshot returns an ordered copy of the samples for (metric, service)
// within lookback of the newest sample. An unknown key or empty window
// returns an empty slice, never an error.
func (s *Store) Snapshot(metric, service string, lookback time.Duration) []entity.MetricSample {
	s.mu.RLock()
	w := s.windows[key(metric, service)]
	s.mu.RUnlock()

	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == 0 {
		return nil
	}

	cutoff := w.at(w.count - 1).Timestamp.Add(-lookback)
	start := 0
	for start < w.count && w.at(start).Timestamp.Before(cutoff) {
		start++
	}

	out := make([]entity.MetricSample, 0, w.count-start)
	for i := start; i < w.count; i++ {
		out = append(out, *w.at(i))
	}
	return out
}

// Services returns every service currently holding samples for metric. Used
// to expand wildcard detection configs.
func (s *Store) Services(metric string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := metric + "|"
	var services []string
	for k := range s.windows {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			services = append(services, k[len(prefix):])
		}
	}
	return services
}

// Len returns the number of samples retained for (metric, service).
func (s *Store) Len(metric, service string) int {
	s.mu.RLock()
	w := s.windows[key(metric, service)]
	s.mu.RUnlock()

	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
