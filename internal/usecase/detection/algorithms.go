package detection

import (
	"math"
	"sort"
	"time"

	"github.com/ArashiWander/argus/internal/entity"
)

// Evaluation is the outcome of one algorithm pass over a window snapshot.
// Score is a normalized deviation: 1.0 sits exactly on the detection
// threshold, larger values are proportionally further out.
type Evaluation struct {
	Expected float64
	Actual   float64
	Score    float64
}

// Algorithm scores the most recent sample of a window against the rest.
// Implementations are pure functions of the snapshot and config; they return
// nil when the window is unremarkable or too small to judge.
type Algorithm interface {
	Name() string
	Evaluate(samples []entity.MetricSample, cfg *entity.DetectionConfig) *Evaluation
}

// ForName returns the algorithm registered under name.
func ForName(name string) (Algorithm, bool) {
	switch name {
	case entity.AlgorithmZScore:
		return zscoreAlgorithm{}, true
	case entity.AlgorithmIQR:
		return iqrAlgorithm{}, true
	case entity.AlgorithmMovingAverage:
		return movingAverageAlgorithm{}, true
	case entity.AlgorithmSeasonal:
		return seasonalAlgorithm{}, true
	}
	return nil, false
}

// SeverityFromScore bands a normalized score into a severity level. A score
// below 1.0 is not anomalous and callers never reach this for such scores.
func SeverityFromScore(score float64) string {
	switch {
	case score >= 3:
		return entity.SeverityCritical
	case score >= 2:
		return entity.SeverityHigh
	case score >= 1:
		return entity.SeverityMedium
	default:
		return entity.SeverityLow
	}
}

// Sensitivity mappings. The operator-facing 1-10 dial maps to algorithm
// thresholds where higher sensitivity means a smaller required deviation.

func zscoreThreshold(sensitivity int) float64 {
	return math.Max(3.0-0.4*float64(sensitivity), 0.5)
}

func iqrFenceFactor(sensitivity int) float64 {
	return math.Max(3.0-0.25*float64(sensitivity), 0.5)
}

func deviationPct(sensitivity int) float64 {
	return math.Max(0.6-0.05*float64(sensitivity), 0.05)
}

type zscoreAlgorithm struct{}

func (zscoreAlgorithm) Name() string { return entity.AlgorithmZScore }

func (zscoreAlgorithm) Evaluate(samples []entity.MetricSample, cfg *entity.DetectionConfig) *Evaluation {
	if len(samples) < 2 {
		return nil
	}

	latest := samples[len(samples)-1].Value
	baseline := samples[:len(samples)-1]

	mean, stddev := meanStddev(baseline)
	if stddev == 0 {
		// Constant window: no deviation is measurable at any sensitivity.
		return nil
	}

	z := math.Abs(latest-mean) / stddev
	threshold := zscoreThreshold(cfg.Sensitivity)
	if z <= threshold {
		return nil
	}

	return &Evaluation{Expected: mean, Actual: latest, Score: z / threshold}
}

type iqrAlgorithm struct{}

func (iqrAlgorithm) Name() string { return entity.AlgorithmIQR }

func (iqrAlgorithm) Evaluate(samples []entity.MetricSample, cfg *entity.DetectionConfig) *Evaluation {
	if len(samples) < 4 {
		return nil
	}

	latest := samples[len(samples)-1].Value
	baseline := make([]float64, 0, len(samples)-1)
	for _, s := range samples[:len(samples)-1] {
		baseline = append(baseline, s.Value)
	}
	sort.Float64s(baseline)

	q1 := quantile(baseline, 0.25)
	q3 := quantile(baseline, 0.75)
	iqr := q3 - q1
	if iqr == 0 {
		return nil
	}

	k := iqrFenceFactor(cfg.Sensitivity)
	lower := q1 - k*iqr
	upper := q3 + k*iqr
	median := quantile(baseline, 0.5)

	var dist float64
	switch {
	case latest > upper:
		dist = latest - upper
	case latest < lower:
		dist = lower - latest
	default:
		return nil
	}

	return &Evaluation{Expected: median, Actual: latest, Score: 1 + dist/(k*iqr)}
}

type movingAverageAlgorithm struct{}

func (movingAverageAlgorithm) Name() string { return entity.AlgorithmMovingAverage }

func (movingAverageAlgorithm) Evaluate(samples []entity.MetricSample, cfg *entity.DetectionConfig) *Evaluation {
	if len(samples) < 2 {
		return nil
	}

	latest := samples[len(samples)-1].Value
	baseline := samples[:len(samples)-1]

	var sum float64
	for _, s := range baseline {
		sum += s.Value
	}
	avg := sum / float64(len(baseline))
	if avg == 0 {
		return nil
	}

	rel := math.Abs(latest-avg) / math.Abs(avg)
	pct := deviationPct(cfg.Sensitivity)
	if rel <= pct {
		return nil
	}

	return &Evaluation{Expected: avg, Actual: latest, Score: rel / pct}
}

type seasonalAlgorithm struct{}

func (seasonalAlgorithm) Name() string { return entity.AlgorithmSeasonal }

// Evaluate compares the latest sample against the value at the same phase of
// the previous cycle, where one cycle spans the config window. Less than two
// full cycles of history silently produces no finding.
func (seasonalAlgorithm) Evaluate(samples []entity.MetricSample, cfg *entity.DetectionConfig) *Evaluation {
	if len(samples) < 3 {
		return nil
	}

	cycle := cfg.Window()
	latest := samples[len(samples)-1]
	earliest := samples[0]

	tolerance := cycle / 10
	if latest.Timestamp.Sub(earliest.Timestamp) < 2*cycle-tolerance {
		return nil
	}

	phase := latest.Timestamp.Add(-cycle)
	prior, ok := closestTo(samples[:len(samples)-1], phase, tolerance)
	if !ok || prior.Value == 0 {
		return nil
	}

	rel := math.Abs(latest.Value-prior.Value) / math.Abs(prior.Value)
	pct := deviationPct(cfg.Sensitivity)
	if rel <= pct {
		return nil
	}

	return &Evaluation{Expected: prior.Value, Actual: latest.Value, Score: rel / pct}
}

// closestTo finds the sample nearest to target within tolerance.
func closestTo(samples []entity.MetricSample, target time.Time, tolerance time.Duration) (entity.MetricSample, bool) {
	var best entity.MetricSample
	bestDelta := tolerance + 1
	found := false

	for _, s := range samples {
		delta := s.Timestamp.Sub(target)
		if delta < 0 {
			delta = -delta
		}
		if delta <= tolerance && (!found || delta < bestDelta) {
			best = s
			bestDelta = delta
			found = true
		}
	}
	return best, found
}

// meanStddev computes the mean and population standard deviation of values.
func meanStddev(samples []entity.MetricSample) (mean, stddev float64) {
	n := float64(len(samples))
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	mean = sum / n

	var sumSq float64
	for _, s := range samples {
		d := s.Value - mean
		sumSq += d * d
	}
	return mean, math.Sqrt(sumSq / n)
}

// quantile interpolates the q-th quantile of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
