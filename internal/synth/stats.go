package synth

import (
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
}

// StatsSnapshot is a point-in-time aggregate of synthesis activity.
type StatsSnapshot struct {
	Attempts  int     `json:"attempts"`
	Successes int     `json:"successes"`
	Splits    int     `json:"splits"`
	Samples   int64   `json:"samples_produced"`
	Count     int     `json:"latency_count"`
	MinMs     int64   `json:"min_ms"`
	MaxMs     int64   `json:"max_ms"`
	AvgMs     float64 `json:"avg_ms"`
	P50Ms     float64 `json:"p50_ms"`
	P95Ms     float64 `json:"p95_ms"`
}

// Stats tracks synthesis call counters plus recent latencies within a
// rolling window.
type Stats struct {
	mu        sync.Mutex
	attempts  int
	successes int
	splits    int
	samples   int64
	latencies []sample
	maxAge    time.Duration
}

func NewStats() *Stats {
	return &Stats{
		latencies: make([]sample, 0, 256),
		maxAge:    time.Hour,
	}
}

func (s *Stats) RecordAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
}

func (s *Stats) RecordSuccess(sampleCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes++
	s.samples += int64(sampleCount)
}

func (s *Stats) RecordSplit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.splits++
}

func (s *Stats) RecordLatency(d time.Duration) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.latencies = append(s.latencies, sample{timestamp: now, durationMs: d.Milliseconds()})
}

func (s *Stats) Snapshot() StatsSnapshot {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)

	snap := StatsSnapshot{
		Attempts:  s.attempts,
		Successes: s.successes,
		Splits:    s.splits,
		Samples:   s.samples,
	}
	if len(s.latencies) == 0 {
		return snap
	}

	values := make([]int64, 0, len(s.latencies))
	var sum int64
	for _, sm := range s.latencies {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	snap.Count = len(values)
	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	return snap
}

func (s *Stats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	writeIdx := 0
	for _, sm := range s.latencies {
		if !sm.timestamp.Before(cutoff) {
			s.latencies[writeIdx] = sm
			writeIdx++
		}
	}
	s.latencies = s.latencies[:writeIdx]
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}
	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}
