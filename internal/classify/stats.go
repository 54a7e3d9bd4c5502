package classify

import (
	"math"
	"slices"
	"sync"
	"time"
)

// defaultStatsWindow is the number of latency samples kept when
// [NewStats] is given a non-positive size.
const defaultStatsWindow = 100

// Stats collects inference latency samples and outcome counters for status
// displays. Percentiles are computed on demand from a bounded ring buffer of
// recent samples.
//
// Safe for concurrent use.
type Stats struct {
	mu sync.Mutex

	latency latencyBuffer
	windows int64
	errors  int64
}

// NewStats creates a Stats that keeps the last window latency samples.
func NewStats(window int) *Stats {
	if window <= 0 {
		window = defaultStatsWindow
	}
	return &Stats{latency: newLatencyBuffer(window)}
}

// Record adds one inference outcome. Failed runs count as errors and do not
// contribute a latency sample.
func (s *Stats) Record(d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows++
	if err != nil {
		s.errors++
		return
	}
	s.latency.add(d)
}

// StatsSnapshot is a point-in-time view of [Stats].
type StatsSnapshot struct {
	P50     time.Duration
	P95     time.Duration
	Windows int64
	Errors  int64
}

// Snapshot returns the current percentiles and counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := s.latency.sorted()
	return StatsSnapshot{
		P50:     percentile(sorted, 0.50),
		P95:     percentile(sorted, 0.95),
		Windows: s.windows,
		Errors:  s.errors,
	}
}

// latencyBuffer is a bounded ring buffer of duration samples.
type latencyBuffer struct {
	data []time.Duration
	pos  int
	full bool
}

func newLatencyBuffer(size int) latencyBuffer {
	return latencyBuffer{data: make([]time.Duration, size)}
}

func (lb *latencyBuffer) add(d time.Duration) {
	lb.data[lb.pos] = d
	lb.pos++
	if lb.pos == len(lb.data) {
		lb.pos = 0
		lb.full = true
	}
}

// sorted returns a sorted copy of the valid samples.
func (lb *latencyBuffer) sorted() []time.Duration {
	n := lb.pos
	if lb.full {
		n = len(lb.data)
	}
	out := slices.Clone(lb.data[:n])
	slices.Sort(out)
	return out
}

// percentile returns the nearest-rank value at p (0.0-1.0) of a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
