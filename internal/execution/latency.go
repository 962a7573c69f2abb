package execution

import (
	"sort"
	"sync"
	"time"
)

// ExecutionLatency records the timestamps spanning a signal's life in
// the engine, from receipt through fill, plus the derived millisecond
// breakdowns the spec's latency-accounting requirement asks for.
type ExecutionLatency struct {
	SignalReceivedAt      time.Time
	QueueEnteredAt        time.Time
	QueueExitedAt         time.Time
	SubmissionStartedAt   time.Time
	SubmissionCompletedAt time.Time
	FillCompletedAt       time.Time
}

// QueueTimeMs is the time a signal spent waiting in the queue.
func (l *ExecutionLatency) QueueTimeMs() float64 {
	return msBetween(l.QueueEnteredAt, l.QueueExitedAt)
}

// SubmissionTimeMs is the time spent submitting the order(s) to the exchange.
func (l *ExecutionLatency) SubmissionTimeMs() float64 {
	return msBetween(l.SubmissionStartedAt, l.SubmissionCompletedAt)
}

// FillTimeMs is the time spent polling/waiting for a fill after submission.
func (l *ExecutionLatency) FillTimeMs() float64 {
	return msBetween(l.SubmissionCompletedAt, l.FillCompletedAt)
}

// TotalLatencyMs is the full signal-received-to-fill-completed span.
func (l *ExecutionLatency) TotalLatencyMs() float64 {
	return msBetween(l.SignalReceivedAt, l.FillCompletedAt)
}

func msBetween(start, end time.Time) float64 {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0
	}
	return float64(end.Sub(start).Microseconds()) / 1000.0
}

// LatencyTarget is the target total latency for dual-leg executions
// under normal conditions.
const LatencyTarget = 100 * time.Millisecond

// LatencyStats is a rolling summary of total-latency samples: count,
// mean, p95, p99, and the fraction within LatencyTarget. Computed over a
// bounded ring buffer so memory stays flat regardless of run length.
type LatencyStats struct {
	mu      sync.Mutex
	samples []float64
	cap     int
	next    int
	filled  bool
}

// NewLatencyStats constructs a rolling stats tracker holding the most
// recent capacity samples.
func NewLatencyStats(capacity int) *LatencyStats {
	if capacity <= 0 {
		capacity = 1000
	}
	return &LatencyStats{samples: make([]float64, capacity), cap: capacity}
}

// Record adds a total-latency-ms sample.
func (s *LatencyStats) Record(ms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[s.next] = ms
	s.next = (s.next + 1) % s.cap
	if s.next == 0 {
		s.filled = true
	}
}

// Snapshot returns (count, mean, p95, p99, withinTargetFraction) over the
// currently held samples.
func (s *LatencyStats) Snapshot() (count int, mean, p95, p99, withinTarget float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	if s.filled {
		n = s.cap
	}
	if n == 0 {
		return 0, 0, 0, 0, 0
	}

	data := make([]float64, n)
	copy(data, s.samples[:n])
	sort.Float64s(data)

	sum := 0.0
	within := 0
	targetMs := float64(LatencyTarget.Milliseconds())
	for _, v := range data {
		sum += v
		if v <= targetMs {
			within++
		}
	}

	return n, sum / float64(n), percentile(data, 0.95), percentile(data, 0.99), float64(within) / float64(n)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
