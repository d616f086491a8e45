package dispatch

import (
	"sort"
	"sync"
	"time"
)

// windowSize is the number of latency samples retained for percentiles.
const windowSize = 1000

// latencyWindow keeps a rolling window of per-event latency samples.
type latencyWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
}

func newLatencyWindow() *latencyWindow {
	return &latencyWindow{samples: make([]time.Duration, windowSize)}
}

// add records one sample, evicting the oldest once the window is full.
func (w *latencyWindow) add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// LatencySnapshot summarizes the current window.
type LatencySnapshot struct {
	Samples int           `json:"samples"`
	Avg     time.Duration `json:"avg"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
}

// snapshot computes average, p95 and p99 over the retained samples.
func (w *latencyWindow) snapshot() LatencySnapshot {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	current := make([]time.Duration, n)
	copy(current, w.samples[:n])
	w.mu.Unlock()

	if n == 0 {
		return LatencySnapshot{}
	}

	sort.Slice(current, func(i, j int) bool { return current[i] < current[j] })

	var total time.Duration
	for _, d := range current {
		total += d
	}

	return LatencySnapshot{
		Samples: n,
		Avg:     total / time.Duration(n),
		P95:     current[percentileIndex(n, 95)],
		P99:     current[percentileIndex(n, 99)],
	}
}

// percentileIndex returns the index of the p-th percentile in a sorted
// slice of length n.
func percentileIndex(n, p int) int {
	idx := n*p/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}
