// Package cpuspike implements the per-PID rolling CPU history and the
// sustained-anomaly test (C4).
package cpuspike

import (
	"sync"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

// historyCap bounds each PID's CPU sample history (§3 CpuHistory).
const historyCap = 120

// Detector tracks bounded per-PID CPU sample history and evaluates the
// sustained-spike test from a configurable threshold/window/ratio.
type Detector struct {
	mu      sync.Mutex
	samples map[uint32][]float32
}

// NewDetector returns an empty detector.
func NewDetector() *Detector {
	return &Detector{samples: make(map[uint32][]float32)}
}

// Update appends sample to pid's history (FIFO, capped at 120) and
// reports whether the sustained-spike condition holds per §4.4:
//  1. history length >= min_consecutive_samples, and
//  2. the most recent min_consecutive_samples are all >= threshold, and
//  3. either prior history has fewer than 5 samples and recent_avg
//     exceeds threshold+5, or recent_avg exceeds prior_avg * ratio.
func (d *Detector) Update(pid uint32, sample float32, cfg model.CpuSpikeConfig) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	history := append(d.samples[pid], sample)
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}
	d.samples[pid] = history

	if len(history) < cfg.MinConsecutiveSamples {
		return false
	}

	recent := history[len(history)-cfg.MinConsecutiveSamples:]
	for _, v := range recent {
		if v < cfg.ThresholdPct {
			return false
		}
	}

	recentAvg := average(recent)
	prior := history[:len(history)-cfg.MinConsecutiveSamples]
	if len(prior) < 5 {
		return recentAvg > cfg.ThresholdPct+5.0
	}

	priorAvg := average(prior)
	return recentAvg > priorAvg*cfg.DeviationRatio
}

// Prune drops history for PIDs no longer live, called once per tick.
func (d *Detector) Prune(livePIDs map[uint32]struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for pid := range d.samples {
		if _, ok := livePIDs[pid]; !ok {
			delete(d.samples, pid)
		}
	}
}

// Len returns the current history length for pid, for tests.
func (d *Detector) Len(pid uint32) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.samples[pid])
}

func average(values []float32) float32 {
	if len(values) == 0 {
		return 0
	}
	var sum float32
	for _, v := range values {
		sum += v
	}
	return sum / float32(len(values))
}
