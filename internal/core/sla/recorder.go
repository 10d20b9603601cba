package sla

import (
	"sync"
	"time"
)

// Latency summarizes observed cycle durations.
type Latency struct {
	Count int64
	Sum   time.Duration
	Last  time.Duration
	Max   time.Duration
}

// Mean returns the average observed latency, or zero before any observation.
func (l Latency) Mean() time.Duration {
	if l.Count == 0 {
		return 0
	}
	return l.Sum / time.Duration(l.Count)
}

// Snapshot is a consistent read-only view of a Recorder.
type Snapshot struct {
	Window    []bool
	Capacity  int
	Successes uint64
	Failures  uint64
	Latency   Latency

	// Ratio is meaningful only when HasRatio is true.
	Ratio    float64
	HasRatio bool
	// Up is derived from Window and the recorder threshold under the same lock.
	Up bool
}

// Recorder holds one target's rolling window, counters and latency
// observations. All methods are safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	window    *Window
	threshold float64
	successes uint64
	failures  uint64
	latency   Latency
}

// NewRecorder creates a recorder with a window of windowSize outcomes,
// evaluated against threshold.
func NewRecorder(windowSize int, threshold float64) *Recorder {
	return &Recorder{
		window:    NewWindow(windowSize),
		threshold: threshold,
	}
}

// Record appends an outcome to the window and bumps the matching counter.
func (r *Recorder) Record(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(success)
}

func (r *Recorder) record(success bool) {
	r.window.Push(success)
	if success {
		r.successes++
	} else {
		r.failures++
	}
}

// RecordLatency adds one latency observation.
func (r *Recorder) RecordLatency(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observeLatency(d)
}

func (r *Recorder) observeLatency(d time.Duration) {
	r.latency.Count++
	r.latency.Sum += d
	r.latency.Last = d
	if d > r.latency.Max {
		r.latency.Max = d
	}
}

// Observe records one outcome together with its latency and returns the
// resulting snapshot, all under a single lock.
func (r *Recorder) Observe(success bool, d time.Duration) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record(success)
	r.observeLatency(d)
	return r.snapshotLocked()
}

// Snapshot returns a copy of the current state.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Recorder) snapshotLocked() Snapshot {
	values := r.window.Values()
	ratio, ok := Ratio(values)

	return Snapshot{
		Window:    values,
		Capacity:  r.window.Cap(),
		Successes: r.successes,
		Failures:  r.failures,
		Latency:   r.latency,
		Ratio:     ratio,
		HasRatio:  ok,
		Up:        Evaluate(values, r.threshold),
	}
}

// Threshold returns the SLA threshold the recorder evaluates against.
func (r *Recorder) Threshold() float64 {
	return r.threshold
}
