// Package jitter maintains a bounded window of scheduler timing samples and
// summary statistics over them
package jitter

import (
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the samples currently held in a Window. All values are in
// the unit the samples were recorded in, milliseconds for scheduler jitter.
type Stats struct {
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"stdDev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Count    int     `json:"count"`
	Capacity int     `json:"capacity"`
}

// Window is a fixed capacity circular buffer of float64 samples. Once full,
// each new sample overwrites the oldest. Safe for concurrent use.
type Window struct {
	mu      sync.Mutex
	samples []float64
	next    int
	count   int
	last    Stats
}

// MakeWindow creates a Window holding at most capacity samples. Capacities
// below one are raised to one.
func MakeWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		samples: make([]float64, capacity),
		last:    Stats{Capacity: capacity},
	}
}

// Record inserts a sample, evicting the oldest when the window is full, and
// recomputes the summary statistics
func (w *Window) Record(sample float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = sample
	w.next = (w.next + 1) % len(w.samples)
	if w.count < len(w.samples) {
		w.count++
	}
	w.recompute()
}

// Resize changes the window capacity, retaining the most recent samples that
// fit. A no-op when the capacity is unchanged.
func (w *Window) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if capacity == len(w.samples) {
		return
	}
	kept := w.ordered()
	if len(kept) > capacity {
		kept = kept[len(kept)-capacity:]
	}
	w.samples = make([]float64, capacity)
	copy(w.samples, kept)
	w.count = len(kept)
	w.next = w.count % capacity
	w.recompute()
}

// Stats returns the statistics computed at the last Record or Resize
func (w *Window) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Capacity returns the current window capacity
func (w *Window) Capacity() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

//ordered returns the live samples oldest first
func (w *Window) ordered() []float64 {
	out := make([]float64, 0, w.count)
	if w.count < len(w.samples) {
		return append(out, w.samples[:w.count]...)
	}
	out = append(out, w.samples[w.next:]...)
	return append(out, w.samples[:w.next]...)
}

func (w *Window) recompute() {
	if w.count == 0 {
		w.last = Stats{Capacity: len(w.samples)}
		return
	}
	data := w.ordered()
	mean, stdDev := stat.MeanStdDev(data, nil)
	if w.count < 2 {
		stdDev = 0
	}
	w.last = Stats{
		Mean:     mean,
		StdDev:   stdDev,
		Min:      floats.Min(data),
		Max:      floats.Max(data),
		Count:    w.count,
		Capacity: len(w.samples),
	}
}
