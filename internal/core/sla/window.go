// Package sla turns a stream of per-target download outcomes into a
// rolling availability signal.
package sla

// Window is a fixed capacity FIFO of outcomes. Once full, each Push
// evicts the oldest entry. Window is not safe for concurrent use; the
// Recorder serializes access.
type Window struct {
	buf  []bool
	head int // index of the oldest entry
	size int
}

// NewWindow creates a window holding at most capacity outcomes.
// A capacity below 1 is treated as 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]bool, capacity)}
}

// Push appends an outcome, evicting the oldest one when at capacity.
func (w *Window) Push(success bool) {
	if w.size < len(w.buf) {
		w.buf[(w.head+w.size)%len(w.buf)] = success
		w.size++
		return
	}
	w.buf[w.head] = success
	w.head = (w.head + 1) % len(w.buf)
}

// Values returns the outcomes oldest first.
func (w *Window) Values() []bool {
	out := make([]bool, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Len returns the number of outcomes held.
func (w *Window) Len() int { return w.size }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }
