package monitor

import "fmt"

// Window is a fixed-capacity FIFO buffer of the most recent samples.
// Once full, each Push evicts the oldest sample. A Window is owned by a
// single Monitor and is not safe for concurrent use.
type Window struct {
	samples []Sample
	view    []Sample
	pos     int
	count   int
}

// NewWindow creates a window holding up to capacity samples.
func NewWindow(capacity int) (*Window, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("window capacity must be greater than 0, got %d", capacity)
	}
	return &Window{
		samples: make([]Sample, capacity),
		view:    make([]Sample, 0, capacity),
	}, nil
}

// Push appends a sample, evicting the oldest one if the window is full.
// It never fails.
func (w *Window) Push(s Sample) {
	w.samples[w.pos] = s
	w.pos = (w.pos + 1) % cap(w.samples)
	if w.count < cap(w.samples) {
		w.count++
	}
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return w.count
}

// Cap returns the fixed capacity the window was created with.
func (w *Window) Cap() int {
	return cap(w.samples)
}

// View returns the samples in insertion order, oldest first. The returned
// slice is backed by an internal buffer and is only valid until the next
// Push.
func (w *Window) View() []Sample {
	if w.count == 0 {
		return nil
	}
	w.view = w.view[:0]
	if w.count < cap(w.samples) {
		w.view = append(w.view, w.samples[:w.count]...)
	} else {
		// full ring: oldest sample sits at the write position
		w.view = append(w.view, w.samples[w.pos:]...)
		w.view = append(w.view, w.samples[:w.pos]...)
	}
	return w.view
}
