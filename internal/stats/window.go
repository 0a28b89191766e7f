// Package stats keeps bounded sliding windows of metric samples and computes
// the summary statistics the outlier classifier works from.
package stats

// DefaultCapacity is the number of most recent samples a window retains.
const DefaultCapacity = 100

// Window is a fixed-capacity FIFO buffer of samples. Pushing into a full
// window evicts the oldest sample. It is not safe for concurrent use.
type Window struct {
	buf   []float64
	start int // index of the oldest sample
	size  int
}

// NewWindow creates a window holding at most capacity samples.
// A non-positive capacity falls back to DefaultCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest sample when the window is full.
func (w *Window) Push(v float64) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = v
		w.size++
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return w.size
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Last returns the most recently pushed sample.
func (w *Window) Last() (float64, bool) {
	if w.size == 0 {
		return 0, false
	}
	return w.buf[(w.start+w.size-1)%len(w.buf)], true
}

// Values returns a copy of the samples, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
