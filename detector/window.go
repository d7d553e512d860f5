package detector

// RollingWindow is a fixed-capacity ring buffer holding the most recent
// values for one metric. Single-writer; never shared across detectors.
type RollingWindow struct {
	capacity int
	values   []float64
	index    int
	count    int
}

func NewRollingWindow(capacity int) *RollingWindow {
	return &RollingWindow{
		capacity: capacity,
		values:   make([]float64, capacity),
	}
}

// Push appends a value, evicting the oldest entry once the window is full.
func (w *RollingWindow) Push(value float64) {
	w.values[w.index] = value
	w.index = (w.index + 1) % w.capacity
	if w.count < w.capacity {
		w.count++
	}
}

func (w *RollingWindow) Len() int {
	return w.count
}

func (w *RollingWindow) Cap() int {
	return w.capacity
}

// Snapshot returns the current contents in arrival order, oldest first.
// The returned slice is a copy; mutating it does not affect the window.
func (w *RollingWindow) Snapshot() []float64 {
	out := make([]float64, 0, w.count)
	if w.count < w.capacity {
		return append(out, w.values[:w.count]...)
	}
	out = append(out, w.values[w.index:]...)
	return append(out, w.values[:w.index]...)
}

// Clone returns an independent copy, used for scratch evaluation paths
// that must not disturb live baselines.
func (w *RollingWindow) Clone() *RollingWindow {
	c := &RollingWindow{
		capacity: w.capacity,
		values:   make([]float64, w.capacity),
		index:    w.index,
		count:    w.count,
	}
	copy(c.values, w.values)
	return c
}
