package formatters

// Widths tracks the widest value seen per column over the whole run
type Widths struct {
	cols []int
}

// NewWidths creates a tracker for n columns, all starting at zero
func NewWidths(n int) *Widths {
	return &Widths{cols: make([]int, n)}
}

// Observe widens columns to fit row. Widths never shrink.
func (w *Widths) Observe(row []string) {
	if len(row) > len(w.cols) {
		grown := make([]int, len(row))
		copy(grown, w.cols)
		w.cols = grown
	}
	for i, s := range row {
		if len(s) > w.cols[i] {
			w.cols[i] = len(s)
		}
	}
}

// Get returns the tracked width of column i
func (w *Widths) Get(i int) int {
	if i < 0 || i >= len(w.cols) {
		return 0
	}
	return w.cols[i]
}

// Len returns the number of tracked columns
func (w *Widths) Len() int {
	return len(w.cols)
}

// Snapshot returns a copy of the current widths
func (w *Widths) Snapshot() []int {
	out := make([]int, len(w.cols))
	copy(out, w.cols)
	return out
}
