// Package differ suppresses near-duplicate frames.
//
// The check is a byte-level heuristic for cutting delivery volume: it is
// O(len(frame)) per comparison and deliberately blind to changes touching
// fewer than Threshold bytes.
package differ

// DefaultThreshold is the number of differing bytes a frame may have and
// still count as unchanged.
const DefaultThreshold = 10_000

// Differ remembers the last accepted frame and decides whether the next one
// differs enough to deliver. It is not safe for concurrent use.
type Differ struct {
	threshold int
	last      []byte
	hasLast   bool
}

// New returns a Differ. A negative threshold is treated as zero.
func New(threshold int) *Differ {
	if threshold < 0 {
		threshold = 0
	}
	return &Differ{threshold: threshold}
}

// Threshold returns the configured threshold.
func (d *Differ) Threshold() int {
	return d.threshold
}

// Accept reports whether frame should be delivered. On acceptance the
// Differ keeps its own copy of frame; the caller keeps ownership of frame.
func (d *Differ) Accept(frame []byte) bool {
	if d.hasLast && !Changed(d.last, frame, d.threshold) {
		return false
	}
	d.retain(frame)
	return true
}

// Reset forgets the last accepted frame, so the next one is always accepted.
func (d *Differ) Reset() {
	d.last = d.last[:0]
	d.hasLast = false
}

func (d *Differ) retain(frame []byte) {
	if cap(d.last) >= len(frame) {
		d.last = d.last[:len(frame)]
	} else {
		d.last = make([]byte, len(frame))
	}
	copy(d.last, frame)
	d.hasLast = true
}

// Changed reports whether cur differs from prev by more than threshold
// bytes. Buffers of different length always count as changed.
func Changed(prev, cur []byte, threshold int) bool {
	if len(prev) != len(cur) {
		return true
	}
	return CountDiff(prev, cur, threshold) > threshold
}

// CountDiff counts byte positions where a and b differ, stopping as soon as
// the count exceeds limit. Only the common prefix is compared.
func CountDiff(a, b []byte, limit int) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	a, b = a[:n], b[:n]

	count := 0
	for i := range a {
		if a[i] != b[i] {
			count++
			if count > limit {
				return count
			}
		}
	}
	return count
}
