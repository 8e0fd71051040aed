package source

import "sync"

// Ring is a fixed-capacity circular buffer of raw samples. It keeps the
// most recent audio around an alert so a dump of the window can be
// written out after the fact. Writes overwrite the oldest data.
// It is safe for concurrent use.
type Ring struct {
	mu       sync.Mutex
	data     []int16
	writePos int
	size     int
}

// NewRing creates a ring holding up to capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{data: make([]int16, capacity)}
}

// Write appends samples, overwriting the oldest when full.
func (r *Ring) Write(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(samples)
	if n == 0 {
		return
	}

	capacity := len(r.data)
	if n >= capacity {
		// Only the newest capacity samples survive.
		copy(r.data, samples[n-capacity:])
		r.writePos = 0
		r.size = capacity
		return
	}

	spaceToEnd := capacity - r.writePos
	if n <= spaceToEnd {
		copy(r.data[r.writePos:], samples)
		r.writePos = (r.writePos + n) % capacity
	} else {
		copy(r.data[r.writePos:], samples[:spaceToEnd])
		copy(r.data, samples[spaceToEnd:])
		r.writePos = n - spaceToEnd
	}

	r.size = min(r.size+n, capacity)
}

// Snapshot returns the buffered samples in chronological order without
// modifying the ring.
func (r *Ring) Snapshot() []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}

	out := make([]int16, r.size)
	if r.size < len(r.data) {
		copy(out, r.data[:r.size])
	} else {
		n := copy(out, r.data[r.writePos:])
		copy(out[n:], r.data[:r.writePos])
	}
	return out
}

// Clear empties the ring.
func (r *Ring) Clear() {
	r.mu.Lock()
	r.writePos = 0
	r.size = 0
	r.mu.Unlock()
}

// Size returns the number of buffered samples.
func (r *Ring) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
