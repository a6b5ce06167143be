package device

import (
	"fmt"
	"sync"
)

// Ring is the sample buffer a capture device records into.
// A device callback writes to it while the capture loop reads the cursor and samples.
type Ring struct {
	data   []float32
	cursor int
	loop   bool
	closed bool
	mu     sync.Mutex
}

// NewRing creates a ring of length samples
func NewRing(length int, loop bool) *Ring {
	return &Ring{
		data: make([]float32, length),
		loop: loop,
	}
}

// Write records samples at the cursor and returns how many were stored.
// A looping ring wraps to the start; a one-shot ring stops when full and
// its cursor stays at Len().
func (r *Ring) Write(samples []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || len(r.data) == 0 {
		return 0
	}

	written := 0
	for len(samples) > 0 {
		if r.cursor == len(r.data) {
			if !r.loop {
				break
			}
			r.cursor = 0
		}
		n := copy(r.data[r.cursor:], samples)
		r.cursor += n
		written += n
		samples = samples[n:]
	}

	if r.loop && r.cursor == len(r.data) {
		r.cursor = 0
	}
	return written
}

// Cursor returns the current write position
func (r *Ring) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Len returns the ring length in samples
func (r *Ring) Len() int {
	return len(r.data)
}

// ReadSamples copies count*channels samples starting at offset, wrapping at the end of the ring
func (r *Ring) ReadSamples(offset, count, channels int) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	n := count * channels
	if n < 0 || n > len(r.data) {
		return nil, fmt.Errorf("read of %d samples exceeds ring of %d", n, len(r.data))
	}
	if offset < 0 || offset >= len(r.data) {
		if n == 0 {
			return []float32{}, nil
		}
		return nil, fmt.Errorf("offset %d outside ring of %d", offset, len(r.data))
	}

	out := make([]float32, n)
	copied := copy(out, r.data[offset:])
	copy(out[copied:], r.data)
	return out, nil
}

// Close stops accepting writes and reads
func (r *Ring) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
