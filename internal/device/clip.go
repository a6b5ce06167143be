package device

import (
	"fmt"
	"sync"
	"time"
)

// Clip is a transient playable buffer holding one received frame
type Clip struct {
	SampleRate int
	Channels   int
	Loop       bool

	samples  []float32
	disposed bool
	mu       sync.Mutex
}

// NewClip allocates a silent clip of sampleCount samples
func NewClip(sampleCount, channels, sampleRate int, loop bool) (*Clip, error) {
	if sampleCount < 0 || channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid clip format: %d samples, %d channels, %dHz", sampleCount, channels, sampleRate)
	}
	return &Clip{
		SampleRate: sampleRate,
		Channels:   channels,
		Loop:       loop,
		samples:    make([]float32, sampleCount*channels),
	}, nil
}

// WriteSamples copies samples into the clip starting at offset
func (c *Clip) WriteSamples(samples []float32, offset int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return ErrDisposed
	}
	if offset < 0 || offset+len(samples) > len(c.samples) {
		return fmt.Errorf("write of %d samples at %d overflows clip of %d", len(samples), offset, len(c.samples))
	}
	copy(c.samples[offset:], samples)
	return nil
}

// Samples returns a copy of the clip contents
func (c *Clip) Samples() []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float32, len(c.samples))
	copy(out, c.samples)
	return out
}

// Len returns the clip length in samples
func (c *Clip) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// Duration returns the playing time of the clip
func (c *Clip) Duration() time.Duration {
	frames := c.Len() / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Dispose releases the clip buffer. It is safe to call more than once.
func (c *Clip) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposed = true
	c.samples = nil
}

// IsDisposed returns whether the clip was released
func (c *Clip) IsDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// ReadAt copies clip samples starting at pos into dst and returns how many were copied
func (c *Clip) ReadAt(dst []float32, pos int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || pos >= len(c.samples) {
		return 0
	}
	return copy(dst, c.samples[pos:])
}
