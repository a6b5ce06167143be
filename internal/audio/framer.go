package audio

import (
	"fmt"
	"strings"
)

// Source is a capture ring that exposes its write cursor and raw samples
type Source interface {
	Cursor() int
	ReadSamples(offset, count, channels int) ([]float32, error)
	Len() int
}

// WrapPolicy decides how the framer reacts when the capture cursor wraps around the ring
type WrapPolicy int

const (
	// WrapModular measures the distance between cursors modulo the ring length
	WrapModular WrapPolicy = iota
	// WrapReset restarts from offset 0 whenever the cursor is inside the first frame of the ring
	WrapReset
)

// String returns the configuration name of the policy
func (p WrapPolicy) String() string {
	switch p {
	case WrapModular:
		return "modular"
	case WrapReset:
		return "reset"
	default:
		return "unknown"
	}
}

// ParseWrapPolicy parses a policy name as used in configuration
func ParseWrapPolicy(s string) (WrapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "modular":
		return WrapModular, nil
	case "reset":
		return WrapReset, nil
	default:
		return WrapModular, fmt.Errorf("unknown wrap policy %q", s)
	}
}

// Framer cuts the capture ring into frames of at least threshold samples.
// It is driven by a single capture goroutine and is not safe for concurrent use.
type Framer struct {
	threshold int
	channels  int
	gain      float32
	policy    WrapPolicy
	lastSent  int
}

// NewFramer creates a framer for mono capture at sampleRate
func NewFramer(sampleRate, divisor int, gain float32, policy WrapPolicy) *Framer {
	return &Framer{
		threshold: FrameThreshold(sampleRate, divisor),
		channels:  Channels,
		gain:      gain,
		policy:    policy,
	}
}

// Threshold returns the minimum frame length in samples
func (f *Framer) Threshold() int {
	return f.threshold
}

// LastSent returns the ring offset where the next frame starts
func (f *Framer) LastSent() int {
	return f.lastSent
}

// Reset forgets the previous position, so the next frame starts at offset 0
func (f *Framer) Reset() {
	f.lastSent = 0
}

// Advance decides whether enough samples were written since the last frame.
// When it returns ok, the frame covers count samples starting at offset and
// the framer has already moved past them.
func (f *Framer) Advance(cursor, ringLen int) (offset, count int, ok bool) {
	var delta int
	switch f.policy {
	case WrapReset:
		// the ring most likely restarted
		if cursor <= f.threshold {
			f.lastSent = 0
		}
		delta = cursor - f.lastSent
	default:
		delta = cursor - f.lastSent
		if delta < 0 && ringLen > 0 {
			delta += ringLen
		}
	}

	if delta < f.threshold {
		return 0, 0, false
	}

	offset = f.lastSent
	f.lastSent = cursor
	return offset, delta, true
}

// Poll reads the cursor of src and returns the next frame with gain applied,
// or nil when fewer than Threshold samples are pending.
func (f *Framer) Poll(src Source) (Frame, error) {
	offset, count, ok := f.Advance(src.Cursor(), src.Len())
	if !ok {
		return nil, nil
	}

	samples, err := src.ReadSamples(offset, count, f.channels)
	if err != nil {
		return nil, fmt.Errorf("failed to read %d samples at offset %d: %w", count, offset, err)
	}

	ApplyGain(samples, f.gain)
	return samples, nil
}
