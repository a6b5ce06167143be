package device

import (
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed stream or device
	ErrClosed = errors.New("device closed")
	// ErrNoDevice is returned when the requested device does not exist
	ErrNoDevice = errors.New("no such device")
	// ErrDisposed is returned when writing to or playing a disposed clip
	ErrDisposed = errors.New("clip disposed")
)

// Capture is an audio input backend such as a microphone
type Capture interface {
	// Devices lists the ids of the available input devices.
	// An empty list means nothing can be recorded.
	Devices() []string

	// Open starts recording from deviceID ("" selects the default device) into
	// a ring buffer of maxLengthSeconds*sampleRate samples. With loop set, the
	// write cursor wraps to 0 when it reaches the end of the ring.
	Open(deviceID string, loop bool, maxLengthSeconds, sampleRate int) (CaptureStream, error)
}

// CaptureStream is an open recording
type CaptureStream interface {
	// Cursor returns the current write position in samples, in [0, Len())
	Cursor() int

	// ReadSamples copies count frames of channels samples starting at offset.
	// Reads past the end of the ring continue at its start.
	ReadSamples(offset, count, channels int) ([]float32, error)

	// Len returns the ring length in samples
	Len() int

	// Close stops recording and releases the device
	Close() error
}

// Playback is an audio output backend
type Playback interface {
	// CreateClip allocates a transient clip of sampleCount samples
	CreateClip(sampleCount, channels, sampleRate int, loop bool) (*Clip, error)

	// Play makes clip the current output, replacing whatever was playing
	Play(clip *Clip) error

	// DisposeAfter releases clip once delay has passed
	DisposeAfter(clip *Clip, delay time.Duration)
}
