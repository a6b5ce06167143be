package device

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Feeder produces samples into an open ring until ctx is cancelled
type Feeder interface {
	Feed(ctx context.Context, ring *Ring) error
}

// FeederFunc adapts a function to the Feeder interface
type FeederFunc func(ctx context.Context, ring *Ring) error

// Feed calls f
func (f FeederFunc) Feed(ctx context.Context, ring *Ring) error {
	return f(ctx, ring)
}

// RingCapture is a capture backend whose samples come from a Feeder goroutine
type RingCapture struct {
	names  []string
	feeder Feeder
	logger *logrus.Logger
}

// NewRingCapture creates a capture backend exposing the given device names
func NewRingCapture(names []string, feeder Feeder, logger *logrus.Logger) *RingCapture {
	return &RingCapture{
		names:  names,
		feeder: feeder,
		logger: logger,
	}
}

// Devices returns the configured device names
func (c *RingCapture) Devices() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Open starts the feeder on a fresh ring
func (c *RingCapture) Open(deviceID string, loop bool, maxLengthSeconds, sampleRate int) (CaptureStream, error) {
	if !hasDevice(c.names, deviceID) {
		return nil, ErrNoDevice
	}

	ring := NewRing(maxLengthSeconds*sampleRate, loop)
	ctx, cancel := context.WithCancel(context.Background())
	s := &ringStream{
		Ring:   ring,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		err := c.feeder.Feed(ctx, ring)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.WithError(err).Warnf("[%s] Capture feeder stopped", deviceName(deviceID))
		}
	}()

	return s, nil
}

type ringStream struct {
	*Ring
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops the feeder, waits for it and closes the ring
func (s *ringStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		_ = s.Ring.Close()
	})
	return nil
}

func hasDevice(names []string, id string) bool {
	if len(names) == 0 {
		return false
	}
	if id == "" {
		return true
	}
	for _, n := range names {
		if n == id {
			return true
		}
	}
	return false
}

func deviceName(id string) string {
	if id == "" {
		return "default"
	}
	return id
}
