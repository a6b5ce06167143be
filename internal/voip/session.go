package voip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ankogit/purevoip/internal/audio"
	"github.com/ankogit/purevoip/internal/compress"
	"github.com/ankogit/purevoip/internal/device"
	"github.com/ankogit/purevoip/internal/metrics"
	"github.com/ankogit/purevoip/internal/transport"
)

const (
	readyPollMin = time.Millisecond
	readyPollMax = 50 * time.Millisecond
)

// Config holds the session parameters
type Config struct {
	PeerID        string
	DeviceID      string
	SampleRate    int
	Channels      int
	Divisor       int
	RecordLength  int
	Gain          float32
	TickInterval  time.Duration
	ReadyTimeout  time.Duration
	QueueCapacity int
	DisposeDelay  time.Duration
	Pacing        Pacing
	WrapPolicy    audio.WrapPolicy
}

// DefaultConfig returns the default session parameters
func DefaultConfig() Config {
	return Config{
		PeerID:        "local",
		SampleRate:    audio.SampleRate,
		Channels:      audio.Channels,
		Divisor:       audio.SampleDivisor,
		RecordLength:  audio.RecordLength,
		Gain:          audio.DefaultGain,
		TickInterval:  20 * time.Millisecond,
		ReadyTimeout:  5 * time.Second,
		QueueCapacity: 16,
		DisposeDelay:  time.Second,
		Pacing:        PacingDuration,
		WrapPolicy:    audio.WrapModular,
	}
}

// Deps are the collaborators a session drives. Capture may be nil for a receive only peer.
type Deps struct {
	Capture    device.Capture
	Playback   device.Playback
	Transport  transport.Transport
	Compressor compress.Compressor
	Metrics    *metrics.Metrics
}

// Session connects the local capture and playback devices to the other peers
type Session struct {
	cfg     Config
	deps    Deps
	metrics *metrics.Metrics
	logger  *logrus.Logger

	framer    *audio.Framer
	tx        *Transmitter
	rx        *Receiver
	queue     *JitterQueue
	scheduler *PlaybackScheduler

	state    atomic.Int32
	captured atomic.Uint64

	// mu serializes transmission start and stop
	mu            sync.Mutex
	stream        device.CaptureStream
	captureCancel context.CancelFunc
	captureWG     sync.WaitGroup
	closed        bool

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a session and registers its receiver with the transport
func New(cfg Config, deps Deps, logger *logrus.Logger) (*Session, error) {
	if deps.Playback == nil {
		return nil, fmt.Errorf("playback backend is required")
	}
	if deps.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if deps.Compressor == nil {
		return nil, fmt.Errorf("compressor is required")
	}
	if cfg.SampleRate <= 0 || cfg.Divisor <= 0 || cfg.RecordLength <= 0 {
		return nil, fmt.Errorf("invalid audio parameters: rate %d, divisor %d, record length %d",
			cfg.SampleRate, cfg.Divisor, cfg.RecordLength)
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive")
	}
	if cfg.Channels <= 0 {
		cfg.Channels = audio.Channels
	}

	m := deps.Metrics
	if m == nil {
		m = metrics.NewUnregistered()
	}

	queue := NewJitterQueue(cfg.QueueCapacity)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		cfg:     cfg,
		deps:    deps,
		metrics: m,
		logger:  logger,
		framer:  audio.NewFramer(cfg.SampleRate, cfg.Divisor, cfg.Gain, cfg.WrapPolicy),
		tx:      NewTransmitter(deps.Transport, deps.Compressor, m, logger, cfg.PeerID),
		rx:      NewReceiver(deps.Compressor, queue, m, logger, cfg.PeerID),
		queue:   queue,
		scheduler: NewPlaybackScheduler(PlaybackConfig{
			SampleRate:   cfg.SampleRate,
			Channels:     cfg.Channels,
			DisposeDelay: cfg.DisposeDelay,
			Pacing:       cfg.Pacing,
			Slack:        cfg.TickInterval,
		}, queue, deps.Playback, m, logger, cfg.PeerID),
		ctx:    ctx,
		cancel: cancel,
	}

	deps.Transport.Handle(transport.MethodReceiveSamples, s.rx.OnReceive)
	return s, nil
}

// Start runs the playback loop until Close
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.WithField("panic", r).Errorf("[%s] Panic in playback loop", s.cfg.PeerID)
				}
			}()
			s.scheduler.Run(s.ctx, s.cfg.TickInterval)
		}()

		s.logger.Infof("[%s] Session started (rate %d Hz, frame threshold %d samples, pacing %s)",
			s.cfg.PeerID, s.cfg.SampleRate, s.framer.Threshold(), s.cfg.Pacing)
	})
}

// StartTransmission opens the capture device and starts sending frames.
// A running transmission is fully stopped first.
func (s *Session) StartTransmission(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.stopLocked()

	capture := s.deps.Capture
	if capture == nil || len(capture.Devices()) == 0 {
		s.logger.Errorf("[%s] No capture device available", s.cfg.PeerID)
		return ErrDeviceUnavailable
	}

	stream, err := capture.Open(s.cfg.DeviceID, true, s.cfg.RecordLength, s.cfg.SampleRate)
	if err != nil {
		s.logger.WithError(err).Errorf("[%s] Failed to open capture device", s.cfg.PeerID)
		if errors.Is(err, device.ErrNoDevice) {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return fmt.Errorf("failed to open capture device: %w", err)
	}

	if err := s.waitReady(ctx, stream); err != nil {
		_ = stream.Close()
		s.logger.WithError(err).Errorf("[%s] Capture device did not start", s.cfg.PeerID)
		return err
	}

	s.framer.Reset()
	loopCtx, cancel := context.WithCancel(s.ctx)
	s.stream = stream
	s.captureCancel = cancel
	s.setState(StateTransmitting)

	s.captureWG.Add(1)
	go s.captureLoop(loopCtx, stream)

	s.logger.Infof("[%s] Transmission started", s.cfg.PeerID)
	return nil
}

// waitReady polls the cursor with growing pauses until the device has written its first samples
func (s *Session) waitReady(ctx context.Context, stream device.CaptureStream) error {
	deadline := time.NewTimer(s.cfg.ReadyTimeout)
	defer deadline.Stop()

	delay := readyPollMin
	for stream.Cursor() == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %v", ErrDeviceNotReady, s.cfg.ReadyTimeout)
		case <-time.After(delay):
		}
		delay = min(delay*2, readyPollMax)
	}
	return nil
}

func (s *Session) captureLoop(ctx context.Context, stream device.CaptureStream) {
	defer s.captureWG.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Errorf("[%s] Panic in capture loop", s.cfg.PeerID)
		}
	}()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := s.framer.Poll(stream)
		if err != nil {
			s.logger.WithError(err).Warnf("[%s] Skipping capture frame", s.cfg.PeerID)
			continue
		}
		if frame == nil {
			continue
		}

		s.captured.Add(1)
		s.metrics.FramesCaptured.Inc()
		s.tx.SendFrame(frame)
	}
}

// StopTransmission stops sending and closes the capture device. It is a no-op while idle.
func (s *Session) StopTransmission() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.State() != StateTransmitting {
		return
	}

	s.captureCancel()
	s.captureWG.Wait()
	if err := s.stream.Close(); err != nil {
		s.logger.WithError(err).Warnf("[%s] Failed to close capture device", s.cfg.PeerID)
	}

	s.stream = nil
	s.captureCancel = nil
	s.setState(StateIdle)
	s.logger.Infof("[%s] Transmission stopped", s.cfg.PeerID)
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	if st == StateTransmitting {
		s.metrics.Transmitting.Set(1)
	} else {
		s.metrics.Transmitting.Set(0)
	}
}

// State returns the transmission state
func (s *Session) State() State {
	return State(s.state.Load())
}

// IsTransmitting reports whether the capture loop is running
func (s *Session) IsTransmitting() bool {
	return s.State() == StateTransmitting
}

// Queue returns the jitter queue fed by the receiver
func (s *Session) Queue() *JitterQueue {
	return s.queue
}

// Stats returns a snapshot of the session counters
func (s *Session) Stats() Stats {
	return Stats{
		State:           s.State(),
		FramesCaptured:  s.captured.Load(),
		FramesSent:      s.tx.Sent(),
		SendFailures:    s.tx.Failed(),
		FramesReceived:  s.rx.Received(),
		FramesMalformed: s.rx.Malformed(),
		FramesDropped:   s.rx.Overflow() + s.scheduler.Failed(),
		FramesPlayed:    s.scheduler.Played(),
		QueueDepth:      s.queue.Len(),
	}
}

// Close stops transmission and playback and unregisters from the transport.
// The transport itself is left open.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()

	s.deps.Transport.Handle(transport.MethodReceiveSamples, nil)
	s.cancel()
	s.wg.Wait()
	s.queue.Clear()
	s.metrics.QueueDepth.Set(0)

	s.logger.Infof("[%s] Session closed", s.cfg.PeerID)
	return nil
}
