package miniaudio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"

	"github.com/ankogit/purevoip/internal/audio"
	"github.com/ankogit/purevoip/internal/device"
)

// Backend records from and plays to the sound card through miniaudio.
// One backend serves both directions of a peer.
type Backend struct {
	ctx    *malgo.AllocatedContext
	logger *logrus.Logger

	// playback state, touched by the device callback
	out     *malgo.Device
	outRate int
	current *device.Clip
	pos     int
	scratch []float32
	timers  map[*device.Clip]*time.Timer
	mu      sync.Mutex
}

// New initialises the miniaudio context
func New(logger *logrus.Logger) (*Backend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debugf("[miniaudio] %s", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	return &Backend{
		ctx:    ctx,
		logger: logger,
		timers: make(map[*device.Clip]*time.Timer),
	}, nil
}

// Devices lists the capture device names
func (b *Backend) Devices() []string {
	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		b.logger.WithError(err).Warn("Failed to enumerate capture devices")
		return nil
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names
}

// Open starts recording mono float32 samples into a ring
func (b *Backend) Open(deviceID string, loop bool, maxLengthSeconds, sampleRate int) (device.CaptureStream, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = audio.Channels
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	if deviceID != "" {
		infos, err := b.ctx.Devices(malgo.Capture)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
		}
		found := false
		for _, info := range infos {
			if info.Name() == deviceID {
				cfg.Capture.DeviceID = info.ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			return nil, device.ErrNoDevice
		}
	}

	ring := device.NewRing(maxLengthSeconds*sampleRate, loop)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * audio.Channels * audio.BytesPerSample
			if n > len(input) {
				n = len(input) - len(input)%audio.BytesPerSample
			}
			samples, err := audio.Decode(input[:n])
			if err != nil {
				return
			}
			ring.Write(samples)
		},
	}

	dev, err := malgo.InitDevice(b.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	return &captureStream{Ring: ring, dev: dev}, nil
}

type captureStream struct {
	*device.Ring
	dev  *malgo.Device
	once sync.Once
}

func (s *captureStream) Close() error {
	s.once.Do(func() {
		s.dev.Uninit()
		_ = s.Ring.Close()
	})
	return nil
}

// CreateClip allocates a clip
func (b *Backend) CreateClip(sampleCount, channels, sampleRate int, loop bool) (*device.Clip, error) {
	return device.NewClip(sampleCount, channels, sampleRate, loop)
}

// Play switches the output to clip, starting the playback device on first use
func (b *Backend) Play(clip *device.Clip) error {
	if clip.IsDisposed() {
		return device.ErrDisposed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.out == nil {
		if err := b.startOutput(clip.SampleRate, clip.Channels); err != nil {
			return err
		}
	} else if clip.SampleRate != b.outRate {
		return fmt.Errorf("playback device runs at %dHz, clip is %dHz", b.outRate, clip.SampleRate)
	}

	b.current = clip
	b.pos = 0
	return nil
}

// startOutput must be called with b.mu held
func (b *Backend) startOutput(sampleRate, channels int) error {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{Data: b.fill})
	if err != nil {
		return fmt.Errorf("failed to init playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	b.out = dev
	b.outRate = sampleRate
	return nil
}

// fill is the playback callback: it copies the current clip into the output and pads with silence
func (b *Backend) fill(output, _ []byte, frameCount uint32) {
	n := len(output) / audio.BytesPerSample

	b.mu.Lock()
	if cap(b.scratch) < n {
		b.scratch = make([]float32, n)
	}
	buf := b.scratch[:n]
	copied := 0
	if b.current != nil {
		copied = b.current.ReadAt(buf, b.pos)
		b.pos += copied
	}
	for i := copied; i < n; i++ {
		buf[i] = 0
	}
	audio.EncodeTo(output, buf)
	b.mu.Unlock()
}

// DisposeAfter disposes clip after delay
func (b *Backend) DisposeAfter(clip *device.Clip, delay time.Duration) {
	if delay <= 0 {
		clip.Dispose()
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.timers[clip] = time.AfterFunc(delay, func() {
		clip.Dispose()
		b.mu.Lock()
		delete(b.timers, clip)
		b.mu.Unlock()
	})
}

// Close stops playback and releases the audio context
func (b *Backend) Close() error {
	b.mu.Lock()
	out := b.out
	b.out = nil
	b.current = nil
	for clip, timer := range b.timers {
		timer.Stop()
		clip.Dispose()
		delete(b.timers, clip)
	}
	b.mu.Unlock()

	// Uninit waits for the callback, which takes b.mu
	if out != nil {
		out.Uninit()
	}

	err := b.ctx.Uninit()
	b.ctx.Free()
	if err != nil {
		return fmt.Errorf("failed to release audio context: %w", err)
	}
	return nil
}
