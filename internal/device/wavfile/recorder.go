package wavfile

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ankogit/purevoip/internal/device"
)

const (
	bitDepth       = 16
	wavFormatPCM   = 1
	maxInt16Sample = math.MaxInt16
)

// Recorder is a playback backend that appends every played clip to a 16-bit PCM WAV file
type Recorder struct {
	file       *os.File
	encoder    *wav.Encoder
	sampleRate int
	timers     map[*device.Clip]*time.Timer
	written    int
	closed     bool
	mu         sync.Mutex
}

// NewRecorder creates the WAV file at path
func NewRecorder(path string, sampleRate int) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav output: %w", err)
	}

	return &Recorder{
		file:       f,
		encoder:    wav.NewEncoder(f, sampleRate, bitDepth, 1, wavFormatPCM),
		sampleRate: sampleRate,
		timers:     make(map[*device.Clip]*time.Timer),
	}, nil
}

// CreateClip allocates a clip
func (r *Recorder) CreateClip(sampleCount, channels, sampleRate int, loop bool) (*device.Clip, error) {
	return device.NewClip(sampleCount, channels, sampleRate, loop)
}

// Play appends the clip to the file
func (r *Recorder) Play(clip *device.Clip) error {
	if clip.IsDisposed() {
		return device.ErrDisposed
	}
	if clip.Channels != 1 || clip.SampleRate != r.sampleRate {
		return fmt.Errorf("recorder expects mono %dHz, got %d channels at %dHz", r.sampleRate, clip.Channels, clip.SampleRate)
	}

	samples := clip.Samples()
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = toInt16(s)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return device.ErrClosed
	}

	err := r.encoder.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: r.sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	})
	if err != nil {
		return fmt.Errorf("failed to write wav samples: %w", err)
	}
	r.written += len(data)
	return nil
}

// DisposeAfter disposes clip after delay
func (r *Recorder) DisposeAfter(clip *device.Clip, delay time.Duration) {
	if delay <= 0 {
		clip.Dispose()
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers[clip] = time.AfterFunc(delay, func() {
		clip.Dispose()
		r.mu.Lock()
		delete(r.timers, clip)
		r.mu.Unlock()
	})
}

// Written returns the number of samples written so far
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Close finalises the WAV header and closes the file
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	for clip, timer := range r.timers {
		timer.Stop()
		clip.Dispose()
		delete(r.timers, clip)
	}

	if err := r.encoder.Close(); err != nil {
		_ = r.file.Close()
		return fmt.Errorf("failed to finalise wav output: %w", err)
	}
	return r.file.Close()
}

// toInt16 clips a float sample to the 16-bit range
func toInt16(s float32) int {
	v := float64(s) * maxInt16Sample
	if v > maxInt16Sample {
		return maxInt16Sample
	}
	if v < -maxInt16Sample-1 {
		return -maxInt16Sample - 1
	}
	return int(v)
}
