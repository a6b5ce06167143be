package wavfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	"github.com/ankogit/purevoip/internal/device"
)

// feedInterval is how often the source pushes samples into the capture ring (20ms like a sound card period)
const feedInterval = 20 * time.Millisecond

// Source replays a WAV file in real time as if it was a microphone
type Source struct {
	samples    []float32
	sampleRate int
	interval   time.Duration
}

// Load decodes a WAV file and converts it to mono float32 at sampleRate
func Load(path string, sampleRate int) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav input: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid wav file", path)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav input: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%s has no usable audio format", path)
	}

	mono := toMonoFloat(buf, int(d.BitDepth))
	if len(mono) == 0 {
		return nil, fmt.Errorf("%s contains no samples", path)
	}

	return NewSource(Resample(mono, buf.Format.SampleRate, sampleRate), sampleRate), nil
}

// NewSource creates a looping source from samples already at sampleRate
func NewSource(samples []float32, sampleRate int) *Source {
	return &Source{
		samples:    samples,
		sampleRate: sampleRate,
		interval:   feedInterval,
	}
}

// Len returns the number of samples in one pass of the file
func (s *Source) Len() int {
	return len(s.samples)
}

// Feed writes samples into ring at the real-time rate, looping over the file, until ctx is done
func (s *Source) Feed(ctx context.Context, ring *device.Ring) error {
	if len(s.samples) == 0 {
		return fmt.Errorf("wav source is empty")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	start := time.Now()
	pos := 0
	written := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			// catch up with the wall clock so the cursor never drifts
			due := int(now.Sub(start).Seconds() * float64(s.sampleRate))
			for written < due {
				n := due - written
				if rest := len(s.samples) - pos; n > rest {
					n = rest
				}
				ring.Write(s.samples[pos : pos+n])
				written += n
				pos = (pos + n) % len(s.samples)
			}
		}
	}
}

// NewCapture creates a capture backend that replays the WAV file at path
func NewCapture(path string, sampleRate int, logger *logrus.Logger) (*device.RingCapture, error) {
	src, err := Load(path, sampleRate)
	if err != nil {
		return nil, err
	}
	logger.Infof("[%s] Loaded %d samples (%v) for capture", filepath.Base(path), src.Len(),
		time.Duration(src.Len())*time.Second/time.Duration(sampleRate))
	return device.NewRingCapture([]string{filepath.Base(path)}, src, logger), nil
}

// toMonoFloat normalises integer PCM to [-1, 1] and averages channels
func toMonoFloat(buf *goaudio.IntBuffer, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << uint(bitDepth-1))
	channels := buf.Format.NumChannels

	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			v := buf.Data[i*channels+ch]
			// 8-bit wav is unsigned
			if bitDepth == 8 {
				v -= 128
			}
			sum += float32(v) / scale
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear interpolation.
// If the rates match, the input is returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}

	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := float32(srcPos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
