package audio

import "time"

const (
	// SampleRate is the capture and playback sample rate (8kHz narrowband)
	SampleRate = 8000
	// Channels is the number of audio channels (mono)
	Channels = 1
	// SampleDivisor splits one second of audio into frames (8000 / 3 = 2666 samples, ~333ms)
	SampleDivisor = 3
	// RecordLength is the capture ring length in seconds
	RecordLength = 60
	// DefaultGain is the multiplier applied to captured samples before encoding
	DefaultGain = 30.0
	// BytesPerSample is the size of one encoded float32 sample
	BytesPerSample = 4
)

// FrameThreshold returns the minimum number of new samples needed to emit a frame
func FrameThreshold(sampleRate, divisor int) int {
	if divisor <= 0 {
		return sampleRate
	}
	return sampleRate / divisor
}

// Frame is one chunk of mono samples produced by a single capture extraction
type Frame []float32

// Duration returns how long the frame plays at the given sample rate
func (f Frame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f)) * time.Second / time.Duration(sampleRate)
}
