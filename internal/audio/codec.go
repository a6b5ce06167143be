package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedPayload is returned when a payload cannot be turned back into samples
var ErrMalformedPayload = errors.New("malformed payload")

// EncodedLen returns the number of bytes needed to encode n samples
func EncodedLen(n int) int {
	return n * BytesPerSample
}

// Encode converts samples to little-endian IEEE-754 bytes, 4 bytes per sample
func Encode(samples []float32) []byte {
	out := make([]byte, EncodedLen(len(samples)))
	EncodeTo(out, samples)
	return out
}

// EncodeTo writes the encoded samples into dst and returns the number of bytes written.
// dst must hold at least EncodedLen(len(samples)) bytes.
func EncodeTo(dst []byte, samples []float32) int {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*BytesPerSample:], math.Float32bits(s))
	}
	return EncodedLen(len(samples))
}

// Decode converts an encoded payload back to samples.
// A payload whose length is not a multiple of 4 is rejected instead of truncated.
func Decode(payload []byte) (Frame, error) {
	if len(payload)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedPayload, len(payload), BytesPerSample)
	}

	samples := make(Frame, len(payload)/BytesPerSample)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*BytesPerSample:]))
	}
	return samples, nil
}

// ApplyGain multiplies every sample by gain in place
func ApplyGain(samples []float32, gain float32) {
	if gain == 1 {
		return
	}
	for i := range samples {
		samples[i] *= gain
	}
}
