package audio_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankogit/purevoip/internal/audio"
)

func TestEncode_Layout(t *testing.T) {
	t.Parallel()

	got := audio.Encode([]float32{1.0, -2.5})
	// 1.0 = 0x3F800000, -2.5 = 0xC0200000, little-endian
	want := []byte{0x00, 0x00, 0x80, 0x3F, 0x00, 0x00, 0x20, 0xC0}
	assert.Equal(t, want, got)
}

func TestEncodeDecode_RoundTripBitExact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []float32
	}{
		{name: "empty", samples: []float32{}},
		{name: "single", samples: []float32{0.25}},
		{name: "signed zeros", samples: []float32{0, float32(math.Copysign(0, -1))}},
		{name: "extremes", samples: []float32{math.MaxFloat32, -math.MaxFloat32, math.SmallestNonzeroFloat32}},
		{name: "infinities", samples: []float32{float32(math.Inf(1)), float32(math.Inf(-1))}},
		{name: "nan payload", samples: []float32{math.Float32frombits(0x7FC00001), math.Float32frombits(0xFFC00123)}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			encoded := audio.Encode(tt.samples)
			require.Len(t, encoded, 4*len(tt.samples))

			decoded, err := audio.Decode(encoded)
			require.NoError(t, err)
			require.Len(t, decoded, len(tt.samples))
			for i := range tt.samples {
				assert.Equalf(t, math.Float32bits(tt.samples[i]), math.Float32bits(decoded[i]), "sample %d", i)
			}
		})
	}
}

func TestEncodeDecode_Sweep(t *testing.T) {
	t.Parallel()

	samples := make([]float32, audio.FrameThreshold(audio.SampleRate, audio.SampleDivisor))
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i)*0.05)) * 30
	}

	decoded, err := audio.Decode(audio.Encode(samples))
	require.NoError(t, err)
	assert.Equal(t, audio.Frame(samples), decoded)
}

func TestDecode_RejectsUnalignedPayload(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 3, 5, 10003} {
		_, err := audio.Decode(make([]byte, n))
		require.Errorf(t, err, "len %d", n)
		assert.True(t, errors.Is(err, audio.ErrMalformedPayload))
	}
}

func TestEncodePooled(t *testing.T) {
	t.Parallel()

	samples := []float32{0.5, -0.5, 1}
	buf := audio.EncodePooled(samples)
	defer audio.PutPayload(buf)

	assert.Equal(t, audio.Encode(samples), buf)
}

func TestApplyGain(t *testing.T) {
	t.Parallel()

	samples := []float32{0.1, -0.2, 0}
	audio.ApplyGain(samples, 30)
	assert.InDeltaSlice(t, []float64{3, -6, 0}, []float64{float64(samples[0]), float64(samples[1]), float64(samples[2])}, 1e-5)
}

func TestFrame_Duration(t *testing.T) {
	t.Parallel()

	f := make(audio.Frame, 2666)
	assert.Equal(t, int64(333250), f.Duration(audio.SampleRate).Microseconds())
	assert.Zero(t, f.Duration(0))
}
