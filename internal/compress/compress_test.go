package compress_test

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankogit/purevoip/internal/audio"
	"github.com/ankogit/purevoip/internal/compress"
)

func payloads() map[string][]byte {
	frame := make([]float32, 2700)
	for i := range frame {
		frame[i] = float32(math.Sin(float64(i)*0.02)) * 30
	}
	noise := make([]byte, 4096)
	for i := range noise {
		noise[i] = byte(i*7919 + i>>3)
	}
	return map[string][]byte{
		"empty":   {},
		"nil":     nil,
		"one":     {0x42},
		"silence": make([]byte, 10800),
		"frame":   audio.Encode(frame),
		"noise":   noise,
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{compress.NameS2, compress.NameZstd} {
		c, err := compress.New(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())

		for pname, p := range payloads() {
			t.Run(name+"/"+pname, func(t *testing.T) {
				out, err := c.Decompress(c.Compress(p))
				require.NoError(t, err)
				assert.True(t, bytes.Equal(p, out), "round trip changed %d bytes into %d", len(p), len(out))
			})
		}
	}
}

func TestResultDoesNotAliasInput(t *testing.T) {
	t.Parallel()

	for _, name := range []string{compress.NameS2, compress.NameZstd} {
		c, err := compress.New(name)
		require.NoError(t, err)

		for pname, p := range payloads() {
			t.Run(name+"/"+pname, func(t *testing.T) {
				want := append([]byte(nil), p...)
				src := append([]byte(nil), p...)

				packed := c.Compress(src)
				for i := range src {
					src[i] ^= 0xff
				}
				kept := append([]byte(nil), packed...)

				out, err := c.Decompress(packed)
				require.NoError(t, err)
				for i := range packed {
					packed[i] = 0
				}
				assert.True(t, bytes.Equal(want, out), "%s output changed after its input was overwritten", pname)

				again, err := c.Decompress(kept)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(want, again))
			})
		}
	}
}

func TestEmptyRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{compress.NameS2, compress.NameZstd} {
		c, err := compress.New(name)
		require.NoError(t, err)

		out, err := c.Decompress(c.Compress([]byte{}))
		require.NoError(t, err)
		assert.Empty(t, out, name)
	}
}

func TestSilenceCompresses(t *testing.T) {
	t.Parallel()

	silence := make([]byte, 10800)
	for _, name := range []string{compress.NameS2, compress.NameZstd} {
		c, err := compress.New(name)
		require.NoError(t, err)
		assert.Less(t, len(c.Compress(silence)), len(silence)/10, name)
	}
}

func TestDecompress_Malformed(t *testing.T) {
	t.Parallel()

	garbage := []byte{0xff, 0xff, 0xff, 0xff, 0x01, 0x02, 0x03}
	for _, name := range []string{compress.NameS2, compress.NameZstd} {
		c, err := compress.New(name)
		require.NoError(t, err)

		_, err = c.Decompress(garbage)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, audio.ErrMalformedPayload), name)
	}
}

func TestNew_Unknown(t *testing.T) {
	t.Parallel()

	_, err := compress.New("lzf")
	assert.Error(t, err)

	c, err := compress.New("")
	require.NoError(t, err)
	assert.Equal(t, compress.NameS2, c.Name())
}

func TestPool_GetOrCreate(t *testing.T) {
	t.Parallel()

	p := compress.NewPool()
	defer p.Clear()

	var wg sync.WaitGroup
	got := make([]compress.Compressor, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := p.GetOrCreate(compress.NameZstd)
			assert.NoError(t, err)
			got[i] = c
		}(i)
	}
	wg.Wait()

	for _, c := range got[1:] {
		assert.Same(t, got[0], c)
	}

	p.Remove(compress.NameZstd)
	again, err := p.GetOrCreate(compress.NameZstd)
	require.NoError(t, err)
	assert.NotSame(t, got[0], again)

	_, err = p.GetOrCreate("bogus")
	assert.Error(t, err)
}
