package discord

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragment_Reassemble(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		size  int
		count int
	}{
		{name: "empty", size: 0, count: 1},
		{name: "single", size: 10, count: 1},
		{name: "exact chunk", size: maxChunk, count: 1},
		{name: "multi", size: 2*maxChunk + 1, count: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte{0xAB}, tt.size)
			pkts, err := fragment(7, payload)
			require.NoError(t, err)
			require.Len(t, pkts, tt.count)

			r := newReassembler()
			for i, pkt := range pkts {
				got, done, err := r.add(1, pkt)
				require.NoError(t, err)
				if i < len(pkts)-1 {
					assert.False(t, done)
					continue
				}
				require.True(t, done)
				assert.Equal(t, payload, got)
			}
		})
	}
}

func TestFragment_TooLarge(t *testing.T) {
	t.Parallel()

	_, err := fragment(0, make([]byte, maxChunk*maxFragments+1))
	assert.Error(t, err)
}

func TestReassembler_LostFragmentLosesOneMessage(t *testing.T) {
	t.Parallel()

	first, err := fragment(1, bytes.Repeat([]byte{1}, maxChunk+1))
	require.NoError(t, err)
	second, err := fragment(2, []byte{2, 2})
	require.NoError(t, err)

	r := newReassembler()
	_, done, err := r.add(9, first[0])
	require.NoError(t, err)
	assert.False(t, done)

	// first[1] never arrives
	got, done, err := r.add(9, second[0])
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, []byte{2, 2}, got)
}

func TestReassembler_SendersIndependent(t *testing.T) {
	t.Parallel()

	a, _ := fragment(1, bytes.Repeat([]byte{1}, maxChunk+1))
	b, _ := fragment(1, bytes.Repeat([]byte{2}, maxChunk+1))

	r := newReassembler()
	_, done, _ := r.add(1, a[0])
	assert.False(t, done)
	_, done, _ = r.add(2, b[0])
	assert.False(t, done)

	got, done, err := r.add(1, a[1])
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, bytes.Repeat([]byte{1}, maxChunk+1), got)
}

func TestReassembler_Invalid(t *testing.T) {
	t.Parallel()

	r := newReassembler()
	_, _, err := r.add(1, []byte{0, 1})
	assert.Error(t, err)
	_, _, err = r.add(1, []byte{0, 1, 2, 2})
	assert.Error(t, err)
	_, _, err = r.add(1, []byte{0, 1, 0, 0})
	assert.Error(t, err)
}
