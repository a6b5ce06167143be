package transport_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankogit/purevoip/internal/transport"
)

func TestHandlers_Dispatch(t *testing.T) {
	t.Parallel()

	var h transport.Handlers
	assert.False(t, h.Dispatch(transport.MethodReceiveSamples, []byte("x")))

	var got []byte
	h.Handle(transport.MethodReceiveSamples, func(p []byte) { got = p })
	assert.True(t, h.Dispatch(transport.MethodReceiveSamples, []byte("x")))
	assert.Equal(t, []byte("x"), got)

	h.Handle(transport.MethodReceiveSamples, nil)
	assert.False(t, h.Dispatch(transport.MethodReceiveSamples, []byte("y")))
}

func TestEnvelope(t *testing.T) {
	t.Parallel()

	msg, err := transport.EncodeEnvelope(transport.MethodReceiveSamples, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, byte(len(transport.MethodReceiveSamples)), msg[0])

	method, payload, err := transport.DecodeEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, transport.MethodReceiveSamples, method)
	assert.Equal(t, []byte{1, 2, 3}, payload)

	msg, err = transport.EncodeEnvelope("m", nil)
	require.NoError(t, err)
	method, payload, err = transport.DecodeEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, "m", method)
	assert.Empty(t, payload)
}

func TestEnvelope_Malformed(t *testing.T) {
	t.Parallel()

	for _, msg := range [][]byte{nil, {0}, {5, 'a', 'b'}} {
		_, _, err := transport.DecodeEnvelope(msg)
		assert.Error(t, err, "%v", msg)
	}

	_, err := transport.EncodeEnvelope("", []byte{1})
	assert.ErrorIs(t, err, transport.ErrUnknownMethod)
}

func TestPayloadType(t *testing.T) {
	t.Parallel()

	pt, err := transport.PayloadType(transport.MethodReceiveSamples)
	require.NoError(t, err)
	assert.Equal(t, uint8(96), pt)

	method, ok := transport.MethodForPayloadType(pt)
	assert.True(t, ok)
	assert.Equal(t, transport.MethodReceiveSamples, method)

	_, err = transport.PayloadType("Nope")
	assert.ErrorIs(t, err, transport.ErrUnknownMethod)
	_, ok = transport.MethodForPayloadType(0)
	assert.False(t, ok)
}
