package transport

import (
	"fmt"
	"math"
)

// EncodeEnvelope prefixes payload with the method name: [len(method)][method][payload]
func EncodeEnvelope(method string, payload []byte) ([]byte, error) {
	if len(method) == 0 || len(method) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: method name length %d", ErrUnknownMethod, len(method))
	}
	out := make([]byte, 0, 1+len(method)+len(payload))
	out = append(out, byte(len(method)))
	out = append(out, method...)
	out = append(out, payload...)
	return out, nil
}

// DecodeEnvelope splits a message built by EncodeEnvelope.
// The returned payload aliases msg.
func DecodeEnvelope(msg []byte) (method string, payload []byte, err error) {
	if len(msg) == 0 {
		return "", nil, fmt.Errorf("empty envelope")
	}
	n := int(msg[0])
	if n == 0 || len(msg) < 1+n {
		return "", nil, fmt.Errorf("truncated envelope: method length %d, message length %d", n, len(msg))
	}
	return string(msg[1 : 1+n]), msg[1+n:], nil
}
