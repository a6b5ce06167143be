package audio

import (
	"github.com/gobwas/pool/pbytes"
)

// GetPayload returns a pooled byte slice able to hold the encoding of n samples.
// Return it with PutPayload once the bytes are no longer referenced.
func GetPayload(n int) []byte {
	return pbytes.GetLen(EncodedLen(n))
}

// PutPayload returns a slice obtained from GetPayload to the pool
func PutPayload(b []byte) {
	pbytes.Put(b)
}

// EncodePooled encodes samples into a pooled buffer.
// The caller owns the result and must hand it back with PutPayload.
func EncodePooled(samples []float32) []byte {
	buf := GetPayload(len(samples))
	n := EncodeTo(buf, samples)
	return buf[:n]
}
