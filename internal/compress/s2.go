package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"

	"github.com/ankogit/purevoip/internal/audio"
)

// S2 compresses with the s2 block format. It holds no state and is safe for concurrent use.
type S2 struct{}

// Name returns the compressor name
func (S2) Name() string {
	return NameS2
}

// Compress encodes src as a single s2 block
func (S2) Compress(src []byte) []byte {
	return s2.Encode(nil, src)
}

// Decompress decodes a single s2 block
func (S2) Decompress(src []byte) ([]byte, error) {
	out, err := s2.Decode(nil, src)
	if err != nil {
		return nil, fmt.Errorf("%w: s2: %v", audio.ErrMalformedPayload, err)
	}
	return out, nil
}
