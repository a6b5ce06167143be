package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/ankogit/purevoip/internal/audio"
)

// maxDecodedSize bounds the memory a single hostile payload can claim (one full capture ring)
const maxDecodedSize = audio.SampleRate * audio.RecordLength * audio.BytesPerSample

// Zstd compresses each payload as one zstd frame.
// The encoder and decoder are reused across calls; EncodeAll and DecodeAll are safe for concurrent use.
type Zstd struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	once    sync.Once
}

// NewZstd creates a zstd compressor tuned for small, latency sensitive payloads
func NewZstd() (*Zstd, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(maxDecodedSize),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Zstd{encoder: enc, decoder: dec}, nil
}

// Name returns the compressor name
func (z *Zstd) Name() string {
	return NameZstd
}

// Compress encodes src as one zstd frame. An empty input stays empty.
func (z *Zstd) Compress(src []byte) []byte {
	if len(src) == 0 {
		return []byte{}
	}
	return z.encoder.EncodeAll(src, make([]byte, 0, len(src)/2))
}

// Decompress decodes a zstd frame produced by Compress
func (z *Zstd) Decompress(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	out, err := z.decoder.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", audio.ErrMalformedPayload, err)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// Close releases the encoder and decoder
func (z *Zstd) Close() {
	z.once.Do(func() {
		z.encoder.Close()
		z.decoder.Close()
	})
}
