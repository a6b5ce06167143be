package compress

import (
	"fmt"
	"strings"
)

const (
	// NameS2 is the snappy-compatible block compressor, cheap enough to run on every frame
	NameS2 = "s2"
	// NameZstd trades a little CPU for better ratios on long frames
	NameZstd = "zstd"
)

// Compressor is a lossless byte compressor.
// Decompress(Compress(p)) returns p for every input, including an empty one.
// Both methods return freshly allocated slices that never alias src, so callers
// may reuse or recycle src as soon as the call returns.
type Compressor interface {
	Name() string
	Compress(src []byte) []byte
	Decompress(src []byte) ([]byte, error)
}

// New creates a compressor by name
func New(name string) (Compressor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameS2:
		return S2{}, nil
	case NameZstd:
		return NewZstd()
	default:
		return nil, fmt.Errorf("unknown compressor %q", name)
	}
}
