package compress

import (
	"sync"
)

// Pool manages compressors shared by every session of the process
type Pool struct {
	compressors map[string]Compressor
	mu          sync.RWMutex
}

// NewPool creates a new compressor pool
func NewPool() *Pool {
	return &Pool{
		compressors: make(map[string]Compressor),
	}
}

// GetOrCreate gets or creates the compressor registered under name
func (p *Pool) GetOrCreate(name string) (Compressor, error) {
	p.mu.RLock()
	c, exists := p.compressors[name]
	p.mu.RUnlock()

	if exists && c != nil {
		return c, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if c, exists := p.compressors[name]; exists && c != nil {
		return c, nil
	}

	c, err := New(name)
	if err != nil {
		return nil, err
	}

	p.compressors[name] = c
	return c, nil
}

// Remove removes a compressor and releases it
func (p *Pool) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	release(p.compressors[name])
	delete(p.compressors, name)
}

// Clear releases and removes all compressors
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.compressors {
		release(c)
	}
	p.compressors = make(map[string]Compressor)
}

func release(c Compressor) {
	if z, ok := c.(*Zstd); ok {
		z.Close()
	}
}
