package device

import (
	"sync"
	"time"
)

// MemoryPlayback is a playback backend that keeps the most recent clips in memory
// instead of sending them to a speaker. It backs the "none" output and tests.
type MemoryPlayback struct {
	history int
	created int
	played  []*Clip
	current *Clip
	timers  map[*Clip]*time.Timer
	mu      sync.Mutex
}

// NewMemoryPlayback creates a backend remembering up to history played clips (0 keeps all)
func NewMemoryPlayback(history int) *MemoryPlayback {
	return &MemoryPlayback{
		history: history,
		timers:  make(map[*Clip]*time.Timer),
	}
}

// CreateClip allocates a clip
func (m *MemoryPlayback) CreateClip(sampleCount, channels, sampleRate int, loop bool) (*Clip, error) {
	clip, err := NewClip(sampleCount, channels, sampleRate, loop)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.created++
	m.mu.Unlock()
	return clip, nil
}

// Play records clip as the current output
func (m *MemoryPlayback) Play(clip *Clip) error {
	if clip.IsDisposed() {
		return ErrDisposed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = clip
	m.played = append(m.played, clip)
	if m.history > 0 && len(m.played) > m.history {
		m.played = m.played[len(m.played)-m.history:]
	}
	return nil
}

// DisposeAfter disposes clip after delay
func (m *MemoryPlayback) DisposeAfter(clip *Clip, delay time.Duration) {
	if delay <= 0 {
		clip.Dispose()
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[clip] = time.AfterFunc(delay, func() {
		clip.Dispose()
		m.mu.Lock()
		delete(m.timers, clip)
		m.mu.Unlock()
	})
}

// Played returns the remembered clips in play order
func (m *MemoryPlayback) Played() []*Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Clip, len(m.played))
	copy(out, m.played)
	return out
}

// Current returns the clip that was played last
func (m *MemoryPlayback) Current() *Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Created returns how many clips were allocated
func (m *MemoryPlayback) Created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

// PendingDisposals returns how many clips are still waiting to be disposed
func (m *MemoryPlayback) PendingDisposals() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Close disposes every pending clip immediately
func (m *MemoryPlayback) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for clip, timer := range m.timers {
		timer.Stop()
		clip.Dispose()
		delete(m.timers, clip)
	}
	return nil
}
