package voip

import (
	"sync"

	"github.com/ankogit/purevoip/internal/audio"
)

// JitterQueue buffers received frames in arrival order until playback.
// When full, pushing drops the oldest frame so latency stays bounded.
type JitterQueue struct {
	frames   []audio.Frame
	capacity int
	dropped  uint64
	mu       sync.Mutex
}

// NewJitterQueue creates a queue holding at most capacity frames; capacity <= 0 means unbounded
func NewJitterQueue(capacity int) *JitterQueue {
	q := &JitterQueue{capacity: capacity}
	if capacity > 0 {
		q.frames = make([]audio.Frame, 0, capacity)
	}
	return q
}

// Push appends frame and reports whether the oldest frame was dropped to make room
func (q *JitterQueue) Push(frame audio.Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if q.capacity > 0 && len(q.frames) >= q.capacity {
		q.frames[0] = nil
		q.frames = q.frames[1:]
		q.dropped++
		dropped = true
	}
	q.frames = append(q.frames, frame)
	return dropped
}

// Pop removes and returns the oldest frame
func (q *JitterQueue) Pop() (audio.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return nil, false
	}
	f := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return f, true
}

// Len returns the number of queued frames
func (q *JitterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Cap returns the queue bound, 0 when unbounded
func (q *JitterQueue) Cap() int {
	if q.capacity < 0 {
		return 0
	}
	return q.capacity
}

// Dropped returns how many frames were discarded on overflow
func (q *JitterQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Clear discards all queued frames
func (q *JitterQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.frames)
	q.frames = q.frames[:0]
}
