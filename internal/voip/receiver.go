package voip

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ankogit/purevoip/internal/audio"
	"github.com/ankogit/purevoip/internal/compress"
	"github.com/ankogit/purevoip/internal/metrics"
)

// Receiver turns inbound payloads into queued frames
type Receiver struct {
	compressor compress.Compressor
	queue      *JitterQueue
	metrics    *metrics.Metrics
	logger     *logrus.Logger
	peerID     string

	received  atomic.Uint64
	malformed atomic.Uint64
	overflow  atomic.Uint64
}

// NewReceiver creates a receiver feeding queue
func NewReceiver(c compress.Compressor, queue *JitterQueue, m *metrics.Metrics, logger *logrus.Logger, peerID string) *Receiver {
	return &Receiver{
		compressor: c,
		queue:      queue,
		metrics:    m,
		logger:     logger,
		peerID:     peerID,
	}
}

// OnReceive decompresses and decodes payload and queues the frame for playback.
// It runs on the transport goroutine and never waits for playback.
func (r *Receiver) OnReceive(payload []byte) {
	raw, err := r.compressor.Decompress(payload)
	if err != nil {
		r.drop(err, len(payload))
		return
	}

	frame, err := audio.Decode(raw)
	if err != nil {
		r.drop(err, len(payload))
		return
	}

	r.received.Add(1)
	r.metrics.FramesReceived.WithLabelValues(r.compressor.Name()).Inc()

	if r.queue.Push(frame) {
		n := r.overflow.Add(1)
		r.metrics.FramesDropped.WithLabelValues(metrics.ReasonOverflow).Inc()
		if n%100 == 1 {
			r.logger.Warnf("[%s] Jitter queue full, dropped oldest frame (%d dropped so far)", r.peerID, n)
		}
	}
	r.metrics.QueueDepth.Set(float64(r.queue.Len()))
}

func (r *Receiver) drop(err error, size int) {
	r.malformed.Add(1)
	r.metrics.FramesDropped.WithLabelValues(metrics.ReasonMalformed).Inc()
	r.logger.WithError(err).Warnf("[%s] Dropping malformed payload of %d bytes", r.peerID, size)
}

// Received returns the number of frames queued
func (r *Receiver) Received() uint64 {
	return r.received.Load()
}

// Malformed returns the number of payloads dropped as malformed
func (r *Receiver) Malformed() uint64 {
	return r.malformed.Load()
}

// Overflow returns the number of queued frames dropped because the queue was full
func (r *Receiver) Overflow() uint64 {
	return r.overflow.Load()
}
