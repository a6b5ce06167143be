package voip

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ankogit/purevoip/internal/audio"
	"github.com/ankogit/purevoip/internal/compress"
	"github.com/ankogit/purevoip/internal/metrics"
	"github.com/ankogit/purevoip/internal/transport"
)

// Transmitter encodes, compresses and sends captured frames. Sends are fire and forget.
type Transmitter struct {
	transport  transport.Transport
	compressor compress.Compressor
	metrics    *metrics.Metrics
	logger     *logrus.Logger
	peerID     string

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewTransmitter creates a transmitter sending through t
func NewTransmitter(t transport.Transport, c compress.Compressor, m *metrics.Metrics, logger *logrus.Logger, peerID string) *Transmitter {
	return &Transmitter{
		transport:  t,
		compressor: c,
		metrics:    m,
		logger:     logger,
		peerID:     peerID,
	}
}

// SendFrame sends frame to every other peer. Transport failures are counted, never returned.
func (tx *Transmitter) SendFrame(frame audio.Frame) {
	buf := audio.EncodePooled(frame)
	payload := tx.compressor.Compress(buf)
	audio.PutPayload(buf)

	if err := tx.transport.SendToOthers(transport.MethodReceiveSamples, payload); err != nil {
		tx.failed.Add(1)
		tx.metrics.SendFailures.Inc()
		tx.logger.WithError(err).Debugf("[%s] Failed to send frame of %d samples", tx.peerID, len(frame))
		return
	}

	tx.sent.Add(1)
	tx.metrics.FramesSent.Inc()
	tx.metrics.PayloadBytes.Observe(float64(len(payload)))
}

// Sent returns the number of frames the transport accepted
func (tx *Transmitter) Sent() uint64 {
	return tx.sent.Load()
}

// Failed returns the number of frames the transport refused
func (tx *Transmitter) Failed() uint64 {
	return tx.failed.Load()
}
