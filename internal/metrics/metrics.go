package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label of FramesDropped
const (
	ReasonMalformed = "malformed"
	ReasonOverflow  = "overflow"
	ReasonPlayback  = "playback"
)

// Metrics contains all Prometheus metrics for a voice peer
type Metrics struct {
	// Capture side
	FramesCaptured prometheus.Counter
	FramesSent     prometheus.Counter
	SendFailures   prometheus.Counter
	PayloadBytes   prometheus.Histogram
	Transmitting   prometheus.Gauge

	// Receive side
	FramesReceived *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	FramesPlayed   prometheus.Counter
	QueueDepth     prometheus.Gauge

	// Relay
	RelayPeers    prometheus.Gauge
	RelayMessages prometheus.Counter
}

// New creates and registers all metrics with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "voip_frames_captured_total",
			Help: "Total number of frames cut from the capture ring",
		}),
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "voip_frames_sent_total",
			Help: "Total number of frames handed to the transport",
		}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "voip_send_failures_total",
			Help: "Total number of frames the transport refused",
		}),
		PayloadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voip_payload_bytes",
			Help:    "Compressed payload size of sent frames",
			Buckets: prometheus.ExponentialBuckets(256, 2, 8), // 256B to 32KB
		}),
		Transmitting: f.NewGauge(prometheus.GaugeOpts{
			Name: "voip_transmitting",
			Help: "1 while the local capture loop is running",
		}),
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voip_frames_received_total",
			Help: "Total number of frames received from remote peers",
		}, []string{"compression"}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voip_frames_dropped_total",
			Help: "Total number of received frames that were never played",
		}, []string{"reason"}),
		FramesPlayed: f.NewCounter(prometheus.CounterOpts{
			Name: "voip_frames_played_total",
			Help: "Total number of frames handed to the playback device",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "voip_jitter_queue_depth",
			Help: "Current number of frames waiting for playback",
		}),
		RelayPeers: f.NewGauge(prometheus.GaugeOpts{
			Name: "voip_relay_peers",
			Help: "Current number of peers connected to the relay",
		}),
		RelayMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "voip_relay_messages_total",
			Help: "Total number of messages forwarded by the relay",
		}),
	}
}

// NewUnregistered creates metrics on a private registry, for tests and tools
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
