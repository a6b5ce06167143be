package voip

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ankogit/purevoip/internal/device"
	"github.com/ankogit/purevoip/internal/metrics"
)

// Pacing decides when the next queued frame may start playing
type Pacing int

const (
	// PacingDuration starts a frame once the previous one has played out
	PacingDuration Pacing = iota
	// PacingTick starts one frame per scheduler tick
	PacingTick
)

// String returns the configuration name of the pacing
func (p Pacing) String() string {
	switch p {
	case PacingDuration:
		return "duration"
	case PacingTick:
		return "tick"
	default:
		return "unknown"
	}
}

// ParsePacing parses a pacing name as used in configuration
func ParsePacing(s string) (Pacing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "duration":
		return PacingDuration, nil
	case "tick":
		return PacingTick, nil
	default:
		return PacingDuration, fmt.Errorf("unknown pacing %q", s)
	}
}

// PlaybackConfig configures a PlaybackScheduler
type PlaybackConfig struct {
	SampleRate   int
	Channels     int
	DisposeDelay time.Duration
	Pacing       Pacing
	// Slack is how late a tick may observe the schedule before playback counts as idle
	Slack time.Duration
}

// PlaybackScheduler plays queued frames, one transient clip per frame
type PlaybackScheduler struct {
	cfg      PlaybackConfig
	queue    *JitterQueue
	playback device.Playback
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	peerID   string

	// next is when the playing frame ends; touched only by the playback goroutine
	next time.Time

	played atomic.Uint64
	failed atomic.Uint64
}

// NewPlaybackScheduler creates a scheduler draining queue into playback
func NewPlaybackScheduler(cfg PlaybackConfig, queue *JitterQueue, playback device.Playback, m *metrics.Metrics, logger *logrus.Logger, peerID string) *PlaybackScheduler {
	return &PlaybackScheduler{
		cfg:      cfg,
		queue:    queue,
		playback: playback,
		metrics:  m,
		logger:   logger,
		peerID:   peerID,
	}
}

// Tick plays the next frame if pacing allows and reports whether one was started.
// An empty queue plays nothing.
func (p *PlaybackScheduler) Tick(now time.Time) bool {
	if p.cfg.Pacing == PacingDuration && !p.next.IsZero() && now.Before(p.next) {
		return false
	}

	frame, ok := p.queue.Pop()
	if !ok {
		return false
	}
	p.metrics.QueueDepth.Set(float64(p.queue.Len()))

	if p.cfg.Pacing == PacingDuration {
		start := p.next
		// keep back to back frames contiguous; after a gap restart from now
		if start.IsZero() || now.Sub(start) > p.cfg.Slack {
			start = now
		}
		p.next = start.Add(frame.Duration(p.cfg.SampleRate))
	}

	if err := p.play(frame); err != nil {
		p.failed.Add(1)
		p.metrics.FramesDropped.WithLabelValues(metrics.ReasonPlayback).Inc()
		p.logger.WithError(err).Warnf("[%s] Failed to play frame of %d samples", p.peerID, len(frame))
		return false
	}

	p.played.Add(1)
	p.metrics.FramesPlayed.Inc()
	return true
}

func (p *PlaybackScheduler) play(frame []float32) error {
	clip, err := p.playback.CreateClip(len(frame), p.cfg.Channels, p.cfg.SampleRate, true)
	if err != nil {
		return fmt.Errorf("failed to create clip: %w", err)
	}
	if err := clip.WriteSamples(frame, 0); err != nil {
		clip.Dispose()
		return fmt.Errorf("failed to write clip: %w", err)
	}
	if err := p.playback.Play(clip); err != nil {
		clip.Dispose()
		return fmt.Errorf("failed to play clip: %w", err)
	}
	p.playback.DisposeAfter(clip, p.cfg.DisposeDelay)
	return nil
}

// Run ticks every interval until ctx is cancelled
func (p *PlaybackScheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.Tick(now)
		}
	}
}

// Played returns the number of frames handed to the playback device
func (p *PlaybackScheduler) Played() uint64 {
	return p.played.Load()
}

// Failed returns the number of frames the playback device rejected
func (p *PlaybackScheduler) Failed() uint64 {
	return p.failed.Load()
}
