package voip_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankogit/purevoip/internal/audio"
	"github.com/ankogit/purevoip/internal/device"
	"github.com/ankogit/purevoip/internal/metrics"
	"github.com/ankogit/purevoip/internal/voip"
)

// failingPlayback rejects every clip
type failingPlayback struct {
	*device.MemoryPlayback
}

func (failingPlayback) Play(*device.Clip) error {
	return errors.New("speaker unplugged")
}

func newScheduler(t *testing.T, pacing voip.Pacing, pb device.Playback) (*voip.PlaybackScheduler, *voip.JitterQueue, *metrics.Metrics) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	m := metrics.NewUnregistered()
	q := voip.NewJitterQueue(16)
	s := voip.NewPlaybackScheduler(voip.PlaybackConfig{
		SampleRate:   1000,
		Channels:     1,
		DisposeDelay: time.Hour,
		Pacing:       pacing,
		Slack:        20 * time.Millisecond,
	}, q, pb, m, logger, "test")
	return s, q, m
}

func TestPlaybackScheduler_ThreeFramesThreeTicks(t *testing.T) {
	t.Parallel()

	pb := device.NewMemoryPlayback(0)
	t.Cleanup(func() { pb.Close() })
	s, q, m := newScheduler(t, voip.PacingTick, pb)

	for i := 1; i <= 3; i++ {
		q.Push(audio.Frame{float32(i), float32(i)})
	}

	now := time.Now()
	for i := 0; i < 3; i++ {
		assert.True(t, s.Tick(now.Add(time.Duration(i)*time.Millisecond)))
	}
	assert.False(t, s.Tick(now.Add(time.Second)))

	played := pb.Played()
	require.Len(t, played, 3)
	for i, clip := range played {
		assert.Equal(t, []float32{float32(i + 1), float32(i + 1)}, clip.Samples())
		assert.True(t, clip.Loop)
		assert.Equal(t, 1000, clip.SampleRate)
	}
	assert.Equal(t, 3, pb.PendingDisposals())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, float64(3), testutil.ToFloat64(m.FramesPlayed))
}

func TestPlaybackScheduler_DurationPacing(t *testing.T) {
	t.Parallel()

	pb := device.NewMemoryPlayback(0)
	t.Cleanup(func() { pb.Close() })
	s, q, _ := newScheduler(t, voip.PacingDuration, pb)

	// 100 samples at 1kHz last 100ms
	for i := 0; i < 3; i++ {
		q.Push(make(audio.Frame, 100))
	}

	t0 := time.Now()
	assert.True(t, s.Tick(t0))
	assert.False(t, s.Tick(t0.Add(20*time.Millisecond)))
	assert.False(t, s.Tick(t0.Add(99*time.Millisecond)))
	assert.True(t, s.Tick(t0.Add(100*time.Millisecond)))
	// a slightly late tick keeps the schedule anchored to the previous frame
	assert.True(t, s.Tick(t0.Add(210*time.Millisecond)))
	assert.Len(t, pb.Played(), 3)

	// playback went idle; the next frame starts right away
	q.Push(make(audio.Frame, 100))
	assert.True(t, s.Tick(t0.Add(time.Second)))
	q.Push(make(audio.Frame, 100))
	assert.False(t, s.Tick(t0.Add(time.Second+50*time.Millisecond)))
	assert.True(t, s.Tick(t0.Add(time.Second+100*time.Millisecond)))
}

func TestPlaybackScheduler_EmptyQueue(t *testing.T) {
	t.Parallel()

	pb := device.NewMemoryPlayback(0)
	s, _, _ := newScheduler(t, voip.PacingDuration, pb)

	assert.False(t, s.Tick(time.Now()))
	assert.Equal(t, 0, pb.Created())
}

func TestPlaybackScheduler_PlayFailure(t *testing.T) {
	t.Parallel()

	pb := failingPlayback{device.NewMemoryPlayback(0)}
	s, q, m := newScheduler(t, voip.PacingTick, pb)

	q.Push(audio.Frame{1})
	assert.False(t, s.Tick(time.Now()))
	assert.Equal(t, uint64(1), s.Failed())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FramesDropped.WithLabelValues(metrics.ReasonPlayback)))
}

func TestParsePacing(t *testing.T) {
	t.Parallel()

	p, err := voip.ParsePacing("tick")
	require.NoError(t, err)
	assert.Equal(t, voip.PacingTick, p)

	p, err = voip.ParsePacing("")
	require.NoError(t, err)
	assert.Equal(t, voip.PacingDuration, p)

	_, err = voip.ParsePacing("jitter")
	assert.Error(t, err)
}
