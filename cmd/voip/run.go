package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ankogit/purevoip/internal/compress"
	"github.com/ankogit/purevoip/internal/config"
	"github.com/ankogit/purevoip/internal/device"
	"github.com/ankogit/purevoip/internal/device/miniaudio"
	"github.com/ankogit/purevoip/internal/device/wavfile"
	"github.com/ankogit/purevoip/internal/metrics"
	"github.com/ankogit/purevoip/internal/transport"
	"github.com/ankogit/purevoip/internal/transport/discord"
	"github.com/ankogit/purevoip/internal/transport/udp"
	"github.com/ankogit/purevoip/internal/transport/ws"
	"github.com/ankogit/purevoip/internal/voip"
)

const shutdownTimeout = 5 * time.Second

// run starts the configured role and blocks until ctx is cancelled or a component fails
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		goSafe(g, func() error {
			return serveHTTP(ctx, cfg.MetricsAddr, mux, logger)
		})
	}

	switch cfg.Role {
	case config.RoleRelay:
		relay := ws.NewRelay(m, logger)
		mux := http.NewServeMux()
		mux.Handle("/voip", relay)
		goSafe(g, func() error {
			defer relay.Close()
			logger.Infof("Relay listening on %s", cfg.RelayAddr)
			return serveHTTP(ctx, cfg.RelayAddr, mux, logger)
		})
	default:
		goSafe(g, func() error {
			return runPeer(ctx, cfg, m, logger)
		})
	}

	return g.Wait()
}

// goSafe runs fn in the group and returns a panic as the group's error
func goSafe(g *errgroup.Group, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
			}
		}()
		return fn()
	})
}

func serveHTTP(ctx context.Context, addr string, h http.Handler, logger *logrus.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warnf("HTTP server on %s did not shut down cleanly", addr)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server on %s: %w", addr, err)
	}
	return nil
}

// runPeer wires devices, transport and session for one voice peer
func runPeer(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *logrus.Logger) error {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.WithError(err).Warnf("[%s] Error during shutdown", cfg.PeerID)
			}
		}
	}()

	pool := compress.NewPool()
	closers = append(closers, func() error { pool.Clear(); return nil })
	comp, err := pool.GetOrCreate(cfg.Compression)
	if err != nil {
		return err
	}

	devices := &deviceSet{cfg: cfg, logger: logger}
	closers = append(closers, devices.Close)

	capture, err := devices.capture()
	if err != nil {
		// receiving still works without a microphone
		logger.WithError(err).Errorf("[%s] Capture backend unavailable", cfg.PeerID)
	}
	playback, err := devices.playback()
	if err != nil {
		return err
	}

	tr, bridge, err := openTransport(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	closers = append(closers, tr.Close)

	sess, err := voip.New(cfg.SessionConfig(), voip.Deps{
		Capture:    capture,
		Playback:   playback,
		Transport:  tr,
		Compressor: comp,
		Metrics:    m,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	closers = append(closers, sess.Close)

	if bridge != nil {
		bridge.SetController(sess)
	}
	sess.Start()

	if cfg.Transmit {
		if err := sess.StartTransmission(ctx); err != nil {
			logger.WithError(err).Errorf("[%s] Transmission not started, receiving only", cfg.PeerID)
		}
	}

	<-ctx.Done()

	st := sess.Stats()
	logger.WithFields(logrus.Fields{
		"captured": st.FramesCaptured,
		"sent":     st.FramesSent,
		"received": st.FramesReceived,
		"played":   st.FramesPlayed,
		"dropped":  st.FramesDropped + st.FramesMalformed,
	}).Infof("[%s] Peer shutting down", cfg.PeerID)
	return nil
}

// openTransport connects the configured transport. The discord bridge is returned
// separately so text commands can drive the session.
func openTransport(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *logrus.Logger) (transport.Transport, *discord.Bridge, error) {
	switch cfg.Transport {
	case config.TransportWS:
		c, err := ws.Dial(ctx, ws.ClientConfig{
			URL:                  cfg.RelayURL,
			PeerID:               cfg.PeerID,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
			ReconnectBackoff:     cfg.ReconnectBackoffBase,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil

	case config.TransportDiscord:
		b, err := discord.New(discord.Config{
			Token:                cfg.DiscordToken,
			GuildID:              cfg.DiscordGuildID,
			ChannelID:            cfg.DiscordChannelID,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
			ReconnectBackoff:     cfg.ReconnectBackoffBase,
			VoiceCheckInterval:   cfg.VoiceCheckInterval,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := b.Start(); err != nil {
			b.Close()
			return nil, nil, err
		}
		return b, b, nil

	default:
		t, err := udp.New(udp.Config{
			Group:     cfg.UDPGroup,
			Interface: cfg.UDPInterface,
			SSRC:      ssrcFor(cfg.PeerID),
			ClockRate: cfg.SampleRate,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return t, nil, nil
	}
}

// ssrcFor derives a stable RTP SSRC from the peer id
func ssrcFor(peerID string) uint32 {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(peerID))
	return binary.BigEndian.Uint32(id[:4])
}

// deviceSet opens the audio backends, sharing one miniaudio context between capture and playback
type deviceSet struct {
	cfg      *config.Config
	logger   *logrus.Logger
	backend  *miniaudio.Backend
	recorder *wavfile.Recorder
	memory   *device.MemoryPlayback
}

func (d *deviceSet) audioBackend() (*miniaudio.Backend, error) {
	if d.backend != nil {
		return d.backend, nil
	}
	b, err := miniaudio.New(d.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio backend: %w", err)
	}
	d.backend = b
	return b, nil
}

func (d *deviceSet) capture() (device.Capture, error) {
	switch d.cfg.Capture {
	case config.BackendMalgo:
		b, err := d.audioBackend()
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendWAV:
		c, err := wavfile.NewCapture(d.cfg.WAVInput, d.cfg.SampleRate, d.logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, nil
	}
}

func (d *deviceSet) playback() (device.Playback, error) {
	switch d.cfg.Playback {
	case config.BackendMalgo:
		b, err := d.audioBackend()
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendWAV:
		r, err := wavfile.NewRecorder(d.cfg.WAVOutput, d.cfg.SampleRate)
		if err != nil {
			return nil, err
		}
		d.recorder = r
		return r, nil
	default:
		d.memory = device.NewMemoryPlayback(1)
		return d.memory, nil
	}
}

// Close releases every backend that was opened
func (d *deviceSet) Close() error {
	var errs []error
	if d.backend != nil {
		errs = append(errs, d.backend.Close())
	}
	if d.recorder != nil {
		errs = append(errs, d.recorder.Close())
	}
	if d.memory != nil {
		errs = append(errs, d.memory.Close())
	}
	return errors.Join(errs...)
}
