package discord

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/ankogit/purevoip/internal/transport"
)

const (
	sendTimeout = 100 * time.Millisecond
	// sendQueueSize counts whole messages, each one a set of fragments
	sendQueueSize = 8
)

// Config describes the guild voice channel used as the shared medium
type Config struct {
	Token                string
	GuildID              string
	ChannelID            string
	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
	VoiceCheckInterval   time.Duration
}

// Controller is the voice session driven by text commands
type Controller interface {
	StartTransmission(ctx context.Context) error
	StopTransmission()
	IsTransmitting() bool
}

// Bridge tunnels session messages through a Discord voice channel. Every bot
// in the channel hears every other bot; Discord never echoes a sender's own packets.
type Bridge struct {
	transport.Handlers

	session *discordgo.Session
	config  Config
	state   *State

	controller Controller
	ctrlMu     sync.RWMutex

	vc       *discordgo.VoiceConnection
	vcCancel context.CancelFunc
	vcMu     sync.RWMutex

	sendSeq     uint16
	sendMu      sync.Mutex
	sendQueue   chan [][]byte
	sendDropped atomic.Uint64

	checkOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *logrus.Logger
}

// New creates a bridge; Start opens the Discord session
func New(cfg Config, logger *logrus.Logger) (*Bridge, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates

	if cfg.VoiceCheckInterval <= 0 {
		cfg.VoiceCheckInterval = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		session:   session,
		config:    cfg,
		state:     NewState(cfg.ChannelID),
		sendQueue: make(chan [][]byte, sendQueueSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}

	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)

	b.wg.Add(1)
	go b.sendLoop()

	return b, nil
}

// SetController attaches the session that !talk and !mute drive
func (b *Bridge) SetController(c Controller) {
	b.ctrlMu.Lock()
	defer b.ctrlMu.Unlock()
	b.controller = c
}

func (b *Bridge) getController() Controller {
	b.ctrlMu.RLock()
	defer b.ctrlMu.RUnlock()
	return b.controller
}

// Start opens the session and joins the configured voice channel
func (b *Bridge) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	b.state.SetActive(true)
	b.state.ResetReconnectAttempts()

	vc, err := b.connectToChannel(b.config.GuildID, b.state.GetChannelID())
	if err != nil {
		b.state.SetActive(false)
		return err
	}
	b.attach(vc)

	b.logger.Infof("[%s] Voice bridge started", b.config.GuildID)
	return nil
}

// attach makes vc the current connection and starts receiving from it
func (b *Bridge) attach(vc *discordgo.VoiceConnection) {
	ctx, cancel := context.WithCancel(b.ctx)

	b.vcMu.Lock()
	if b.vcCancel != nil {
		b.vcCancel()
	}
	b.vc = vc
	b.vcCancel = cancel
	b.vcMu.Unlock()

	if err := vc.Speaking(true); err != nil {
		b.logger.WithError(err).Warnf("[%s] Failed to set speaking", b.config.GuildID)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.recvLoop(ctx, vc)
	}()
}

func (b *Bridge) currentVC() *discordgo.VoiceConnection {
	b.vcMu.RLock()
	defer b.vcMu.RUnlock()
	return b.vc
}

// recvLoop reassembles voice packets from other bots and dispatches them
func (b *Bridge) recvLoop(ctx context.Context, vc *discordgo.VoiceConnection) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithField("panic", r).Errorf("[%s] Panic in voice receive loop", b.config.GuildID)
		}
	}()

	r := newReassembler()
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}
			payload, done, err := r.add(pkt.SSRC, pkt.Opus)
			if err != nil {
				b.logger.WithError(err).Debugf("[%s] Ignoring voice packet from %d", b.config.GuildID, pkt.SSRC)
				continue
			}
			if done {
				b.Dispatch(transport.MethodReceiveSamples, payload)
			}
		}
	}
}

// SendToOthers fragments payload into voice packets and queues them for the channel.
// It never waits on Discord: when the queue is full the oldest message is dropped.
func (b *Bridge) SendToOthers(method string, payload []byte) error {
	if b.ctx.Err() != nil {
		return transport.ErrClosed
	}
	if method != transport.MethodReceiveSamples {
		return fmt.Errorf("%w: %q", transport.ErrUnknownMethod, method)
	}

	vc := b.currentVC()
	if vc == nil || vc.Status != discordgo.VoiceConnectionStatusReady {
		return transport.ErrNotConnected
	}

	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	pkts, err := fragment(b.sendSeq, payload)
	if err != nil {
		return err
	}
	b.sendSeq++

	b.enqueue(pkts)
	return nil
}

// enqueue must be called with sendMu held, so there is a single producer
func (b *Bridge) enqueue(pkts [][]byte) {
	for {
		select {
		case b.sendQueue <- pkts:
			return
		default:
		}

		select {
		case <-b.sendQueue:
			b.sendDropped.Add(1)
			b.logger.Debugf("[%s] Send queue full, dropped oldest message", b.config.GuildID)
		default:
		}
	}
}

// sendLoop feeds queued messages to the voice connection, one fragment at a time
func (b *Bridge) sendLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case pkts := <-b.sendQueue:
			if err := b.sendPackets(pkts); err != nil {
				b.logger.WithError(err).Debugf("[%s] Voice message not delivered", b.config.GuildID)
			}
		}
	}
}

func (b *Bridge) sendPackets(pkts [][]byte) error {
	vc := b.currentVC()
	if vc == nil {
		return transport.ErrNotConnected
	}

	for i, pkt := range pkts {
		select {
		case vc.OpusSend <- pkt:
		case <-b.ctx.Done():
			return transport.ErrClosed
		case <-time.After(sendTimeout):
			return fmt.Errorf("timeout sending voice packet %d of %d", i+1, len(pkts))
		}
	}
	return nil
}

// Close leaves the voice channel and closes the Discord session
func (b *Bridge) Close() error {
	b.logger.Infof("[%s] Shutting down voice bridge...", b.config.GuildID)

	b.state.SetActive(false)
	b.cancel()

	b.vcMu.Lock()
	vc := b.vc
	b.vc = nil
	b.vcMu.Unlock()
	if vc != nil {
		b.disconnect(vc)
	}

	if err := b.session.Close(); err != nil {
		b.logger.WithError(err).Error("Error closing Discord session")
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("All goroutines finished")
	case <-time.After(10 * time.Second):
		b.logger.Warn("Timeout waiting for goroutines to finish")
	}

	return nil
}

var _ transport.Transport = (*Bridge)(nil)
