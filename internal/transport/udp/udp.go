package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/ankogit/purevoip/internal/transport"
)

const (
	// maxDatagram is the largest UDP payload over IPv4
	maxDatagram = 65507
	// rtpHeaderSize is the fixed RTP header without CSRCs or extensions
	rtpHeaderSize = 12
	// MaxPayload is the largest message payload that fits one datagram
	MaxPayload = maxDatagram - rtpHeaderSize

	writeTimeout = 100 * time.Millisecond
)

// Config describes the multicast group a peer joins
type Config struct {
	// Group is the multicast address, e.g. 239.255.42.99:5004
	Group string
	// Interface is the network interface name; empty lets the system choose
	Interface string
	// SSRC identifies this peer on the wire; its own packets are ignored on receipt
	SSRC uint32
	// ClockRate drives the RTP timestamp, normally the audio sample rate
	ClockRate int
}

// Transport sends RTP packets to a multicast group. Every member receives every
// packet; packets carrying the local SSRC are discarded so a send reaches all peers except the sender.
type Transport struct {
	transport.Handlers

	cfg    Config
	recv   *net.UDPConn
	send   *net.UDPConn
	start  time.Time
	seq    uint16
	sendMu sync.Mutex
	logger *logrus.Logger
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// New joins the multicast group and starts receiving
func New(cfg Config, logger *logrus.Logger) (*Transport, error) {
	group, err := net.ResolveUDPAddr("udp4", cfg.Group)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve multicast group: %w", err)
	}
	if !group.IP.IsMulticast() {
		return nil, fmt.Errorf("%s is not a multicast address", cfg.Group)
	}

	var ifi *net.Interface
	if cfg.Interface != "" {
		ifi, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("failed to find interface %q: %w", cfg.Interface, err)
		}
	}

	recv, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		return nil, fmt.Errorf("failed to join multicast group: %w", err)
	}
	if err := recv.SetReadBuffer(1 << 20); err != nil {
		logger.WithError(err).Debug("Failed to enlarge UDP read buffer")
	}

	send, err := net.DialUDP("udp4", nil, group)
	if err != nil {
		recv.Close()
		return nil, fmt.Errorf("failed to open multicast sender: %w", err)
	}

	t := &Transport{
		cfg:    cfg,
		recv:   recv,
		send:   send,
		start:  time.Now(),
		logger: logger,
		done:   make(chan struct{}),
	}

	t.wg.Add(1)
	go t.readLoop()

	logger.Infof("[%08x] Joined multicast group %s", cfg.SSRC, group)
	return t, nil
}

// SendToOthers wraps payload in an RTP packet and sends it to the group
func (t *Transport) SendToOthers(method string, payload []byte) error {
	select {
	case <-t.done:
		return transport.ErrClosed
	default:
	}

	pt, err := transport.PayloadType(method)
	if err != nil {
		return err
	}
	if len(payload) > MaxPayload {
		return fmt.Errorf("payload of %d bytes exceeds one datagram", len(payload))
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    pt,
			SequenceNumber: t.seq,
			Timestamp:      t.timestamp(),
			SSRC:           t.cfg.SSRC,
		},
		Payload: payload,
	}
	t.seq++

	buf, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal rtp packet: %w", err)
	}

	if err := t.send.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := t.send.Write(buf); err != nil {
		return fmt.Errorf("failed to send rtp packet: %w", err)
	}
	return nil
}

// timestamp returns the RTP media clock for now
func (t *Transport) timestamp() uint32 {
	if t.cfg.ClockRate <= 0 {
		return 0
	}
	return uint32(time.Since(t.start).Seconds() * float64(t.cfg.ClockRate))
}

func (t *Transport) readLoop() {
	defer t.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := t.recv.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.WithError(err).Warnf("[%08x] UDP read failed", t.cfg.SSRC)
			continue
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			t.logger.WithError(err).Debugf("[%08x] Ignoring non-RTP datagram", t.cfg.SSRC)
			continue
		}
		if pkt.SSRC == t.cfg.SSRC {
			continue
		}

		method, ok := transport.MethodForPayloadType(pkt.PayloadType)
		if !ok {
			t.logger.Debugf("[%08x] Ignoring payload type %d from %08x", t.cfg.SSRC, pkt.PayloadType, pkt.SSRC)
			continue
		}

		// the packet aliases buf, which the next read overwrites
		payload := append([]byte(nil), pkt.Payload...)
		t.Dispatch(method, payload)
	}
}

// Close leaves the group and waits for the read loop
func (t *Transport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = errors.Join(t.recv.Close(), t.send.Close())
		t.wg.Wait()
	})
	return err
}

var _ transport.Transport = (*Transport)(nil)
