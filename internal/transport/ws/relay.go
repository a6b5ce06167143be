package ws

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ankogit/purevoip/internal/metrics"
	"github.com/ankogit/purevoip/internal/transport"
)

// sendQueueSize is how many messages a slow peer may fall behind before new ones are dropped
const sendQueueSize = 64

// Relay forwards every message it receives to all connected peers except the sender
type Relay struct {
	peers   map[*relayPeer]struct{}
	closed  bool
	mu      sync.RWMutex
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

type relayPeer struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	dropped atomic.Uint64
}

// NewRelay creates a relay with no peers
func NewRelay(m *metrics.Metrics, logger *logrus.Logger) *Relay {
	return &Relay{
		peers:   make(map[*relayPeer]struct{}),
		metrics: m,
		logger:  logger,
	}
}

// ServeHTTP upgrades the request and serves the peer until it disconnects
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to accept relay connection")
		return
	}
	conn.SetReadLimit(readLimit)

	id := req.URL.Query().Get("peer")
	if id == "" {
		id = uuid.NewString()
	}

	p := &relayPeer{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	r.add(p)
	defer r.remove(p)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.writeLoop(ctx, p)
	}()

	err = r.readLoop(ctx, p)
	cancel()
	wg.Wait()

	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		conn.Close(websocket.StatusNormalClosure, "")
	} else {
		r.logger.WithError(err).Debugf("[%s] Relay peer read ended", p.id)
		conn.Close(websocket.StatusInternalError, "")
	}
}

func (r *Relay) readLoop(ctx context.Context, p *relayPeer) error {
	for {
		typ, msg, err := p.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			continue
		}
		if _, _, err := transport.DecodeEnvelope(msg); err != nil {
			r.logger.WithError(err).Debugf("[%s] Dropping malformed message", p.id)
			continue
		}
		r.forward(p, msg)
	}
}

func (r *Relay) writeLoop(ctx context.Context, p *relayPeer) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := p.conn.Write(wctx, websocket.MessageBinary, msg)
			cancel()
			if err != nil {
				r.logger.WithError(err).Debugf("[%s] Relay write failed", p.id)
				return
			}
		}
	}
}

// forward queues msg for every peer except from
func (r *Relay) forward(from *relayPeer, msg []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for p := range r.peers {
		if p == from {
			continue
		}
		select {
		case p.send <- msg:
			r.metrics.RelayMessages.Inc()
		default:
			if p.dropped.Add(1)%100 == 1 {
				r.logger.Warnf("[%s] Relay send queue full, dropping messages", p.id)
			}
		}
	}
}

func (r *Relay) add(p *relayPeer) {
	r.mu.Lock()
	r.peers[p] = struct{}{}
	n := len(r.peers)
	r.mu.Unlock()

	r.metrics.RelayPeers.Set(float64(n))
	r.logger.Infof("[%s] Peer joined relay (%d connected)", p.id, n)
}

func (r *Relay) remove(p *relayPeer) {
	r.mu.Lock()
	delete(r.peers, p)
	n := len(r.peers)
	r.mu.Unlock()

	r.metrics.RelayPeers.Set(float64(n))
	r.logger.Infof("[%s] Peer left relay (%d connected)", p.id, n)
}

// Peers returns the number of connected peers
func (r *Relay) Peers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Close drops every connected peer and refuses new ones
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for p := range r.peers {
		p.conn.CloseNow()
	}
	return nil
}
