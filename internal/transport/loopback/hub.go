package loopback

import (
	"sync"
	"sync/atomic"

	"github.com/ankogit/purevoip/internal/transport"
)

// inboxSize is how many messages a slow peer may fall behind before new ones are dropped
const inboxSize = 64

type message struct {
	method  string
	payload []byte
}

// Hub connects peers living in the same process
type Hub struct {
	peers map[*Peer]struct{}
	mu    sync.RWMutex
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		peers: make(map[*Peer]struct{}),
	}
}

// Join adds a peer to the hub
func (h *Hub) Join(id string) *Peer {
	p := &Peer{
		id:    id,
		hub:   h,
		inbox: make(chan message, inboxSize),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()

	p.wg.Add(1)
	go p.deliver()
	return p
}

// Peers returns the number of joined peers
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *Hub) leave(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p)
}

// Peer is one member of a Hub. It implements transport.Transport.
type Peer struct {
	transport.Handlers

	id      string
	hub     *Hub
	inbox   chan message
	done    chan struct{}
	dropped atomic.Uint64
	once    sync.Once
	wg      sync.WaitGroup
}

// ID returns the peer id
func (p *Peer) ID() string {
	return p.id
}

// SendToOthers queues payload for every other peer; a full inbox drops the message
func (p *Peer) SendToOthers(method string, payload []byte) error {
	select {
	case <-p.done:
		return transport.ErrClosed
	default:
	}

	p.hub.mu.RLock()
	defer p.hub.mu.RUnlock()

	for other := range p.hub.peers {
		if other == p {
			continue
		}
		msg := message{method: method, payload: append([]byte(nil), payload...)}
		select {
		case other.inbox <- msg:
		default:
			other.dropped.Add(1)
		}
	}
	return nil
}

// Dropped returns how many inbound messages were lost to a full inbox
func (p *Peer) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Peer) deliver() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.inbox:
			p.Dispatch(msg.method, msg.payload)
		}
	}
}

// Close leaves the hub and stops delivery
func (p *Peer) Close() error {
	p.once.Do(func() {
		p.hub.leave(p)
		close(p.done)
		p.wg.Wait()
	})
	return nil
}

var _ transport.Transport = (*Peer)(nil)
