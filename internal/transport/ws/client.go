package ws

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ankogit/purevoip/internal/transport"
)

const (
	// readLimit bounds a single relay message; a one second frame at 48kHz is ~190KB before compression
	readLimit = 1 << 20

	writeTimeout = 100 * time.Millisecond
	dialTimeout  = 10 * time.Second
)

// ClientConfig describes how a peer reaches the relay
type ClientConfig struct {
	URL                  string
	PeerID               string
	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
}

// Client is a peer connection to a Relay. It implements transport.Transport.
type Client struct {
	transport.Handlers

	cfg    ClientConfig
	logger *logrus.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Dial connects to the relay and keeps the connection alive until Close
func Dial(ctx context.Context, cfg ClientConfig, logger *logrus.Logger) (*Client, error) {
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = time.Second
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.wg.Add(1)
	go c.run(conn)

	logger.Infof("[%s] Connected to relay %s", cfg.PeerID, cfg.URL)
	return c, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	if c.cfg.PeerID != "" {
		q := u.Query()
		q.Set("peer", c.cfg.PeerID)
		u.RawQuery = q.Encode()
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// run reads from conn until it fails, then reconnects with exponential backoff
func (c *Client) run(conn *websocket.Conn) {
	defer c.wg.Done()

	for conn != nil {
		err := c.readLoop(conn)
		c.setConn(nil)
		conn.Close(websocket.StatusGoingAway, "")

		if c.ctx.Err() != nil {
			return
		}
		c.logger.WithError(err).Warnf("[%s] Lost relay connection", c.cfg.PeerID)
		conn = c.reconnect()
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		typ, msg, err := conn.Read(c.ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			continue
		}

		method, payload, err := transport.DecodeEnvelope(msg)
		if err != nil {
			c.logger.WithError(err).Debugf("[%s] Ignoring malformed relay message", c.cfg.PeerID)
			continue
		}
		if !c.Dispatch(method, payload) {
			c.logger.Debugf("[%s] No handler for method %s", c.cfg.PeerID, method)
		}
	}
}

func (c *Client) reconnect() *websocket.Conn {
	for attempts := 0; attempts < c.cfg.MaxReconnectAttempts; attempts++ {
		backoff := time.Duration(1<<uint(attempts)) * c.cfg.ReconnectBackoff
		c.logger.Infof("[%s] Reconnect attempt #%d, sleeping %v before trying", c.cfg.PeerID, attempts+1, backoff)

		select {
		case <-time.After(backoff):
		case <-c.ctx.Done():
			return nil
		}

		conn, err := c.dial(c.ctx)
		if err != nil {
			c.logger.WithError(err).Errorf("[%s] Failed to reconnect to relay", c.cfg.PeerID)
			continue
		}

		c.setConn(conn)
		c.logger.Infof("[%s] Reconnected to relay", c.cfg.PeerID)
		return conn
	}

	c.logger.Errorf("[%s] Reached max reconnect attempts (%d). Giving up", c.cfg.PeerID, c.cfg.MaxReconnectAttempts)
	return nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn = conn
}

// Connected reports whether the relay connection is currently up
func (c *Client) Connected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}

// SendToOthers sends payload to the relay, which forwards it to every other peer
func (c *Client) SendToOthers(method string, payload []byte) error {
	if c.ctx.Err() != nil {
		return transport.ErrClosed
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return transport.ErrNotConnected
	}

	msg, err := transport.EncodeEnvelope(method, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageBinary, msg); err != nil {
		return fmt.Errorf("failed to write to relay: %w", err)
	}
	return nil
}

// Close disconnects from the relay and stops reconnecting
func (c *Client) Close() error {
	c.once.Do(func() {
		// cancel first so run sees a closed client and does not redial
		c.cancel()

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn != nil {
			// the read loop may have closed it already
			_ = conn.Close(websocket.StatusNormalClosure, "peer closed")
		}

		c.wg.Wait()
		c.logger.Infof("[%s] Relay connection closed", c.cfg.PeerID)
	})
	return nil
}

var _ transport.Transport = (*Client)(nil)
