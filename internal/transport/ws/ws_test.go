package ws_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankogit/purevoip/internal/metrics"
	"github.com/ankogit/purevoip/internal/transport"
	"github.com/ankogit/purevoip/internal/transport/ws"
)

type collector struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *collector) handle(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, append([]byte(nil), p...))
}

func (c *collector) snapshot() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.msgs...)
}

func startRelay(t *testing.T) (*ws.Relay, *metrics.Metrics, string) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	m := metrics.NewUnregistered()
	relay := ws.NewRelay(m, logger)
	srv := httptest.NewServer(relay)
	t.Cleanup(srv.Close)
	return relay, m, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, id string) *ws.Client {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c, err := ws.Dial(context.Background(), ws.ClientConfig{
		URL:                  url,
		PeerID:               id,
		MaxReconnectAttempts: 1,
		ReconnectBackoff:     10 * time.Millisecond,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRelay_ForwardsToOthersOnly(t *testing.T) {
	t.Parallel()

	relay, m, url := startRelay(t)
	a := dial(t, url, "a")
	b := dial(t, url, "b")
	c := dial(t, url, "c")

	var gotA, gotB, gotC collector
	a.Handle(transport.MethodReceiveSamples, gotA.handle)
	b.Handle(transport.MethodReceiveSamples, gotB.handle)
	c.Handle(transport.MethodReceiveSamples, gotC.handle)

	require.Eventually(t, func() bool { return relay.Peers() == 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.SendToOthers(transport.MethodReceiveSamples, []byte{1}))
	require.NoError(t, a.SendToOthers(transport.MethodReceiveSamples, []byte{2}))

	require.Eventually(t, func() bool {
		return len(gotB.snapshot()) == 2 && len(gotC.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, [][]byte{{1}, {2}}, gotB.snapshot())
	assert.Equal(t, [][]byte{{1}, {2}}, gotC.snapshot())
	assert.Empty(t, gotA.snapshot())
	assert.Equal(t, float64(4), testutil.ToFloat64(m.RelayMessages))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.RelayPeers))
}

func TestRelay_PeerLeaves(t *testing.T) {
	t.Parallel()

	relay, _, url := startRelay(t)
	a := dial(t, url, "a")
	_ = dial(t, url, "b")

	require.Eventually(t, func() bool { return relay.Peers() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, a.Close())
	assert.Eventually(t, func() bool { return relay.Peers() == 1 }, time.Second, 5*time.Millisecond)
}

func TestClient_CloseDoesNotRedial(t *testing.T) {
	t.Parallel()

	relay, _, url := startRelay(t)
	logger, hook := test.NewNullLogger()
	c, err := ws.Dial(context.Background(), ws.ClientConfig{
		URL:                  url,
		PeerID:               "a",
		MaxReconnectAttempts: 5,
		ReconnectBackoff:     5 * time.Millisecond,
	}, logger)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return relay.Peers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return relay.Peers() == 0 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return relay.Peers() > 0 }, 100*time.Millisecond, 5*time.Millisecond)

	for _, e := range hook.AllEntries() {
		assert.NotContains(t, e.Message, "Lost relay connection")
		assert.NotContains(t, e.Message, "Reconnect attempt")
	}
}

func TestClient_ClosedAndDisconnected(t *testing.T) {
	t.Parallel()

	logger, _ := test.NewNullLogger()
	relay := ws.NewRelay(metrics.NewUnregistered(), logger)
	srv := httptest.NewServer(relay)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c := dial(t, url, "a")
	assert.True(t, c.Connected())

	srv.Close()
	require.NoError(t, relay.Close())

	require.Eventually(t, func() bool { return !c.Connected() }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.SendToOthers(transport.MethodReceiveSamples, []byte{1}), transport.ErrNotConnected)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.SendToOthers(transport.MethodReceiveSamples, []byte{1}), transport.ErrClosed)
}

func TestDial_Unreachable(t *testing.T) {
	t.Parallel()

	logger, _ := test.NewNullLogger()
	_, err := ws.Dial(context.Background(), ws.ClientConfig{URL: "ws://127.0.0.1:1/voip"}, logger)
	assert.Error(t, err)
}
