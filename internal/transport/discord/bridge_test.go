package discord

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankogit/purevoip/internal/transport"
)

func readyVC() *discordgo.VoiceConnection {
	return &discordgo.VoiceConnection{
		Status:   discordgo.VoiceConnectionStatusReady,
		OpusSend: make(chan []byte),
	}
}

func TestSendToOthers_NotConnected(t *testing.T) {
	t.Parallel()

	b := newTestBridge(t)
	assert.ErrorIs(t, b.SendToOthers(transport.MethodReceiveSamples, []byte{1}), transport.ErrNotConnected)
	assert.ErrorIs(t, b.SendToOthers("other", []byte{1}), transport.ErrUnknownMethod)

	b.cancel()
	assert.ErrorIs(t, b.SendToOthers(transport.MethodReceiveSamples, []byte{1}), transport.ErrClosed)
}

func TestSendToOthers_DoesNotWaitForChannel(t *testing.T) {
	t.Parallel()

	b := newTestBridge(t)
	b.vc = readyVC()

	// nothing reads OpusSend and no send loop runs
	payload := make([]byte, 2500)
	start := time.Now()
	for i := 0; i < sendQueueSize+12; i++ {
		require.NoError(t, b.SendToOthers(transport.MethodReceiveSamples, payload))
	}
	assert.Less(t, time.Since(start), sendTimeout)

	assert.Len(t, b.sendQueue, sendQueueSize)
	assert.Equal(t, uint64(12), b.sendDropped.Load())

	oldest := <-b.sendQueue
	require.Len(t, oldest, 3)
	assert.Equal(t, uint16(12), binary.BigEndian.Uint16(oldest[0]))
}

func TestSendLoop_DeliversFragmentsInOrder(t *testing.T) {
	t.Parallel()

	b := newTestBridge(t)
	vc := readyVC()
	b.vc = vc

	b.wg.Add(1)
	go b.sendLoop()
	t.Cleanup(func() {
		b.cancel()
		b.wg.Wait()
	})

	payload := make([]byte, 2500)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, b.SendToOthers(transport.MethodReceiveSamples, payload))
	require.NoError(t, b.SendToOthers(transport.MethodReceiveSamples, []byte{7}))

	r := newReassembler()
	var got [][]byte
	for len(got) < 2 {
		select {
		case pkt := <-vc.OpusSend:
			out, done, err := r.add(1, pkt)
			require.NoError(t, err)
			if done {
				got = append(got, out)
			}
		case <-time.After(time.Second):
			t.Fatalf("received %d of 2 messages", len(got))
		}
	}

	assert.Equal(t, payload, got[0])
	assert.Equal(t, []byte{7}, got[1])
}

func TestSendLoop_StopsOnClose(t *testing.T) {
	t.Parallel()

	b := newTestBridge(t)
	b.vc = readyVC()

	done := make(chan struct{})
	b.wg.Add(1)
	go func() {
		b.sendLoop()
		close(done)
	}()

	// blocks inside sendPackets since nobody reads OpusSend
	require.NoError(t, b.SendToOthers(transport.MethodReceiveSamples, []byte{1}))
	time.Sleep(10 * time.Millisecond)
	b.cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send loop did not stop")
	}
}
