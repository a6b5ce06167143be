package discord

import (
	"encoding/binary"
	"fmt"
)

const (
	// maxChunk keeps every voice packet well under a typical path MTU
	maxChunk = 1000

	fragmentHeaderSize = 4
	maxFragments       = 255
)

// fragment splits payload into voice packets: [msg seq][index][count][chunk]
func fragment(seq uint16, payload []byte) ([][]byte, error) {
	count := (len(payload) + maxChunk - 1) / maxChunk
	if count == 0 {
		count = 1
	}
	if count > maxFragments {
		return nil, fmt.Errorf("payload of %d bytes needs %d fragments, max %d", len(payload), count, maxFragments)
	}

	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * maxChunk
		end := min(start+maxChunk, len(payload))

		pkt := make([]byte, fragmentHeaderSize, fragmentHeaderSize+end-start)
		binary.BigEndian.PutUint16(pkt, seq)
		pkt[2] = byte(i)
		pkt[3] = byte(count)
		pkt = append(pkt, payload[start:end]...)
		out = append(out, pkt)
	}
	return out, nil
}

type partial struct {
	seq    uint16
	chunks [][]byte
	have   int
}

// reassembler rebuilds payloads per sender. A sender starting a new message
// abandons its incomplete one, so a lost fragment loses exactly one message.
type reassembler struct {
	senders map[uint32]*partial
}

func newReassembler() *reassembler {
	return &reassembler{senders: make(map[uint32]*partial)}
}

// add consumes one voice packet and returns the payload once its message is complete
func (r *reassembler) add(ssrc uint32, pkt []byte) ([]byte, bool, error) {
	if len(pkt) < fragmentHeaderSize {
		return nil, false, fmt.Errorf("voice packet of %d bytes is shorter than the fragment header", len(pkt))
	}
	seq := binary.BigEndian.Uint16(pkt)
	index, count := int(pkt[2]), int(pkt[3])
	if count == 0 || index >= count {
		return nil, false, fmt.Errorf("invalid fragment %d/%d", index, count)
	}

	p, ok := r.senders[ssrc]
	if !ok || p.seq != seq || len(p.chunks) != count {
		p = &partial{seq: seq, chunks: make([][]byte, count)}
		r.senders[ssrc] = p
	}
	if p.chunks[index] == nil {
		p.chunks[index] = append([]byte{}, pkt[fragmentHeaderSize:]...)
		p.have++
	}
	if p.have < count {
		return nil, false, nil
	}

	delete(r.senders, ssrc)
	size := 0
	for _, c := range p.chunks {
		size += len(c)
	}
	out := make([]byte, 0, size)
	for _, c := range p.chunks {
		out = append(out, c...)
	}
	return out, true, nil
}
