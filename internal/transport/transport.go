package transport

import (
	"errors"
	"fmt"
	"sync"
)

// MethodReceiveSamples carries compressed audio frames between peers
const MethodReceiveSamples = "ReceiveSamples"

var (
	// ErrClosed is returned when sending on a closed transport
	ErrClosed = errors.New("transport closed")
	// ErrNotConnected is returned while a transport is reconnecting
	ErrNotConnected = errors.New("transport not connected")
	// ErrUnknownMethod is returned for methods the wire format cannot carry
	ErrUnknownMethod = errors.New("unknown method")
)

// Handler receives the payload of an inbound message.
// It runs on the transport's goroutine and must return quickly.
type Handler func(payload []byte)

// Transport delivers messages to every other peer of the session.
// Delivery is best effort: no acknowledgement, no retransmission, FIFO per sender at most.
type Transport interface {
	// SendToOthers sends payload to all peers except the sender.
	// A nil error only means the message left this process.
	SendToOthers(method string, payload []byte) error

	// Handle registers h for inbound messages of method, replacing any previous handler
	Handle(method string, h Handler)

	// Close stops delivery and releases the connection
	Close() error
}

// Handlers is a concurrency safe method table shared by the transport implementations
type Handlers struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// Handle registers h for method; a nil h removes the registration
func (h *Handlers) Handle(method string, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handlers == nil {
		h.handlers = make(map[string]Handler)
	}
	if handler == nil {
		delete(h.handlers, method)
		return
	}
	h.handlers[method] = handler
}

// Dispatch calls the handler registered for method and reports whether one existed
func (h *Handlers) Dispatch(method string, payload []byte) bool {
	h.mu.RLock()
	handler, ok := h.handlers[method]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	handler(payload)
	return true
}

// payload types for RTP framing, in the dynamic range
var payloadTypes = map[string]uint8{
	MethodReceiveSamples: 96,
}

// PayloadType returns the RTP payload type that carries method
func PayloadType(method string) (uint8, error) {
	pt, ok := payloadTypes[method]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return pt, nil
}

// MethodForPayloadType is the inverse of PayloadType
func MethodForPayloadType(pt uint8) (string, bool) {
	for method, t := range payloadTypes {
		if t == pt {
			return method, true
		}
	}
	return "", false
}
