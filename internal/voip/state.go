package voip

// State is the transmission state of the local peer
type State int32

const (
	StateIdle State = iota
	StateTransmitting
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTransmitting:
		return "transmitting"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of the session counters
type Stats struct {
	State           State
	FramesCaptured  uint64
	FramesSent      uint64
	SendFailures    uint64
	FramesReceived  uint64
	FramesMalformed uint64
	FramesDropped   uint64
	FramesPlayed    uint64
	QueueDepth      int
}
