package discord

import (
	"sync"
)

// State tracks the voice connection the bridge should keep alive
type State struct {
	Active            bool
	ChannelID         string
	ReconnectAttempts int
	mu                sync.Mutex
}

// NewState creates a new bridge state for channelID
func NewState(channelID string) *State {
	return &State{
		ChannelID: channelID,
	}
}

// SetActive sets whether the bridge should stay connected
func (s *State) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Active = active
}

// IsActive returns whether the bridge should stay connected
func (s *State) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Active
}

// GetChannelID returns the voice channel ID
func (s *State) GetChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ChannelID
}

// IncrementReconnectAttempts increments reconnect attempts
func (s *State) IncrementReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReconnectAttempts++
	return s.ReconnectAttempts
}

// ResetReconnectAttempts resets reconnect attempts
func (s *State) ResetReconnectAttempts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReconnectAttempts = 0
}

// GetReconnectAttempts returns reconnect attempts
func (s *State) GetReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReconnectAttempts
}
