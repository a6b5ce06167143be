package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// disconnect drops vc, ignoring panics from the voice fork
func (b *Bridge) disconnect(vc *discordgo.VoiceConnection) {
	// Remove from map first to prevent Kill() panic
	if cur, exists := b.session.VoiceConnections[b.config.GuildID]; exists && cur == vc {
		delete(b.session.VoiceConnections, b.config.GuildID)
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Debugf("[%s] Panic during disconnect (ignored): %v", b.config.GuildID, r)
			}
		}()
		_ = vc.Disconnect(context.Background())
	}()
}

// connectToChannel joins a voice channel undeafened so other bots can be heard
func (b *Bridge) connectToChannel(guildID, channelID string) (*discordgo.VoiceConnection, error) {
	if channelID == "" {
		return nil, fmt.Errorf("no voice channel configured")
	}
	s := b.session

	if vc, exists := s.VoiceConnections[guildID]; exists {
		if vc.Status == discordgo.VoiceConnectionStatusReady {
			vs, err := s.State.VoiceState(guildID, s.State.User.ID)
			if err == nil && vs != nil && vs.ChannelID == channelID {
				return vc, nil
			}
		}
		b.disconnect(vc)
	}

	var vc *discordgo.VoiceConnection
	var err error

	ctx, cancel := context.WithTimeout(b.ctx, 15*time.Second)
	defer cancel()

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-b.ctx.Done():
				return nil, b.ctx.Err()
			}
			if existing, exists := s.VoiceConnections[guildID]; exists {
				b.disconnect(existing)
			}
		}

		// Wrap ChannelVoiceJoin in recover to catch panics from fork
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Warnf("[%s] Panic during ChannelVoiceJoin: %v", guildID, r)
					if badVC, exists := s.VoiceConnections[guildID]; exists {
						b.disconnect(badVC)
					}
					err = fmt.Errorf("panic during join: %v", r)
				}
			}()
			// mute=false, deaf=false: the bridge both talks and listens
			vc, err = s.ChannelVoiceJoin(ctx, guildID, channelID, false, false)
		}()

		if err == nil && vc != nil {
			break
		}

		b.logger.Warnf("[%s] Voice join attempt %d failed: %v", guildID, attempt+1, err)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel after 3 attempts: %w", err)
	}
	if vc == nil {
		return nil, fmt.Errorf("voice connection is nil after join")
	}

	timeout := time.NewTimer(10 * time.Second)
	defer timeout.Stop()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if vc.Status == discordgo.VoiceConnectionStatusReady {
				b.logger.Infof("[%s] Connected to voice channel %s", guildID, channelID)
				return vc, nil
			}
		case <-timeout.C:
			b.disconnect(vc)
			return nil, fmt.Errorf("timeout waiting for voice connection")
		case <-b.ctx.Done():
			b.disconnect(vc)
			return nil, b.ctx.Err()
		}
	}
}
