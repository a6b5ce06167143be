package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// backoff returns the delay before reconnect attempt number attempts+1
func backoff(attempts int, base time.Duration) time.Duration {
	return time.Duration(1<<uint(attempts)) * base
}

// reconnectVoice rejoins the channel with exponential backoff
func (b *Bridge) reconnectVoice() {
	guildID := b.config.GuildID

	for b.state.IsActive() {
		attempts := b.state.GetReconnectAttempts()
		if attempts >= b.config.MaxReconnectAttempts {
			b.logger.Errorf("[%s] Reached max reconnect attempts (%d). Giving up", guildID, attempts)
			return
		}

		delay := backoff(attempts, b.config.ReconnectBackoff)
		b.logger.Infof("[%s] Reconnect attempt #%d, sleeping %v before trying", guildID, attempts+1, delay)

		select {
		case <-time.After(delay):
		case <-b.ctx.Done():
			return
		}

		b.state.IncrementReconnectAttempts()

		vc, err := b.connectToChannel(guildID, b.state.GetChannelID())
		if err != nil {
			b.logger.WithError(err).Errorf("[%s] Failed to reconnect to channel", guildID)
			continue
		}

		b.state.ResetReconnectAttempts()
		b.attach(vc)
		return
	}

	b.logger.Infof("[%s] Bridge not active anymore, skipping reconnect", guildID)
}

// voiceCheckLoop periodically checks the voice connection
func (b *Bridge) voiceCheckLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.VoiceCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if !b.state.IsActive() {
				continue
			}
			vc := b.currentVC()
			if vc == nil || vc.Status != discordgo.VoiceConnectionStatusReady {
				b.logger.Infof("[%s] voice_check_loop: detected dead vc -> reconnecting", b.config.GuildID)
				b.reconnectVoice()
			}
		}
	}
}
