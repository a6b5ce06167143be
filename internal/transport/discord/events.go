package discord

import (
	"github.com/bwmarrin/discordgo"
)

// onReady handles the ready event
func (b *Bridge) onReady(s *discordgo.Session, event *discordgo.Ready) {
	b.logger.Infof("Bot ready as %s (ID: %s)", event.User.Username, event.User.ID)

	// Ready fires again after gateway resumes
	b.checkOnce.Do(func() {
		b.wg.Add(1)
		go b.voiceCheckLoop()
	})
}

// onMessageCreate handles message creation events
func (b *Bridge) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.GuildID != b.config.GuildID {
		return
	}

	command, ok := parseCommand(m.Content)
	if !ok {
		return
	}

	if reply := b.runCommand(command); reply != "" {
		s.ChannelMessageSend(m.ChannelID, reply)
	}
}
