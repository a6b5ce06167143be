package discord

import (
	"strings"
)

// parseCommand extracts the command name from a "!name args" message
func parseCommand(content string) (string, bool) {
	if len(content) < 2 || content[0] != '!' {
		return "", false
	}
	fields := strings.Fields(content[1:])
	if len(fields) == 0 {
		return "", false
	}
	return strings.ToLower(fields[0]), true
}

// runCommand executes a text command and returns the reply, empty for unknown commands
func (b *Bridge) runCommand(command string) string {
	switch command {
	case "talk":
		return b.handleTalk()
	case "mute":
		return b.handleMute()
	case "status":
		return b.handleStatus()
	}
	return ""
}

// handleTalk handles the !talk command
func (b *Bridge) handleTalk() string {
	c := b.getController()
	if c == nil {
		return "Голосовая сессия не запущена."
	}

	if err := c.StartTransmission(b.ctx); err != nil {
		b.logger.WithError(err).Errorf("[%s] Failed to start transmission", b.config.GuildID)
		return "Не удалось включить микрофон: " + err.Error()
	}
	return "🎙️ Передаю голос!"
}

// handleMute handles the !mute command
func (b *Bridge) handleMute() string {
	c := b.getController()
	if c == nil {
		return "Голосовая сессия не запущена."
	}

	c.StopTransmission()
	return "🔇 Микрофон выключен."
}

// handleStatus handles the !status command
func (b *Bridge) handleStatus() string {
	var sb strings.Builder

	if vc := b.currentVC(); vc != nil {
		sb.WriteString("Голосовой канал: **подключен**")
	} else {
		sb.WriteString("Голосовой канал: **не подключен**")
	}

	if c := b.getController(); c != nil && c.IsTransmitting() {
		sb.WriteString("\nМикрофон: **включен**")
	} else {
		sb.WriteString("\nМикрофон: **выключен**")
	}
	return sb.String()
}
