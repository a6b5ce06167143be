package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankogit/purevoip/internal/audio"
	"github.com/ankogit/purevoip/internal/voip"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VOIP_CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, RolePeer, cfg.Role)
	assert.NotEmpty(t, cfg.PeerID)
	assert.Equal(t, 8000, cfg.SampleRate)
	assert.Equal(t, 3, cfg.SampleDivisor)
	assert.Equal(t, 60, cfg.RecordLength)
	assert.Equal(t, float32(30), cfg.Gain)
	assert.Equal(t, 16, cfg.QueueCapacity)
	assert.Equal(t, time.Second, cfg.DisposeDelay)
	assert.Equal(t, TransportUDP, cfg.Transport)
	assert.Equal(t, logrus.InfoLevel, cfg.Level())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VOIP_CONFIG_FILE", "")
	t.Setenv("VOIP_PEER_ID", "alice")
	t.Setenv("VOIP_TRANSMIT", "false")
	t.Setenv("VOIP_SAMPLE_RATE", "16000")
	t.Setenv("VOIP_GAIN", "1.5")
	t.Setenv("VOIP_TICK_INTERVAL", "10ms")
	t.Setenv("VOIP_PACING", "tick")
	t.Setenv("VOIP_WRAP_POLICY", "reset")
	t.Setenv("VOIP_TRANSPORT", "ws")
	t.Setenv("VOIP_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.PeerID)
	assert.False(t, cfg.Transmit)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())

	sc := cfg.SessionConfig()
	assert.Equal(t, "alice", sc.PeerID)
	assert.Equal(t, 16000, sc.SampleRate)
	assert.Equal(t, float32(1.5), sc.Gain)
	assert.Equal(t, 10*time.Millisecond, sc.TickInterval)
	assert.Equal(t, voip.PacingTick, sc.Pacing)
	assert.Equal(t, audio.WrapReset, sc.WrapPolicy)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("VOIP_CONFIG_FILE", "")
	t.Setenv("VOIP_SAMPLE_RATE", "fast")
	t.Setenv("VOIP_TICK_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VOIP_SAMPLE_RATE")
	assert.Contains(t, err.Error(), "VOIP_TICK_INTERVAL")
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voip.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
peer_id: bob
compression: zstd
queue_capacity: 4
dispose_delay: 250ms
`), 0o600))

	t.Setenv("VOIP_CONFIG_FILE", path)
	t.Setenv("VOIP_QUEUE_CAPACITY", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bob", cfg.PeerID)
	assert.Equal(t, "zstd", cfg.Compression)
	assert.Equal(t, 250*time.Millisecond, cfg.DisposeDelay)
	// environment wins over the file
	assert.Equal(t, 8, cfg.QueueCapacity)
}

func TestLoad_YAMLUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voip.yaml")
	require.NoError(t, os.WriteFile(path, []byte("radio_url: http://example.com\n"), 0o600))
	t.Setenv("VOIP_CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, ok: true},
		{name: "relay ignores peer settings", mutate: func(c *Config) { c.Role = RoleRelay; c.Transport = "carrier pigeon" }, ok: true},
		{name: "unknown role", mutate: func(c *Config) { c.Role = "server" }},
		{name: "wav capture needs input", mutate: func(c *Config) { c.Capture = BackendWAV }},
		{name: "wav playback needs output", mutate: func(c *Config) { c.Playback = BackendWAV }},
		{name: "sample rate", mutate: func(c *Config) { c.SampleRate = 0 }},
		{name: "divisor", mutate: func(c *Config) { c.SampleDivisor = 0 }},
		{name: "queue", mutate: func(c *Config) { c.QueueCapacity = 0 }},
		{name: "pacing", mutate: func(c *Config) { c.Pacing = "eager" }},
		{name: "wrap policy", mutate: func(c *Config) { c.WrapPolicy = "clamp" }},
		{name: "compression", mutate: func(c *Config) { c.Compression = "gzip" }},
		{name: "discord needs token", mutate: func(c *Config) { c.Transport = TransportDiscord }},
		{name: "discord complete", mutate: func(c *Config) {
			c.Transport = TransportDiscord
			c.DiscordToken = "t"
			c.DiscordGuildID = "g"
			c.DiscordChannelID = "c"
		}, ok: true},
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
