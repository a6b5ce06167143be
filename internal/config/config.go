package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ankogit/purevoip/internal/audio"
	"github.com/ankogit/purevoip/internal/voip"
)

// Roles
const (
	RolePeer  = "peer"
	RoleRelay = "relay"
)

// Audio backends for capture and playback
const (
	BackendMalgo = "malgo"
	BackendWAV   = "wav"
	BackendNone  = "none"
)

// Transports
const (
	TransportUDP     = "udp"
	TransportWS      = "ws"
	TransportDiscord = "discord"
)

// Config holds all configuration for a voice peer or relay
type Config struct {
	Role     string `yaml:"role"`
	PeerID   string `yaml:"peer_id"`
	Transmit bool   `yaml:"transmit"`

	Capture       string `yaml:"capture"`
	CaptureDevice string `yaml:"capture_device"`
	WAVInput      string `yaml:"wav_input"`
	Playback      string `yaml:"playback"`
	WAVOutput     string `yaml:"wav_output"`

	SampleRate    int           `yaml:"sample_rate"`
	SampleDivisor int           `yaml:"sample_divisor"`
	RecordLength  int           `yaml:"record_length"`
	Gain          float32       `yaml:"gain"`
	TickInterval  time.Duration `yaml:"tick_interval"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`
	QueueCapacity int           `yaml:"queue_capacity"`
	DisposeDelay  time.Duration `yaml:"dispose_delay"`
	Pacing        string        `yaml:"pacing"`
	WrapPolicy    string        `yaml:"wrap_policy"`
	Compression   string        `yaml:"compression"`

	Transport        string `yaml:"transport"`
	UDPGroup         string `yaml:"udp_group"`
	UDPInterface     string `yaml:"udp_interface"`
	RelayURL         string `yaml:"relay_url"`
	RelayAddr        string `yaml:"relay_addr"`
	DiscordToken     string `yaml:"discord_token"`
	DiscordGuildID   string `yaml:"discord_guild_id"`
	DiscordChannelID string `yaml:"discord_channel_id"`

	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBackoffBase time.Duration `yaml:"reconnect_backoff"`
	VoiceCheckInterval   time.Duration `yaml:"voice_check_interval"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Role:     RolePeer,
		Transmit: true,

		Capture:  BackendMalgo,
		Playback: BackendMalgo,

		SampleRate:    audio.SampleRate,
		SampleDivisor: audio.SampleDivisor,
		RecordLength:  audio.RecordLength,
		Gain:          audio.DefaultGain,
		TickInterval:  20 * time.Millisecond,
		ReadyTimeout:  5 * time.Second,
		QueueCapacity: 16,
		DisposeDelay:  time.Second,
		Pacing:        "duration",
		WrapPolicy:    "modular",
		Compression:   "s2",

		Transport: TransportUDP,
		UDPGroup:  "239.255.42.99:5004",
		RelayURL:  "ws://127.0.0.1:8765/voip",
		RelayAddr: ":8765",

		MaxReconnectAttempts: 5,
		ReconnectBackoffBase: 2 * time.Second,
		VoiceCheckInterval:   20 * time.Second,

		MetricsAddr: ":9090",
		LogLevel:    "info",
	}
}

// Load loads configuration from an optional .env file, an optional YAML file
// named by VOIP_CONFIG_FILE and the environment, in increasing priority
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("VOIP_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.PeerID == "" {
		cfg.PeerID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// envReader collects parse errors so every bad variable is reported at once
type envReader struct {
	errs []error
}

func (r *envReader) text(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (r *envReader) float(key string, dst *float32) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = float32(f)
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func (c *Config) applyEnv() error {
	r := &envReader{}

	r.text("VOIP_ROLE", &c.Role)
	r.text("VOIP_PEER_ID", &c.PeerID)
	r.boolean("VOIP_TRANSMIT", &c.Transmit)

	r.text("VOIP_CAPTURE", &c.Capture)
	r.text("VOIP_CAPTURE_DEVICE", &c.CaptureDevice)
	r.text("VOIP_WAV_INPUT", &c.WAVInput)
	r.text("VOIP_PLAYBACK", &c.Playback)
	r.text("VOIP_WAV_OUTPUT", &c.WAVOutput)

	r.integer("VOIP_SAMPLE_RATE", &c.SampleRate)
	r.integer("VOIP_SAMPLE_DIVISOR", &c.SampleDivisor)
	r.integer("VOIP_RECORD_LENGTH", &c.RecordLength)
	r.float("VOIP_GAIN", &c.Gain)
	r.duration("VOIP_TICK_INTERVAL", &c.TickInterval)
	r.duration("VOIP_READY_TIMEOUT", &c.ReadyTimeout)
	r.integer("VOIP_QUEUE_CAPACITY", &c.QueueCapacity)
	r.duration("VOIP_DISPOSE_DELAY", &c.DisposeDelay)
	r.text("VOIP_PACING", &c.Pacing)
	r.text("VOIP_WRAP_POLICY", &c.WrapPolicy)
	r.text("VOIP_COMPRESSION", &c.Compression)

	r.text("VOIP_TRANSPORT", &c.Transport)
	r.text("VOIP_UDP_GROUP", &c.UDPGroup)
	r.text("VOIP_UDP_INTERFACE", &c.UDPInterface)
	r.text("VOIP_RELAY_URL", &c.RelayURL)
	r.text("VOIP_RELAY_ADDR", &c.RelayAddr)
	r.text("DISCORD_TOKEN", &c.DiscordToken)
	r.text("DISCORD_GUILD_ID", &c.DiscordGuildID)
	r.text("DISCORD_CHANNEL_ID", &c.DiscordChannelID)

	r.integer("VOIP_MAX_RECONNECT_ATTEMPTS", &c.MaxReconnectAttempts)
	r.duration("VOIP_RECONNECT_BACKOFF", &c.ReconnectBackoffBase)
	r.duration("VOIP_VOICE_CHECK_INTERVAL", &c.VoiceCheckInterval)

	r.text("VOIP_METRICS_ADDR", &c.MetricsAddr)
	r.text("VOIP_LOG_LEVEL", &c.LogLevel)

	if len(r.errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errors.Join(r.errs...))
	}
	return nil
}

// Validate checks the configuration and returns every problem found
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	switch c.Role {
	case RoleRelay:
		if c.RelayAddr == "" {
			add("relay_addr cannot be empty for the relay role")
		}
		return errors.Join(errs...)
	case RolePeer:
	default:
		add("role must be %q or %q, got %q", RolePeer, RoleRelay, c.Role)
		return errors.Join(errs...)
	}

	switch c.Capture {
	case BackendMalgo, BackendNone:
	case BackendWAV:
		if c.WAVInput == "" {
			add("wav_input is required for wav capture")
		}
	default:
		add("unknown capture backend %q", c.Capture)
	}

	switch c.Playback {
	case BackendMalgo, BackendNone:
	case BackendWAV:
		if c.WAVOutput == "" {
			add("wav_output is required for wav playback")
		}
	default:
		add("unknown playback backend %q", c.Playback)
	}

	if c.SampleRate < 1000 || c.SampleRate > 192000 {
		add("sample_rate must be between 1000 and 192000, got %d", c.SampleRate)
	}
	if c.SampleDivisor < 1 {
		add("sample_divisor must be at least 1, got %d", c.SampleDivisor)
	}
	if c.RecordLength < 1 {
		add("record_length must be at least 1 second, got %d", c.RecordLength)
	}
	if c.Gain < 0 {
		add("gain cannot be negative, got %v", c.Gain)
	}
	if c.TickInterval <= 0 {
		add("tick_interval must be positive, got %v", c.TickInterval)
	}
	if c.ReadyTimeout <= 0 {
		add("ready_timeout must be positive, got %v", c.ReadyTimeout)
	}
	if c.QueueCapacity < 1 {
		add("queue_capacity must be at least 1, got %d", c.QueueCapacity)
	}
	if c.DisposeDelay < 0 {
		add("dispose_delay cannot be negative, got %v", c.DisposeDelay)
	}
	if _, err := voip.ParsePacing(c.Pacing); err != nil {
		errs = append(errs, err)
	}
	if _, err := audio.ParseWrapPolicy(c.WrapPolicy); err != nil {
		errs = append(errs, err)
	}
	switch c.Compression {
	case "s2", "zstd":
	default:
		add("unknown compression %q", c.Compression)
	}

	switch c.Transport {
	case TransportUDP:
		if c.UDPGroup == "" {
			add("udp_group cannot be empty for the udp transport")
		}
	case TransportWS:
		if c.RelayURL == "" {
			add("relay_url cannot be empty for the ws transport")
		}
	case TransportDiscord:
		if c.DiscordToken == "" {
			add("DISCORD_TOKEN not set in environment")
		}
		if c.DiscordGuildID == "" || c.DiscordChannelID == "" {
			add("discord_guild_id and discord_channel_id are required for the discord transport")
		}
	default:
		add("unknown transport %q", c.Transport)
	}
	if c.MaxReconnectAttempts < 0 {
		add("max_reconnect_attempts cannot be negative, got %d", c.MaxReconnectAttempts)
	}
	if c.ReconnectBackoffBase <= 0 {
		add("reconnect_backoff must be positive, got %v", c.ReconnectBackoffBase)
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, info when unset or invalid
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// SessionConfig returns the voice session parameters
func (c *Config) SessionConfig() voip.Config {
	pacing, _ := voip.ParsePacing(c.Pacing)
	wrap, _ := audio.ParseWrapPolicy(c.WrapPolicy)

	return voip.Config{
		PeerID:        c.PeerID,
		DeviceID:      c.CaptureDevice,
		SampleRate:    c.SampleRate,
		Channels:      audio.Channels,
		Divisor:       c.SampleDivisor,
		RecordLength:  c.RecordLength,
		Gain:          c.Gain,
		TickInterval:  c.TickInterval,
		ReadyTimeout:  c.ReadyTimeout,
		QueueCapacity: c.QueueCapacity,
		DisposeDelay:  c.DisposeDelay,
		Pacing:        pacing,
		WrapPolicy:    wrap,
	}
}
