// Package config loads and validates the application configuration for the
// voice capture pipeline from a YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syf20020816/Gamate/audio"
	"github.com/syf20020816/Gamate/audio/listen"
	"github.com/syf20020816/Gamate/audio/vad"
)

// Config is the complete pipeline configuration.
type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	VAD      VADConfig      `yaml:"vad"`
	Listener ListenerConfig `yaml:"listener"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AudioConfig selects the capture device parameters. The device may
// negotiate a different native rate than the one requested.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

// VADConfig contains the voice activity detection thresholds.
type VADConfig struct {
	VolumeThreshold       float32 `yaml:"volume_threshold"`
	SilenceDurationSecs   float64 `yaml:"silence_duration_secs"`
	MinSpeechDurationSecs float64 `yaml:"min_speech_duration_secs"`
	MaxSpeechDurationSecs float64 `yaml:"max_speech_duration_secs"`
	RMSWindowSize         int     `yaml:"rms_window_size"`

	// SileroModelPath switches the speech gate from RMS energy to the
	// Silero ONNX model. Empty keeps the default energy gate.
	SileroModelPath string  `yaml:"silero_model_path"`
	SileroThreshold float32 `yaml:"silero_threshold"`
}

// ListenerConfig tunes the orchestrator.
type ListenerConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration the desktop app ships with.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads and parses the configuration file, applies defaults for unset
// values, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	def := vad.DefaultConfig()
	if c.VAD.VolumeThreshold == 0 {
		c.VAD.VolumeThreshold = def.VolumeThreshold
	}
	if c.VAD.SilenceDurationSecs == 0 {
		c.VAD.SilenceDurationSecs = def.SilenceDuration.Seconds()
	}
	if c.VAD.MinSpeechDurationSecs == 0 {
		c.VAD.MinSpeechDurationSecs = def.MinSpeechDuration.Seconds()
	}
	if c.VAD.MaxSpeechDurationSecs == 0 {
		c.VAD.MaxSpeechDurationSecs = def.MaxSpeechDuration.Seconds()
	}
	if c.VAD.RMSWindowSize == 0 {
		c.VAD.RMSWindowSize = def.RMSWindowSize
	}
	if c.VAD.SileroThreshold == 0 {
		c.VAD.SileroThreshold = 0.5
	}
	if c.Listener.PollIntervalMs == 0 {
		c.Listener.PollIntervalMs = int(listen.DefaultPollInterval / time.Millisecond)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio: sample_rate %d out of range [8000, 192000]", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 {
		return fmt.Errorf("audio: channels must be 1 (mono), got %d", c.Audio.Channels)
	}
	if err := c.VadConfig().Validate(); err != nil {
		return err
	}
	if c.Listener.PollIntervalMs <= 0 {
		return fmt.Errorf("listener: poll_interval_ms must be > 0, got %d", c.Listener.PollIntervalMs)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}
	return nil
}

// VadConfig converts the YAML section to the detector config.
func (c *Config) VadConfig() vad.Config {
	return vad.Config{
		VolumeThreshold:   c.VAD.VolumeThreshold,
		SilenceDuration:   secs(c.VAD.SilenceDurationSecs),
		MinSpeechDuration: secs(c.VAD.MinSpeechDurationSecs),
		MaxSpeechDuration: secs(c.VAD.MaxSpeechDurationSecs),
		RMSWindowSize:     c.VAD.RMSWindowSize,
	}
}

// RecorderConfig converts the YAML section to the capture config.
func (c *Config) RecorderConfig() audio.RecorderConfig {
	rc := audio.DefaultRecorderConfig()
	rc.SampleRate = uint32(c.Audio.SampleRate)
	rc.Channels = uint32(c.Audio.Channels)
	return rc
}

// ListenConfig assembles the listener config.
func (c *Config) ListenConfig() listen.Config {
	return listen.Config{
		VAD:          c.VadConfig(),
		Recorder:     c.RecorderConfig(),
		PollInterval: time.Duration(c.Listener.PollIntervalMs) * time.Millisecond,
	}
}

// NewLogger builds a slog.Logger from the logging section.
func (c *LoggingConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
