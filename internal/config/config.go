package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAddress is the control endpoint dialled when none is configured.
const DefaultAddress = "127.0.0.1:5000"

type Config struct {
	Endpoint  EndpointConfig  `yaml:"endpoint"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Session   SessionConfig   `yaml:"session"`
	Observe   ObserveConfig   `yaml:"observe"`
	Log       LogConfig       `yaml:"log"`
	Peer      PeerConfig      `yaml:"peer"`
}

type EndpointConfig struct {
	Address       string        `yaml:"address"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxFrameBytes int           `yaml:"max_frame_bytes"`
}

// HeartbeatConfig controls the liveness probe. An Interval of zero turns
// the probe off. Payload is written to the socket verbatim.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
	Payload  string        `yaml:"payload"`
}

type SessionConfig struct {
	BusCapacity  int `yaml:"bus_capacity"`
	CommandQueue int `yaml:"command_queue"`
}

// ObserveConfig enables the HTTP side server when Listen is non-empty.
type ObserveConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type PeerConfig struct {
	Listen         string        `yaml:"listen"`
	SignalInterval time.Duration `yaml:"signal_interval"`
}

func defaultConfig() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			Address:       DefaultAddress,
			DialTimeout:   5 * time.Second,
			WriteTimeout:  5 * time.Second,
			MaxFrameBytes: 1 << 20,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 2 * time.Second,
			Payload:  "\n",
		},
		Session: SessionConfig{
			BusCapacity:  64,
			CommandQueue: 32,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Peer: PeerConfig{
			Listen:         DefaultAddress,
			SignalInterval: 250 * time.Millisecond,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate rejects values the session layer cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Endpoint.Address == "":
		return errors.New("endpoint.address is empty")
	case c.Endpoint.DialTimeout < 0:
		return errors.New("endpoint.dial_timeout is negative")
	case c.Endpoint.WriteTimeout < 0:
		return errors.New("endpoint.write_timeout is negative")
	case c.Endpoint.MaxFrameBytes < 64:
		return fmt.Errorf("endpoint.max_frame_bytes %d is below 64", c.Endpoint.MaxFrameBytes)
	case c.Heartbeat.Interval < 0:
		return errors.New("heartbeat.interval is negative")
	case c.Heartbeat.Interval > 0 && c.Heartbeat.Payload == "":
		return errors.New("heartbeat.payload is empty")
	case c.Session.BusCapacity < 1:
		return fmt.Errorf("session.bus_capacity %d is below 1", c.Session.BusCapacity)
	case c.Session.CommandQueue < 1:
		return fmt.Errorf("session.command_queue %d is below 1", c.Session.CommandQueue)
	case c.Peer.SignalInterval <= 0:
		return errors.New("peer.signal_interval must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}
	return nil
}
