package main

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/warpcomdev/ustreamerd/internal/encoder"
)

// Config is the on-disk configuration. Fields carry json/toml/yaml
// tags (the teacher's cmd/driver/config.go follows the same struct-tag
// triple-tagging convention); loadConfig in main.go decodes JSON only.
type Config struct {
	Port           int    `json:"Port" toml:"Port" yaml:"Port"`
	LogFolder      string `json:"LogFolder" toml:"LogFolder" yaml:"LogFolder"`
	Debug          bool   `json:"Debug" toml:"Debug" yaml:"Debug"`

	DesiredFPS      int    `json:"DesiredFPS" toml:"DesiredFPS" yaml:"DesiredFPS"`
	Width           int    `json:"Width" toml:"Width" yaml:"Width"`
	Height          int    `json:"Height" toml:"Height" yaml:"Height"`
	Workers         int    `json:"Workers" toml:"Workers" yaml:"Workers"`
	RingCapacity    int    `json:"RingCapacity" toml:"RingCapacity" yaml:"RingCapacity"`
	EncoderType     string `json:"EncoderType" toml:"EncoderType" yaml:"EncoderType"`
	Quality         int    `json:"Quality" toml:"Quality" yaml:"Quality"`
	DropSameFrames  int    `json:"DropSameFrames" toml:"DropSameFrames" yaml:"DropSameFrames"`
	AuthToken       string `json:"AuthToken" toml:"AuthToken" yaml:"AuthToken"`
	TCPNoDelay      bool   `json:"TCPNoDelay" toml:"TCPNoDelay" yaml:"TCPNoDelay"`

	Slowdown        bool `json:"Slowdown" toml:"Slowdown" yaml:"Slowdown"`
	SlowdownFactor  int  `json:"SlowdownFactor" toml:"SlowdownFactor" yaml:"SlowdownFactor"`
	ExitOnNoClientsSeconds int `json:"ExitOnNoClientsSeconds" toml:"ExitOnNoClientsSeconds" yaml:"ExitOnNoClientsSeconds"`

	JPEGSinkObject string `json:"JPEGSinkObject" toml:"JPEGSinkObject" yaml:"JPEGSinkObject"`
	H264SinkObject string `json:"H264SinkObject" toml:"H264SinkObject" yaml:"H264SinkObject"`
	SinkClientTTLSeconds int `json:"SinkClientTTLSeconds" toml:"SinkClientTTLSeconds" yaml:"SinkClientTTLSeconds"`
	SinkTimeoutSeconds   int `json:"SinkTimeoutSeconds" toml:"SinkTimeoutSeconds" yaml:"SinkTimeoutSeconds"`
}

// Check validates and fills in defaults, following the teacher's
// Config.Check convention (mutate in place, return the first hard error).
func (c *Config) Check(configPath string) error {
	if c.Port < 1024 || c.Port > 65535 {
		c.Port = 8080
	}
	if c.LogFolder == "" {
		c.LogFolder = filepath.Join(filepath.Dir(configPath), "logs")
	}
	if c.DesiredFPS < 1 {
		c.DesiredFPS = 15
	}
	if c.Width < 1 {
		c.Width = 1280
	}
	if c.Height < 1 {
		c.Height = 720
	}
	if c.Workers < 1 {
		c.Workers = 4
	}
	if c.RingCapacity < 1 {
		c.RingCapacity = 8
	}
	if c.EncoderType == "" {
		c.EncoderType = "cpu"
	}
	if _, err := encoder.ParseType(c.EncoderType); err != nil {
		return errors.New("EncoderType config parameter is invalid: " + c.EncoderType)
	}
	if c.Quality < 1 || c.Quality > 100 {
		c.Quality = 85
	}
	if c.SlowdownFactor < 1 {
		c.SlowdownFactor = 10
	}
	if c.SinkClientTTLSeconds < 1 {
		c.SinkClientTTLSeconds = 5
	}
	if c.SinkTimeoutSeconds < 1 {
		c.SinkTimeoutSeconds = 1
	}
	return nil
}

func (c Config) exitOnNoClients() time.Duration {
	return time.Duration(c.ExitOnNoClientsSeconds) * time.Second
}

func (c Config) sinkClientTTL() time.Duration {
	return time.Duration(c.SinkClientTTLSeconds) * time.Second
}

func (c Config) sinkTimeout() time.Duration {
	return time.Duration(c.SinkTimeoutSeconds) * time.Second
}
