// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the r48ctl YAML configuration file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/canbus"
	"github.com/Thermoquad/r48ctl/pkg/exporter"
	"github.com/Thermoquad/r48ctl/pkg/link"
	"github.com/Thermoquad/r48ctl/pkg/r48"
	"gopkg.in/yaml.v3"
)

// Transport names
const (
	TransportSocketCAN = "socketcan"
	TransportSLCAN     = "slcan"
	TransportWebSocket = "ws"
)

type Config struct {
	Interface    string        `yaml:"interface"`
	Transport    string        `yaml:"transport"`
	Port         string        `yaml:"port"`
	Baud         int           `yaml:"baud"`
	URL          string        `yaml:"url"`
	Username     string        `yaml:"username"`
	NoSSLVerify  bool          `yaml:"no_ssl_verify"`
	Bitrate      int           `yaml:"bitrate"`
	WriteID      string        `yaml:"write_id"`
	PollInterval time.Duration `yaml:"poll_interval"`

	Link       LinkConfig       `yaml:"link"`
	Textfile   TextfileConfig   `yaml:"textfile"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Redis      RedisConfig      `yaml:"redis"`
	Log        LogConfig        `yaml:"log"`
}

type LinkConfig struct {
	Configure bool `yaml:"configure"`
	RestartMS int  `yaml:"restart_ms"`
}

type TextfileConfig struct {
	Path   string `yaml:"path"` // empty disables
	Metric string `yaml:"metric"`
}

type PrometheusConfig struct {
	Listen string `yaml:"listen"` // empty disables
}

type RedisConfig struct {
	Addr     string `yaml:"addr"` // empty disables
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	History  int64  `yaml:"history"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used without a config file.
func Default() *Config {
	cfg := &Config{
		Textfile: TextfileConfig{Path: exporter.DefaultTextfile},
	}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads, defaults and validates a config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Interface == "" {
		c.Interface = "can0"
	}
	if c.Transport == "" {
		c.Transport = TransportSocketCAN
	}
	if c.Baud == 0 {
		c.Baud = 115200
	}
	if c.Bitrate == 0 {
		c.Bitrate = canbus.DefaultBitrate
	}
	if c.WriteID == "" {
		c.WriteID = fmt.Sprintf("0x%08X", r48.DefaultWriteID)
	}
	if c.PollInterval == 0 {
		c.PollInterval = r48.DefaultPollInterval
	}
	if c.Link.RestartMS == 0 {
		c.Link.RestartMS = link.DefaultRestartMS
	}
	if c.Textfile.Metric == "" {
		c.Textfile.Metric = exporter.DefaultMetric
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "r48:snapshots"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportSocketCAN:
		if c.Interface == "" {
			return fmt.Errorf("interface is required for socketcan")
		}
	case TransportSLCAN:
		if c.Port == "" {
			return fmt.Errorf("port is required for slcan")
		}
	case TransportWebSocket:
		if c.URL == "" {
			return fmt.Errorf("url is required for ws")
		}
	default:
		return fmt.Errorf("unknown transport %q (use socketcan, slcan or ws)", c.Transport)
	}

	if c.Bitrate <= 0 {
		return fmt.Errorf("bitrate must be positive, got %d", c.Bitrate)
	}
	if _, err := c.WriteIDValue(); err != nil {
		return err
	}
	if c.PollInterval < r48.MinPollInterval || c.PollInterval > r48.MaxPollInterval {
		return fmt.Errorf("poll_interval %s outside [%s, %s]", c.PollInterval, r48.MinPollInterval, r48.MaxPollInterval)
	}
	if c.Redis.History < 0 {
		return fmt.Errorf("redis.history must not be negative")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (use text or json)", c.Log.Format)
	}
	return nil
}

// WriteIDValue parses WriteID. Hex ("0x0607FF83") and decimal are accepted.
func (c *Config) WriteIDValue() (uint32, error) {
	return ParseID(c.WriteID)
}

// ParseID parses a 29-bit CAN identifier.
func ParseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid CAN id %q: %w", s, err)
	}
	if v > canbus.MaxExtID {
		return 0, fmt.Errorf("CAN id %q exceeds 29 bits", s)
	}
	return uint32(v), nil
}
