// Copyright 2024-2026 Aiku AI

package connector

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Dispatch sink types.
const (
	DispatchRouter = "router"
	DispatchRedis  = "redis"
)

// Redis envelope codecs.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Config holds the adapter configuration.
type Config struct {
	// Platform is the platform name stamped on every envelope.
	Platform string         `yaml:"platform"`
	Napcat   NapcatConfig   `yaml:"napcat"`
	Images   ImageConfig    `yaml:"images"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	Logging zeroconfig.Config `yaml:"logging"`
}

// NapcatConfig configures the reverse WebSocket server NapCat connects to.
type NapcatConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// AccessToken, when set, must be presented by the gateway either as a
	// bearer token or as the access_token query parameter.
	AccessToken string `yaml:"access_token"`
	// HeartbeatInterval is the assumed heartbeat interval in seconds until the
	// gateway reports its own.
	HeartbeatInterval int `yaml:"heartbeat_interval"`
	// ForwardTimeout bounds every API call made over the connection, in seconds.
	ForwardTimeout int `yaml:"forward_timeout"`
	QueueSize      int `yaml:"queue_size"`
}

type ImageConfig struct {
	Timeout   int `yaml:"timeout"`
	RateLimit int `yaml:"rate_limit"`
	Burst     int `yaml:"burst"`
	// MaxForwardImages is the image count at which a forward bundle switches
	// from fetching images to placeholders.
	MaxForwardImages int `yaml:"max_forward_images"`
}

type DispatchConfig struct {
	Type         string `yaml:"type"`
	RouterURL    string `yaml:"router_url"`
	RedisURL     string `yaml:"redis_url"`
	RedisStream  string `yaml:"redis_stream"`
	RedisChannel string `yaml:"redis_channel"`
	Codec        string `yaml:"codec"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess fills defaults and validates the configuration.
func (c *Config) PostProcess() error {
	if c.Platform == "" {
		c.Platform = "qq"
	}
	if c.Napcat.Port == 0 {
		c.Napcat.Port = 8095
	}
	if c.Napcat.Port < 0 || c.Napcat.Port > 65535 {
		return fmt.Errorf("napcat.port %d out of range", c.Napcat.Port)
	}
	if c.Napcat.HeartbeatInterval <= 0 {
		c.Napcat.HeartbeatInterval = 30
	}
	if c.Napcat.ForwardTimeout <= 0 {
		c.Napcat.ForwardTimeout = 10
	}
	if c.Napcat.QueueSize <= 0 {
		c.Napcat.QueueSize = 64
	}
	if c.Images.Timeout <= 0 {
		c.Images.Timeout = 10
	}
	if c.Images.RateLimit <= 0 {
		c.Images.RateLimit = 10
	}
	if c.Images.Burst <= 0 {
		c.Images.Burst = 5
	}
	if c.Images.MaxForwardImages <= 0 {
		c.Images.MaxForwardImages = 5
	}

	if c.Dispatch.Type == "" {
		c.Dispatch.Type = DispatchRouter
	}
	if c.Dispatch.Codec == "" {
		c.Dispatch.Codec = CodecJSON
	}
	switch c.Dispatch.Type {
	case DispatchRouter:
		if c.Dispatch.RouterURL == "" {
			return errors.New("dispatch.router_url is required for the router sink")
		}
	case DispatchRedis:
		if c.Dispatch.RedisURL == "" {
			return errors.New("dispatch.redis_url is required for the redis sink")
		}
		if c.Dispatch.RedisStream == "" && c.Dispatch.RedisChannel == "" {
			c.Dispatch.RedisStream = "maibot:inbound"
		}
	default:
		return fmt.Errorf("unknown dispatch.type %q", c.Dispatch.Type)
	}
	switch c.Dispatch.Codec {
	case CodecJSON, CodecMsgpack:
	default:
		return fmt.Errorf("unknown dispatch.codec %q", c.Dispatch.Codec)
	}
	return nil
}

// ListenAddr returns the address the gateway server listens on.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Napcat.Host, strconv.Itoa(c.Napcat.Port))
}

func (c *Config) requestTimeout() time.Duration {
	return time.Duration(c.Napcat.ForwardTimeout) * time.Second
}

func (c *Config) initialHeartbeatInterval() time.Duration {
	return time.Duration(c.Napcat.HeartbeatInterval) * time.Second
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "platform")
	helper.Copy(up.Str, "napcat", "host")
	helper.Copy(up.Int, "napcat", "port")
	helper.Copy(up.Str, "napcat", "access_token")
	helper.Copy(up.Int, "napcat", "heartbeat_interval")
	helper.Copy(up.Int, "napcat", "forward_timeout")
	helper.Copy(up.Int, "napcat", "queue_size")
	helper.Copy(up.Int, "images", "timeout")
	helper.Copy(up.Int, "images", "rate_limit")
	helper.Copy(up.Int, "images", "burst")
	helper.Copy(up.Int, "images", "max_forward_images")
	helper.Copy(up.Str, "dispatch", "type")
	helper.Copy(up.Str, "dispatch", "router_url")
	helper.Copy(up.Str, "dispatch", "redis_url")
	helper.Copy(up.Str, "dispatch", "redis_stream")
	helper.Copy(up.Str, "dispatch", "redis_channel")
	helper.Copy(up.Str, "dispatch", "codec")
	helper.Copy(up.Bool, "metrics", "enabled")
	helper.Copy(up.Map, "logging")
}

func newConfigUpgrader() *up.StructUpgrader {
	return &up.StructUpgrader{
		SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
		Blocks:         nil,
		Base:           ExampleConfig,
	}
}

// LoadConfig reads the config at path, writing the example config there first
// if the file does not exist. When save is true, keys missing from the file are
// added back from the example config.
func LoadConfig(path string, save bool) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err = os.WriteFile(path, []byte(ExampleConfig), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write example config: %w", err)
		}
	}
	data, _, err := up.Do(path, save, newConfigUpgrader())
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade config: %w", err)
	}
	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err = cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
