package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/HsiangNianian/framelink/internal/codec"
	"github.com/HsiangNianian/framelink/internal/protocol"
)

type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Origins OriginsConfig `json:"origins" yaml:"origins"`
	Host    HostConfig    `json:"host" yaml:"host"`
	Client  ClientConfig  `json:"client" yaml:"client"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

type ServerConfig struct {
	ListenAddr          string `json:"listen_addr" yaml:"listen_addr"`
	Host                string `json:"host" yaml:"host"`
	Port                int    `json:"port" yaml:"port"`
	AppPath             string `json:"app_path" yaml:"app_path"`
	AuthToken           string `json:"auth_token" yaml:"auth_token"`
	ProcessedTTLSeconds int    `json:"processed_ttl_seconds" yaml:"processed_ttl_seconds"`
}

type StoreConfig struct {
	RedisAddr string `json:"redis_addr" yaml:"redis_addr"`
}

// OriginsConfig lists who an app accepts messages from.
type OriginsConfig struct {
	Builtin         []string `json:"builtin" yaml:"builtin"`
	Additional      []string `json:"additional" yaml:"additional"`
	RemoteURL       string   `json:"remote_url" yaml:"remote_url"`
	Fallback        []string `json:"fallback" yaml:"fallback"`
	RemoteTimeoutMS int      `json:"remote_timeout_ms" yaml:"remote_timeout_ms"`
	CacheTTLSeconds int      `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
}

// HostConfig is what the host answers to the initialize handshake.
type HostConfig struct {
	FrameContext              string `json:"frame_context" yaml:"frame_context"`
	ClientType                string `json:"client_type" yaml:"client_type"`
	RuntimeConfig             string `json:"runtime_config" yaml:"runtime_config"`
	ClientSupportedSDKVersion string `json:"client_supported_sdk_version" yaml:"client_supported_sdk_version"`
}

// ClientConfig configures the app side of a connection.
type ClientConfig struct {
	URL                 string `json:"url" yaml:"url"`
	Codec               string `json:"codec" yaml:"codec"`
	AuthToken           string `json:"auth_token" yaml:"auth_token"`
	Origin              string `json:"origin" yaml:"origin"`
	HandshakeTimeoutMS  int    `json:"handshake_timeout_ms" yaml:"handshake_timeout_ms"`
	QueuePollIntervalMS int    `json:"queue_poll_interval_ms" yaml:"queue_poll_interval_ms"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the built-in configuration with environment fallbacks
// applied. Fields derived from other fields, such as server.listen_addr from
// server.host and server.port, are resolved by Load.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:          os.Getenv("FRAMELINK_LISTEN_ADDR"),
			AppPath:             "/ws/app",
			AuthToken:           os.Getenv("HOST_AUTH_TOKEN"),
			ProcessedTTLSeconds: 24 * 60 * 60,
		},
		Store: StoreConfig{
			RedisAddr: os.Getenv("REDIS_ADDR"),
		},
		Origins: OriginsConfig{
			RemoteTimeoutMS: 1500,
			CacheTTLSeconds: 24 * 60 * 60,
		},
		Host: HostConfig{
			FrameContext:              string(protocol.FrameContextContent),
			ClientType:                string(protocol.HostClientWeb),
			RuntimeConfig:             "{}",
			ClientSupportedSDKVersion: protocol.SDKVersion,
		},
		Client: ClientConfig{
			URL:                 "ws://127.0.0.1:8080/ws/app",
			Codec:               codec.NameJSON,
			AuthToken:           os.Getenv("HOST_AUTH_TOKEN"),
			QueuePollIntervalMS: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over Default. JSON files may carry comments and trailing
// commas; .yaml and .yml files are parsed as YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		cfg.applyDefaults()
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config failed: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
	default:
		standard, err := hujson.Standardize(content)
		if err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
		decoder := json.NewDecoder(bytes.NewReader(standard))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.AppPath == "" {
		c.Server.AppPath = "/ws/app"
	}
	if c.Server.ListenAddr == "" {
		if c.Server.Host != "" && c.Server.Port > 0 {
			c.Server.ListenAddr = fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
		} else {
			c.Server.ListenAddr = ":8080"
		}
	}
	if c.Server.ProcessedTTLSeconds <= 0 {
		c.Server.ProcessedTTLSeconds = 24 * 60 * 60
	}
	if c.Origins.RemoteTimeoutMS <= 0 {
		c.Origins.RemoteTimeoutMS = 1500
	}
	if c.Origins.CacheTTLSeconds <= 0 {
		c.Origins.CacheTTLSeconds = 24 * 60 * 60
	}
	if c.Client.QueuePollIntervalMS <= 0 {
		c.Client.QueuePollIntervalMS = 100
	}
}

// Validate checks values that cannot be fixed by defaulting.
func (c Config) Validate() error {
	if _, err := codec.ByName(c.Client.Codec); err != nil {
		return fmt.Errorf("client.codec: %w", err)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if !strings.HasPrefix(c.Server.AppPath, "/") {
		return fmt.Errorf("server.app_path must start with /: %q", c.Server.AppPath)
	}
	return nil
}

func (s ServerConfig) ProcessedTTL() time.Duration {
	return time.Duration(s.ProcessedTTLSeconds) * time.Second
}

func (o OriginsConfig) RemoteTimeout() time.Duration {
	return time.Duration(o.RemoteTimeoutMS) * time.Millisecond
}

func (o OriginsConfig) CacheTTL() time.Duration {
	return time.Duration(o.CacheTTLSeconds) * time.Second
}

func (c ClientConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMS) * time.Millisecond
}

func (c ClientConfig) QueuePollInterval() time.Duration {
	return time.Duration(c.QueuePollIntervalMS) * time.Millisecond
}

// NewLogger builds the process logger. verbose forces debug level.
func (l LogConfig) NewLogger(w io.Writer, verbose bool) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return level, nil
}
