// Package config loads wsproto settings from TOML or YAML files with
// environment overrides.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/client"
	"github.com/momentics/wsproto/server"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration file.
type Config struct {
	Server ServerConfig `toml:"server" yaml:"server"`
	Client ClientConfig `toml:"client" yaml:"client"`
	Log    LogConfig    `toml:"log" yaml:"log"`
}

// ServerConfig mirrors server.Config plus the metrics endpoint.
type ServerConfig struct {
	Listen          string        `toml:"listen" yaml:"listen"`
	MetricsListen   string        `toml:"metrics_listen" yaml:"metrics_listen"`
	MaxFrameSize    int           `toml:"max_frame_size" yaml:"max_frame_size"`
	MaxFramePayload uint64        `toml:"max_frame_payload" yaml:"max_frame_payload"`
	ReadChunkSize   int           `toml:"read_chunk_size" yaml:"read_chunk_size"`
	WriteRetries    int           `toml:"write_retries" yaml:"write_retries"`
	MaxHeaderBytes  int           `toml:"max_header_bytes" yaml:"max_header_bytes"`
	PollInterval    time.Duration `toml:"poll_interval" yaml:"poll_interval"`
}

// ClientConfig mirrors client.Options.
type ClientConfig struct {
	Protocol        string            `toml:"protocol" yaml:"protocol"`
	Timeout         time.Duration     `toml:"timeout" yaml:"timeout"`
	MaxFrameSize    int               `toml:"max_frame_size" yaml:"max_frame_size"`
	MaxFramePayload uint64            `toml:"max_frame_payload" yaml:"max_frame_payload"`
	WriteRetries    int               `toml:"write_retries" yaml:"write_retries"`
	Headers         map[string]string `toml:"headers" yaml:"headers"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`   // debug, info, warn or error
	Format string `toml:"format" yaml:"format"` // text or json
}

// Default returns the built-in configuration.
func Default() *Config {
	sc := server.DefaultConfig()
	co := client.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Listen:          sc.ListenAddr,
			MetricsListen:   "127.0.0.1:9090",
			MaxFrameSize:    sc.MaxFrameSize,
			MaxFramePayload: sc.MaxFramePayload,
			ReadChunkSize:   sc.ReadChunkSize,
			WriteRetries:    sc.WriteRetries,
			MaxHeaderBytes:  sc.MaxHeaderBytes,
			PollInterval:    sc.PollInterval,
		},
		Client: ClientConfig{
			Protocol:        co.Protocol,
			Timeout:         co.Timeout,
			MaxFrameSize:    co.MaxFrameSize,
			MaxFramePayload: sc.MaxFramePayload,
			WriteRetries:    co.WriteRetries,
			Headers:         map[string]string{},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := cfg.decode(filepath.Ext(path), data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(ext string, data []byte) error {
	switch strings.ToLower(ext) {
	case ".toml":
		_, err := toml.Decode(string(data), c)
		return err
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, c)
	}
	return fmt.Errorf("%w: unsupported config format %q", api.ErrInvalidOption, ext)
}

// ApplyEnv overrides settings from WSPROTO_* variables looked up via getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("WSPROTO_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := getenv("WSPROTO_METRICS_LISTEN"); v != "" {
		c.Server.MetricsListen = v
	}
	if v := getenv("WSPROTO_MAX_FRAME_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: WSPROTO_MAX_FRAME_SIZE: %w", api.ErrInvalidOption, err)
		}
		c.Server.MaxFrameSize = n
		c.Client.MaxFrameSize = n
	}
	if v := getenv("WSPROTO_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := c.ServerConfig().Validate(); err != nil {
		return err
	}
	o := client.DefaultOptions()
	for _, opt := range c.ClientOptions() {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return err
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q", api.ErrInvalidOption, c.Log.Format)
	}
	return nil
}

// ServerConfig converts the server section.
func (c *Config) ServerConfig() *server.Config {
	return &server.Config{
		ListenAddr:      c.Server.Listen,
		MaxFrameSize:    c.Server.MaxFrameSize,
		MaxFramePayload: c.Server.MaxFramePayload,
		ReadChunkSize:   c.Server.ReadChunkSize,
		WriteRetries:    c.Server.WriteRetries,
		MaxHeaderBytes:  c.Server.MaxHeaderBytes,
		PollInterval:    c.Server.PollInterval,
	}
}

// ClientOptions converts the client section.
func (c *Config) ClientOptions() []client.Option {
	opts := []client.Option{
		client.WithProtocol(c.Client.Protocol),
		client.WithTimeout(c.Client.Timeout),
		client.WithMaxFrameSize(c.Client.MaxFrameSize),
		client.WithMaxFramePayload(c.Client.MaxFramePayload),
		client.WithWriteRetries(c.Client.WriteRetries),
	}
	for name, value := range c.Client.Headers {
		opts = append(opts, client.WithHeader(name, value))
	}
	return opts
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", api.ErrInvalidOption, l.Level)
	}
	return lvl, nil
}

// NewLogger builds a logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
