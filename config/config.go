// Package config holds the settings of a machinery server process.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"gopkg.in/yaml.v3"
	"io"
	"machinery/codec"
	"machinery/loadbalance"
	"os"
	"time"
)

// Config is the top-level configuration of a server process.
type Config struct {
	// ListenAddress is the TCP address of the frame server. Empty disables it.
	ListenAddress string `yaml:"listen_address"`

	// HTTPAddress is the address of the HTTP binding. Empty disables it.
	HTTPAddress string `yaml:"http_address"`

	// AdvertiseAddress is the routable address registered for every service.
	// Defaults to ListenAddress, which only works when that names a host.
	AdvertiseAddress string `yaml:"advertise_address"`

	// Codec selects the frame codec used by clients built from this config:
	// "json" (default) or "cbor". Servers answer in whatever codec a request uses.
	Codec string `yaml:"codec"`

	// Balancer is the load balancing strategy of discovery clients.
	Balancer string `yaml:"balancer"`

	// Timeout bounds a single call on the server side.
	Timeout time.Duration `yaml:"timeout"`

	// ShutdownTimeout bounds the wait for in-flight calls on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// SchemaPath points at the analyzer output served by introspection.
	SchemaPath string `yaml:"schema_path"`

	Etcd      EtcdConfig      `yaml:"etcd"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// EtcdConfig enables service registration. No endpoints means no registry.
type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// LeaseTTL is in seconds.
	LeaseTTL int64 `yaml:"lease_ttl"`
}

// RateLimitConfig caps accepted calls per second. A zero rate disables it.
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type MetricsConfig struct {
	// Address serves /metrics. Empty disables it.
	Address string `yaml:"address"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddress:   "127.0.0.1:9796",
		HTTPAddress:     "127.0.0.1:9797",
		Codec:           "json",
		Balancer:        "round_robin",
		Timeout:         30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		Etcd: EtcdConfig{
			DialTimeout: 5 * time.Second,
			LeaseTTL:    10,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// io.EOF means an empty document, which keeps the defaults.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ListenAddress == "" && c.HTTPAddress == "" {
		return fmt.Errorf("one of listen_address or http_address is required")
	}
	if _, err := codec.ParseCodecType(c.Codec); err != nil {
		return err
	}
	if _, err := loadbalance.New(c.Balancer); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.RateLimit.Rate < 0 {
		return fmt.Errorf("rate_limit.rate must not be negative")
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.burst must be positive when rate is set")
	}
	if len(c.Etcd.Endpoints) > 0 {
		if c.Advertise() == "" {
			return fmt.Errorf("advertise_address is required with etcd")
		}
		if c.Etcd.LeaseTTL <= 0 {
			return fmt.Errorf("etcd.lease_ttl must be positive")
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// Advertise returns the address registered for this server's services.
func (c *Config) Advertise() string {
	if c.AdvertiseAddress != "" {
		return c.AdvertiseAddress
	}
	return c.ListenAddress
}

// CodecType returns the parsed frame codec. Validate must have passed.
func (c *Config) CodecType() codec.CodecType {
	t, _ := codec.ParseCodecType(c.Codec)
	return t
}
