package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the console agent's configuration. Loaded from YAML with a
// handful of environment overrides for deploy-time secrets.
type Config struct {
	Backend struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
	} `yaml:"backend"`

	Relay struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"relay"`

	Stream struct {
		// Transport selects "websocket" (default) or "nats".
		Transport   string `yaml:"transport"`
		URL         string `yaml:"url"`
		NATSURL     string `yaml:"nats_url"`
		NATSSubject string `yaml:"nats_subject"`
	} `yaml:"stream"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Video struct {
		KeepAliveSeconds int `yaml:"keepalive_seconds"`
	} `yaml:"video"`

	Audible struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"audible"`
}

// Load reads the YAML file at path and applies defaults and environment
// overrides (DISPATCH_TOKEN, REDIS_ADDR, BACKEND_URL, RELAY_URL).
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Audible.Enabled = true

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("DISPATCH_TOKEN"); v != "" {
		cfg.Backend.Token = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("RELAY_URL"); v != "" {
		cfg.Relay.BaseURL = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:3001/api"
	}
	if c.Relay.BaseURL == "" {
		c.Relay.BaseURL = "http://localhost:8889"
	}
	if c.Stream.Transport == "" {
		c.Stream.Transport = "websocket"
	}
	if c.Stream.URL == "" {
		c.Stream.URL = DeriveWsURL(c.Backend.BaseURL)
	}
	if c.Stream.NATSSubject == "" {
		c.Stream.NATSSubject = "vms.alerts"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8088"
	}
	if c.Video.KeepAliveSeconds == 0 {
		c.Video.KeepAliveSeconds = 30
	}
}

// KeepAliveInterval returns the relay renewal spacing.
func (c *Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.Video.KeepAliveSeconds) * time.Second
}

// DeriveWsURL maps the backend REST URL onto its push-channel sibling:
// scheme swapped to ws/wss, path dropped.
func DeriveWsURL(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return apiURL
	}
	scheme := "ws"
	if u.Scheme == "https" || u.Scheme == "wss" {
		scheme = "wss"
	}
	return scheme + "://" + u.Host
}
