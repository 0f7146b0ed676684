package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied to zero-valued fields.
const (
	DefaultBaseURL           = "wss://api.example.com"
	DefaultKeepaliveInterval = 20 * time.Second
	DefaultResendInterval    = 500 * time.Millisecond
	DefaultReconnectDelay    = 3 * time.Second
	DefaultMaxReconnects     = 1000
	DefaultScrollDebounce    = 100 * time.Millisecond
)

// Config represents the global ~/.livechat/config.toml.
type Config struct {
	DefaultSession    string   `toml:"default_session"`
	BaseURL           string   `toml:"base_url"`
	ClientID          string   `toml:"client_id"`
	KeepaliveInterval Duration `toml:"keepalive_interval"`
	ResendInterval    Duration `toml:"resend_interval"`
	ReconnectDelay    Duration `toml:"reconnect_delay"`
	MaxReconnects     int      `toml:"max_reconnects"`
	ScrollDebounce    Duration `toml:"scroll_debounce"`
	MetricsAddr       string   `toml:"metrics_addr"`
}

// Duration is a time.Duration written as a string ("20s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a config with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.KeepaliveInterval.Duration <= 0 {
		c.KeepaliveInterval.Duration = DefaultKeepaliveInterval
	}
	if c.ResendInterval.Duration <= 0 {
		c.ResendInterval.Duration = DefaultResendInterval
	}
	if c.ReconnectDelay.Duration <= 0 {
		c.ReconnectDelay.Duration = DefaultReconnectDelay
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = DefaultMaxReconnects
	}
	if c.ScrollDebounce.Duration <= 0 {
		c.ScrollDebounce.Duration = DefaultScrollDebounce
	}
}

// ApplyEnv overrides fields from LIVECHAT_* environment variables. Invalid
// numeric values are ignored.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LIVECHAT_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("LIVECHAT_CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv("LIVECHAT_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("LIVECHAT_MAX_RECONNECTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxReconnects = n
		}
	}
}

// Load reads config from the given path. Returns nil config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads config from path, falling back to an empty config when
// the file does not exist. Defaults and environment overrides are applied.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	cfg.ApplyEnv()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
