package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied when the config file is missing or partial.
const (
	DefaultSession      = "main"
	DefaultListenAddr   = "127.0.0.1:8787"
	DefaultAuthPollSecs = 3
	DefaultSyncPollSecs = 15
)

// Config represents the global ~/.wabridge/config.toml.
type Config struct {
	Session      string `toml:"session"`
	ListenAddr   string `toml:"listen_addr"`
	CacheDir     string `toml:"cache_dir"`
	AuthPollSecs int    `toml:"auth_poll_seconds"`
	SyncPollSecs int    `toml:"sync_poll_seconds"`
}

// Load reads config from the given path and fills in defaults. A
// missing file yields the default config and no error.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
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

func (c *Config) applyDefaults() {
	if c.Session == "" {
		c.Session = DefaultSession
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.AuthPollSecs <= 0 {
		c.AuthPollSecs = DefaultAuthPollSecs
	}
	if c.SyncPollSecs <= 0 {
		c.SyncPollSecs = DefaultSyncPollSecs
	}
}

// AuthPollInterval is the unauthenticated status-poll interval.
func (c *Config) AuthPollInterval() time.Duration {
	return time.Duration(c.AuthPollSecs) * time.Second
}

// SyncPollInterval is the authenticated chat/message poll interval.
func (c *Config) SyncPollInterval() time.Duration {
	return time.Duration(c.SyncPollSecs) * time.Second
}
