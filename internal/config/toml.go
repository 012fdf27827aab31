// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	API    APIConfig    `toml:"api"`
	Store  StoreConfig  `toml:"store"`
	Render RenderConfig `toml:"render"`
	Bot    BotConfig    `toml:"bot"`
	Log    LogConfig    `toml:"log"`
}

// APIConfig maps Codeforces API settings.
type APIConfig struct {
	BaseURL *string   `toml:"base_url"`
	Timeout *Duration `toml:"timeout"`
}

// StoreConfig maps persistence settings.
type StoreConfig struct {
	Backend       *string   `toml:"backend"`
	Path          *string   `toml:"path"`
	RedisAddr     *string   `toml:"redis_addr"`
	RedisPassword *string   `toml:"redis_password"`
	RedisDB       *int      `toml:"redis_db"`
	SnapshotTTL   *Duration `toml:"snapshot_ttl"`
}

// RenderConfig maps image settings.
type RenderConfig struct {
	Width  *int    `toml:"width"`
	Height *int    `toml:"height"`
	OutDir *string `toml:"out_dir"`
}

// BotConfig maps command settings.
type BotConfig struct {
	Member     *string `toml:"member"`
	MaxHandles *int    `toml:"max_handles"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
}

// Duration is a time.Duration decoded from strings like "15s" or "24h".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if v < 0 {
		return fmt.Errorf("duration %q must not be negative", text)
	}
	d.Duration = v
	return nil
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
