// Package config provides YAML-based configuration loading for libtransport
// nodes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the node/application
	AppName string `mapstructure:"app_name"`

	// NodeID is the local peer identifier other nodes address us by
	NodeID string `mapstructure:"node_id"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Transport selects the wire backend and its endpoints
	Transport TransportConfig `mapstructure:"transport"`

	// Sync tunes the gossip sync loop
	Sync SyncConfig `mapstructure:"sync"`

	// Peers seeds the peer directory
	Peers []PeerConfig `mapstructure:"peers"`

	// PeersFile optionally merges additional peers from a JSON file
	PeersFile string `mapstructure:"peers_file"`
}

// TransportConfig describes the one transport the node runs on.
// Example YAML:
//
//	transport:
//	  kind: tcp
//	  bind: "127.0.0.1:9000"
//	  codec: cbor
//	  dial_timeout_ms: 5000
//	  write_timeout_ms: 10000
type TransportConfig struct {
	Kind           string `mapstructure:"kind"`
	Bind           string `mapstructure:"bind"`
	Codec          string `mapstructure:"codec"`
	DialTimeoutMS  int    `mapstructure:"dial_timeout_ms"`
	WriteTimeoutMS int    `mapstructure:"write_timeout_ms"`
}

// SyncConfig tunes the periodic sync-request broadcast.
type SyncConfig struct {
	IntervalMS int `mapstructure:"interval_ms"`
}

// PeerConfig seeds one peer directory entry.
type PeerConfig struct {
	ID      string `mapstructure:"id"`
	Address string `mapstructure:"address"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "libtransport-node",
		NodeID:  "node-1",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/libtransport.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Transport: TransportConfig{
			Kind:           "tcp",
			Bind:           "127.0.0.1:9000",
			Codec:          "cbor",
			DialTimeoutMS:  5000,
			WriteTimeoutMS: 10000,
		},
		Sync: SyncConfig{IntervalMS: 1000},
	}
}

// Load reads configuration from the provided path (if non-empty), otherwise
// it searches common locations and supports environment overrides.
// Environment variables use the prefix LIBTRANSPORT and `.`/`-` are replaced
// with `_`. Example: LIBTRANSPORT_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LIBTRANSPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("node_id", cfg.NodeID)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("transport.kind", cfg.Transport.Kind)
	v.SetDefault("transport.bind", cfg.Transport.Bind)
	v.SetDefault("transport.codec", cfg.Transport.Codec)
	v.SetDefault("transport.dial_timeout_ms", cfg.Transport.DialTimeoutMS)
	v.SetDefault("transport.write_timeout_ms", cfg.Transport.WriteTimeoutMS)
	v.SetDefault("sync.interval_ms", cfg.Sync.IntervalMS)
	v.SetDefault("peers_file", cfg.PeersFile)

	// Choose config file
	if path == "" {
		if envPath := os.Getenv("LIBTRANSPORT_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `libtransport`
		v.SetConfigName("libtransport")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".libtransport"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if strings.TrimSpace(c.NodeID) == "" {
		c.NodeID = "node-1"
	}
	c.Transport.Kind = strings.ToLower(strings.TrimSpace(c.Transport.Kind))
	if c.Transport.Codec == "" {
		c.Transport.Codec = "cbor"
	}
	if strings.TrimSpace(c.Transport.Bind) == "" {
		return errors.New("transport.bind must be set")
	}
	for i, p := range c.Peers {
		if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Address) == "" {
			return fmt.Errorf("peers[%d]: id and address must be set", i)
		}
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
