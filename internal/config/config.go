// Package config loads server configuration from a YAML file and the
// environment. Environment variables use the MESSAGES_ prefix with nested
// keys joined by underscores (MESSAGES_HTTP_ADDR, MESSAGES_LOG_FSYNC).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPCfg struct {
	Addr                string `mapstructure:"addr"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
}

type LogCfg struct {
	Partitions      int    `mapstructure:"partitions"`
	Fsync           string `mapstructure:"fsync"`
	FsyncIntervalMs int    `mapstructure:"fsync_interval_ms"`
}

type AuthCfg struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type Config struct {
	DataDir  string  `mapstructure:"data_dir"`
	LogLevel string  `mapstructure:"log_level"`
	HTTP     HTTPCfg `mapstructure:"http"`
	Log      LogCfg  `mapstructure:"log"`
	Auth     AuthCfg `mapstructure:"auth"`

	// Derived
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	FsyncInterval time.Duration
}

// DefaultDataDir is where state lives when data_dir is not set.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".messages"
	}
	return filepath.Join(home, ".messages")
}

// Load reads configuration from path (optional, may be empty) and the
// environment, applies defaults, and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MESSAGES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("log_level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout_seconds", 15)
	v.SetDefault("http.write_timeout_seconds", 15)
	v.SetDefault("log.partitions", 8)
	v.SetDefault("log.fsync", "interval")
	v.SetDefault("log.fsync_interval_ms", 5)
	// registered so AutomaticEnv can see it even with no file value
	v.SetDefault("auth.jwt_secret", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	switch cfg.Log.Fsync {
	case "always", "interval", "never":
	default:
		return nil, fmt.Errorf("config: log.fsync must be always, interval, or never, got %q", cfg.Log.Fsync)
	}
	if cfg.Log.Partitions <= 0 {
		return nil, fmt.Errorf("config: log.partitions must be positive, got %d", cfg.Log.Partitions)
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("config: auth.jwt_secret is required (MESSAGES_AUTH_JWT_SECRET)")
	}

	cfg.ReadTimeout = time.Duration(cfg.HTTP.ReadTimeoutSeconds) * time.Second
	cfg.WriteTimeout = time.Duration(cfg.HTTP.WriteTimeoutSeconds) * time.Second
	cfg.FsyncInterval = time.Duration(cfg.Log.FsyncIntervalMs) * time.Millisecond
	return &cfg, nil
}
