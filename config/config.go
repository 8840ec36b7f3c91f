// Package config loads the runtime configuration of the realtime core from
// defaults, an optional YAML file, REALTIME_* environment variables, and
// command-line flags, in ascending order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	WS        WSConfig        `mapstructure:"ws"`
	API       APIConfig       `mapstructure:"api"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Store     StoreConfig     `mapstructure:"store"`
	User      UserConfig      `mapstructure:"user"`
	Log       LogConfig       `mapstructure:"log"`
}

// WSConfig tunes the WebSocket connection lifecycle.
type WSConfig struct {
	// URL is the WebSocket endpoint. When empty it is derived from the API
	// base URL (same-origin fallback: http -> ws, https -> wss, path /ws).
	URL                  string        `mapstructure:"url"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay"`
	ReconnectMaxJitter   time.Duration `mapstructure:"reconnect_max_jitter"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PresenceConfig struct {
	TypingDebounce time.Duration `mapstructure:"typing_debounce"`
}

type DirectoryConfig struct {
	// Retries is the number of lookup retries after the initial attempt.
	Retries int `mapstructure:"retries"`
	// BackoffStep is the linear backoff unit between attempts (1x, 2x, ...).
	BackoffStep time.Duration `mapstructure:"backoff_step"`
	CacheSize   int           `mapstructure:"cache_size"`
}

type StoreConfig struct {
	// DuplicateWindow is the near-duplicate suppression window for messages
	// with the same sender and content.
	DuplicateWindow time.Duration `mapstructure:"duplicate_window"`
}

// UserConfig identifies the local user session.
type UserConfig struct {
	ID     string `mapstructure:"id"`
	Name   string `mapstructure:"name"`
	Email  string `mapstructure:"email"`
	Avatar string `mapstructure:"avatar"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// RegisterFlags binds the config keys most commonly overridden on the
// command line.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("ws.url", "", "WebSocket endpoint (defaults to same-origin of api.base_url)")
	fs.String("api.base_url", "", "REST API base URL")
	fs.String("user.id", "", "local user id")
	fs.String("user.name", "", "local user display name")
	fs.String("log.level", "", "log level: debug, info, warn, error")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ws.url", "")
	v.SetDefault("ws.handshake_timeout", 10*time.Second)
	v.SetDefault("ws.heartbeat_interval", 30*time.Second)
	v.SetDefault("ws.reconnect_base_delay", time.Second)
	v.SetDefault("ws.reconnect_max_delay", 30*time.Second)
	v.SetDefault("ws.reconnect_max_jitter", 500*time.Millisecond)
	v.SetDefault("ws.max_reconnect_attempts", 10)

	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 15*time.Second)

	v.SetDefault("presence.typing_debounce", 2*time.Second)

	v.SetDefault("directory.retries", 2)
	v.SetDefault("directory.backoff_step", time.Second)
	v.SetDefault("directory.cache_size", 4096)

	v.SetDefault("store.duplicate_window", time.Second)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads the configuration. path may be empty, in which case only
// defaults, environment, and flags apply. When a file is used, it is watched
// and changes are logged; live values are re-read on the next restart.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("REALTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		v.OnConfigChange(func(e fsnotify.Event) {
			slog.Info("config file changed", "file", e.Name, "op", e.Op.String())
		})
		v.WatchConfig()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.WS.URL == "" {
		cfg.WS.URL = DeriveWSURL(cfg.API.BaseURL)
	}

	return &cfg, nil
}

// DeriveWSURL maps an HTTP base URL to its same-origin WebSocket endpoint.
func DeriveWSURL(baseURL string) string {
	u := baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimRight(u, "/") + "/ws"
}
