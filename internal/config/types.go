package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds every server-level option for authzd: the listener, logging,
// the principal-set cache backend, metrics, and where the authz file(s) and
// hot-reload toggle live. It never describes authz rule content itself --
// that is internal/authzfile's Config, loaded separately at the path named
// here.
type Config struct {
	Server ServerConfig `koanf:"server"`
}

// ServerConfig collects the bootstrap knobs for the authzd process.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
	Authz   AuthzConfig   `koanf:"authz"`
	Cache   CacheConfig   `koanf:"cache"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AuthzConfig names the authz rule source(s) and whether authzd should watch
// them for changes.
type AuthzConfig struct {
	// Source is a local path or a "file://" URL naming the primary authz
	// file (see internal/reporef for URL resolution).
	Source string `koanf:"source"`
	// GroupsSource optionally names a second, groups-only file merged with
	// Source at load time (spec.md's split-groups-file accommodation).
	GroupsSource string `koanf:"groupsSource"`
	// MustExist controls whether a missing Source is a startup error.
	MustExist bool `koanf:"mustExist"`
	// Watch enables fsnotify-based hot reload of Source/GroupsSource.
	Watch bool `koanf:"watch"`
}

// CacheConfig selects and configures the principal-set cache backend.
type CacheConfig struct {
	Backend    string          `koanf:"backend"` // "memory" or "redis"
	TTLSeconds int             `koanf:"ttlSeconds"`
	Redis      RedisCacheConfig `koanf:"redis"`
}

// RedisCacheConfig configures the valkey-go client used by the redis cache
// backend.
type RedisCacheConfig struct {
	Address  string       `koanf:"address"`
	Username string       `koanf:"username"`
	Password string       `koanf:"password"`
	DB       int          `koanf:"db"`
	TLS      RedisTLSConfig `koanf:"tls"`
}

// RedisTLSConfig controls TLS for the redis cache backend.
type RedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Validate enforces invariants that keep the server predictable before it
// starts serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	if strings.TrimSpace(c.Server.Authz.Source) == "" {
		return errors.New("config: authz.source required")
	}
	if c.Server.Cache.TTLSeconds < 0 {
		return fmt.Errorf("config: cache.ttlSeconds invalid: %d", c.Server.Cache.TTLSeconds)
	}
	backend := strings.TrimSpace(strings.ToLower(c.Server.Cache.Backend))
	switch backend {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Server.Cache.Redis.Address) == "" {
			return errors.New("config: cache.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: cache.backend unsupported: %s", c.Server.Cache.Backend)
	}
	switch strings.ToLower(strings.TrimSpace(c.Server.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level unsupported: %s", c.Server.Logging.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Server.Logging.Format)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: logging.format unsupported: %s", c.Server.Logging.Format)
	}
	return nil
}

// DefaultConfig returns the baseline values the loader seeds before files and
// environment overrides are applied.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Authz: AuthzConfig{
				MustExist: true,
			},
			Cache: CacheConfig{
				Backend:    "memory",
				TTLSeconds: 30,
			},
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
	}
}
