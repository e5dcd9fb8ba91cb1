/*
Package config loads server configuration.

PRECEDENCE (lowest to highest):
  1. DefaultConfig()
  2. TOML file (--config, optional)
  3. .env file and LEDGER_* environment variables
  4. Command-line flags (applied by cmd/server)

EXAMPLE (ledger.toml):
  [server]
  port = 8080

  [database]
  path = "./data/ledger.db"

  [log]
  level = "info"
  format = "json"

  [lock]
  backend = "redis"
  redis_addr = "localhost:6379"
  ttl = "30s"

  [audit]
  enabled = true
  interval = "1h"
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Lock     LockConfig     `toml:"lock"`
	Audit    AuditConfig    `toml:"audit"`
}

type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	ReadTimeout    Duration `toml:"read_timeout"`
	WriteTimeout   Duration `toml:"write_timeout"`
	IdleTimeout    Duration `toml:"idle_timeout"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json | text
}

type LockConfig struct {
	Backend       string   `toml:"backend"` // local | redis
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	TTL           Duration `toml:"ttl"`
	Wait          Duration `toml:"wait"` // how long an allocation waits for the party lock
}

type AuditConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
}

// Duration decodes TOML strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:           "",
			Port:           8080,
			ReadTimeout:    Duration{15 * time.Second},
			WriteTimeout:   Duration{15 * time.Second},
			IdleTimeout:    Duration{60 * time.Second},
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{Path: "ledger.db"},
		Log:      LogConfig{Level: "info", Format: "json"},
		Lock: LockConfig{
			Backend:   "local",
			RedisAddr: "localhost:6379",
			TTL:       Duration{30 * time.Second},
			Wait:      Duration{10 * time.Second},
		},
		Audit: AuditConfig{Enabled: false, Interval: Duration{time.Hour}},
	}
}

// Load builds a Config from defaults, an optional TOML file and the environment.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// .env is optional; a missing file is not an error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides fields from LEDGER_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("LEDGER_DB_PATH", &c.Database.Path)
	str("LEDGER_LOG_LEVEL", &c.Log.Level)
	str("LEDGER_LOG_FORMAT", &c.Log.Format)
	str("LEDGER_LOCK_BACKEND", &c.Lock.Backend)
	str("LEDGER_REDIS_ADDR", &c.Lock.RedisAddr)
	str("LEDGER_REDIS_PASSWORD", &c.Lock.RedisPassword)

	if v, ok := lookup("LEDGER_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LEDGER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("LEDGER_ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v, ok := lookup("LEDGER_AUDIT_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LEDGER_AUDIT_ENABLED: %w", err)
		}
		c.Audit.Enabled = b
	}
	return nil
}

func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	switch c.Lock.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("unknown lock backend %q", c.Lock.Backend)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Audit.Enabled && c.Audit.Interval.Duration <= 0 {
		return errors.New("audit interval must be positive")
	}
	return nil
}

// Addr is the listen address.
func (c ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
