// Package config loads sitebook settings from .sitebook/config.yaml and
// SITEBOOK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DirName  = ".sitebook"
	FileName = "config.yaml"

	EnvPrefix = "SITEBOOK"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverLibSQL   = "libsql"
	DriverPostgres = "postgres"
)

type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Manager   ManagerConfig   `mapstructure:"manager"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Inbox     InboxConfig     `mapstructure:"inbox"`
	Events    EventsConfig    `mapstructure:"events"`
	Log       LogConfig       `mapstructure:"log"`
}

// StoreConfig selects the remote document store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	// Path is the local database file for sqlite and libsql.
	Path string `mapstructure:"path"`
	// URL is the libsql primary or the postgres DSN.
	URL          string        `mapstructure:"url"`
	AuthToken    string        `mapstructure:"auth_token"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// CacheConfig locates the offline cache. An empty Dir disables it.
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

type ManagerConfig struct {
	RemoteTimeout        time.Duration `mapstructure:"remote_timeout"`
	RejectDuplicateNames bool          `mapstructure:"reject_duplicate_names"`
}

type NotifyConfig struct {
	AutoClose time.Duration `mapstructure:"auto_close"`
	// RedisURL enables de-duplication across instances.
	RedisURL string `mapstructure:"redis_url"`
	// StickyTTL caps how long a sticky notification is held in Redis.
	StickyTTL time.Duration `mapstructure:"sticky_ttl"`
}

type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// InboxConfig enables the import drop directory when Dir is set.
type InboxConfig struct {
	Dir      string        `mapstructure:"dir"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// EventsConfig enables the change event publisher when AMQPURL is set.
type EventsConfig struct {
	AMQPURL string `mapstructure:"amqp_url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// File, when set, receives JSON logs rotated by size.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SetDefaults registers every key with its default so environment variables
// can override keys that are absent from the file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", filepath.Join(DirName, "sitebook.db"))
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.sync_interval", "0s")

	v.SetDefault("cache.dir", filepath.Join(DirName, "cache"))

	v.SetDefault("manager.remote_timeout", "30s")
	v.SetDefault("manager.reject_duplicate_names", false)

	v.SetDefault("notify.auto_close", "5s")
	v.SetDefault("notify.redis_url", "")
	v.SetDefault("notify.sticky_ttl", "1h")

	v.SetDefault("dashboard.port", 8080)

	v.SetDefault("inbox.dir", "")
	v.SetDefault("inbox.debounce", "500ms")

	v.SetDefault("events.amqp_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// New returns a viper instance wired for sitebook: defaults, env prefix and
// the config file search path.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(DirName)
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, DirName))
		}
	}
	return v
}

// Load reads the config file, if any, and decodes the result. An explicit
// file that does not exist is an error; a missing default file is not.
func Load(file string) (*Config, error) {
	v := New(file)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s driver", c.Store.Driver)
		}
	case DriverLibSQL:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s driver", c.Store.Driver)
		}
		if c.Store.URL == "" {
			return fmt.Errorf("store.url is required for the %s driver", c.Store.Driver)
		}
	case DriverPostgres:
		if c.Store.URL == "" {
			return fmt.Errorf("store.url is required for the %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q (want %s, %s or %s)",
			c.Store.Driver, DriverSQLite, DriverLibSQL, DriverPostgres)
	}

	if c.Manager.RemoteTimeout < 0 {
		return fmt.Errorf("manager.remote_timeout must not be negative")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port %d out of range", c.Dashboard.Port)
	}
	return nil
}

// WriteDefault writes a config file with the default settings to path unless
// one already exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	v := viper.New()
	SetDefaults(v)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
