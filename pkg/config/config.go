// Package config loads agent configuration from an optional YAML file with
// LOCKWATCH_* environment overrides layered on top.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root agent configuration.
type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Observer ObserverConfig `mapstructure:"observer"`
	NATS     NATSConfig     `mapstructure:"nats"`
}

// ObserverConfig configures the lock contention observer.
type ObserverConfig struct {
	OwnerExpiry           time.Duration `mapstructure:"owner_expiry"`
	SignificanceThreshold time.Duration `mapstructure:"significance_threshold"`
	SweepInterval         time.Duration `mapstructure:"sweep_interval"`
	EventChannelSize      int           `mapstructure:"event_channel_size"`
	TrackedParkTypes      []string      `mapstructure:"tracked_park_types"`
	AnomalyLogsPerSecond  float64       `mapstructure:"anomaly_logs_per_second"`
}

// NATSConfig holds the sample transport configuration. An empty URL
// disables NATS and samples go to the log sink instead.
type NATSConfig struct {
	URL               string        `mapstructure:"url"`
	Name              string        `mapstructure:"name"`
	MaxReconnects     int           `mapstructure:"max_reconnects"`
	ReconnectWait     time.Duration `mapstructure:"reconnect_wait"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`

	// Stream settings
	MaxAge          time.Duration `mapstructure:"max_age"`
	MaxBytes        int64         `mapstructure:"max_bytes"`
	Replicas        int           `mapstructure:"replicas"`
	DuplicateWindow time.Duration `mapstructure:"duplicate_window"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("LOCKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("observer.owner_expiry", 30*time.Second)
	v.SetDefault("observer.significance_threshold", 11*time.Millisecond)
	v.SetDefault("observer.sweep_interval", 5*time.Second)
	v.SetDefault("observer.event_channel_size", 1000)
	v.SetDefault("observer.tracked_park_types", []string{
		"Ljava/util/concurrent/locks/ReentrantLock",
		"Ljava/util/concurrent/locks/ReentrantReadWriteLock",
	})
	v.SetDefault("observer.anomaly_logs_per_second", 1.0)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.name", "lockwatch")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", time.Second)
	v.SetDefault("nats.connection_timeout", 5*time.Second)
	v.SetDefault("nats.max_age", 24*time.Hour)
	v.SetDefault("nats.max_bytes", int64(1024*1024*1024))
	v.SetDefault("nats.replicas", 1)
	v.SetDefault("nats.duplicate_window", 2*time.Minute)
}

// Validate checks cross-field consistency. Observer-specific validation
// happens again in the observer's own Config.Validate.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	if c.Observer.OwnerExpiry <= 0 {
		return fmt.Errorf("observer owner expiry must be positive")
	}
	if c.Observer.SweepInterval <= 0 {
		return fmt.Errorf("observer sweep interval must be positive")
	}
	if c.NATS.URL != "" && c.NATS.Name == "" {
		return fmt.Errorf("nats client name is required when nats is enabled")
	}
	return nil
}
