package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Global settings
	Format  string `mapstructure:"format"`
	Quiet   bool   `mapstructure:"quiet"`
	Verbose bool   `mapstructure:"verbose"`

	// Session store location (empty selects the user cache dir)
	StoreDir string `mapstructure:"store_dir"`

	// Resilience knobs
	Session SessionConfig `mapstructure:"session"`
}

// SessionConfig holds heartbeat, reconnection and cleanup defaults.
// Every field has a default; absence of configuration never prevents
// operation.
type SessionConfig struct {
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	MissedProbeThreshold int           `mapstructure:"missed_probe_threshold"`
	GracePeriod          time.Duration `mapstructure:"grace_period"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ReconnectBackoff     time.Duration `mapstructure:"reconnect_backoff"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
	CleanupInterval      time.Duration `mapstructure:"cleanup_interval"`
	RetentionAge         time.Duration `mapstructure:"retention_age"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Format:  "auto",
		Quiet:   false,
		Verbose: false,
		Session: SessionConfig{
			HeartbeatInterval:    30 * time.Second,
			MissedProbeThreshold: 3,
			GracePeriod:          24 * time.Hour,
			MaxReconnectAttempts: 10,
			ReconnectBackoff:     5 * time.Second,
			HandshakeTimeout:     5 * time.Second,
			CleanupInterval:      5 * time.Minute,
			RetentionAge:         24 * time.Hour,
		},
	}
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and type
	v.SetConfigName("skeep")
	v.SetConfigType("yaml")

	// Add config paths (in order of precedence, lowest first)
	// 1. System-wide config
	v.AddConfigPath("/etc/skeep/")
	// 2. User config directory
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "skeep"))
	}
	// 3. Home directory (as .skeep.yaml)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(".skeep")
	}
	// 4. Current directory
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("SKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Bind specific environment variables
	v.BindEnv("format", "SKEEP_FORMAT")
	v.BindEnv("quiet", "SKEEP_QUIET")
	v.BindEnv("verbose", "SKEEP_VERBOSE")
	v.BindEnv("store_dir", "SKEEP_STORE_DIR")
	v.BindEnv("session.heartbeat_interval", "SKEEP_HEARTBEAT_INTERVAL")
	v.BindEnv("session.missed_probe_threshold", "SKEEP_MISSED_PROBE_THRESHOLD")
	v.BindEnv("session.grace_period", "SKEEP_GRACE_PERIOD")
	v.BindEnv("session.max_reconnect_attempts", "SKEEP_MAX_RECONNECT_ATTEMPTS")
	v.BindEnv("session.reconnect_backoff", "SKEEP_RECONNECT_BACKOFF")
	v.BindEnv("session.handshake_timeout", "SKEEP_HANDSHAKE_TIMEOUT")
	v.BindEnv("session.cleanup_interval", "SKEEP_CLEANUP_INTERVAL")
	v.BindEnv("session.retention_age", "SKEEP_RETENTION_AGE")

	// Set defaults
	cfg := Default()
	v.SetDefault("format", cfg.Format)
	v.SetDefault("quiet", cfg.Quiet)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("store_dir", cfg.StoreDir)
	v.SetDefault("session.heartbeat_interval", cfg.Session.HeartbeatInterval)
	v.SetDefault("session.missed_probe_threshold", cfg.Session.MissedProbeThreshold)
	v.SetDefault("session.grace_period", cfg.Session.GracePeriod)
	v.SetDefault("session.max_reconnect_attempts", cfg.Session.MaxReconnectAttempts)
	v.SetDefault("session.reconnect_backoff", cfg.Session.ReconnectBackoff)
	v.SetDefault("session.handshake_timeout", cfg.Session.HandshakeTimeout)
	v.SetDefault("session.cleanup_interval", cfg.Session.CleanupInterval)
	v.SetDefault("session.retention_age", cfg.Session.RetentionAge)

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error occurred
			return nil, err
		}
		// Config file not found; use defaults
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
