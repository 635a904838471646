package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/discod/internal/disco"
)

// Config represents the application configuration
type Config struct {
	Hue             HueConfig      `yaml:"hue"`
	Database        DatabaseConfig `yaml:"database"`
	Log             LogConfig      `yaml:"log"`
	Disco           DiscoConfig    `yaml:"disco"`
	API             APIConfig      `yaml:"api"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge       string   `yaml:"bridge"`         // Empty = discover
	Token        string   `yaml:"token"`          // Empty = stored or registered credential
	Timeout      Duration `yaml:"timeout"`        // HTTP timeout for Hue API requests
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Light commands per second (default: 10)
	DeviceType   string   `yaml:"device_type"`    // Name shown on the bridge for registered users
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return strings.ToLower(c.Level)
}

// RangeConfig is one optional {min, max} pair; unset bounds keep the default.
type RangeConfig struct {
	Min *int `yaml:"min"`
	Max *int `yaml:"max"`
}

// DiscoConfig contains the initial light show parameters
type DiscoConfig struct {
	Red             RangeConfig `yaml:"red"`
	Green           RangeConfig `yaml:"green"`
	Blue            RangeConfig `yaml:"blue"`
	Time            RangeConfig `yaml:"time"` // In ticks
	Fade            bool        `yaml:"fade"`
	Sync            string      `yaml:"sync"` // none, time or color
	Tick            Duration    `yaml:"tick"`
	Seed            uint64      `yaml:"seed"`
	RefreshInterval Duration    `yaml:"refresh_interval"`
	Active          []string    `yaml:"active"`  // Light names or ids, or "all"
	Persist         *bool       `yaml:"persist"` // Restore the last published config at start (default: true)
}

// Build returns the engine config described by this section.
func (c *DiscoConfig) Build() (disco.Config, error) {
	cfg := disco.DefaultConfig()
	cfg.Fade = c.Fade

	for _, ch := range []struct {
		name disco.Channel
		r    RangeConfig
	}{
		{disco.ChannelRed, c.Red},
		{disco.ChannelGreen, c.Green},
		{disco.ChannelBlue, c.Blue},
		{disco.ChannelTime, c.Time},
	} {
		if ch.r.Min != nil && ch.r.Max != nil && *ch.r.Min > *ch.r.Max {
			return cfg, fmt.Errorf("disco.%s: min %d above max %d: %w", ch.name, *ch.r.Min, *ch.r.Max, disco.ErrInvalidRange)
		}
		if ch.r.Min != nil {
			cfg.SetMin(ch.name, *ch.r.Min)
		}
		if ch.r.Max != nil {
			cfg.SetMax(ch.name, *ch.r.Max)
		}
	}

	return cfg, cfg.Validate()
}

// GetSyncMode parses the sync mode
func (c *DiscoConfig) GetSyncMode() (disco.SyncMode, error) {
	return disco.ParseSyncMode(c.Sync)
}

// GetPersist returns whether config persistence is enabled
func (c *DiscoConfig) GetPersist() bool {
	return c.Persist == nil || *c.Persist
}

// APIConfig contains control API server settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns the listen address
func (c *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// Retention returns the retention period
func (c *LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML, expanding environment variables
// and applying defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)

	if _, err := cfg.Disco.GetSyncMode(); err != nil {
		return nil, fmt.Errorf("disco.sync: %w", err)
	}
	if _, err := cfg.Disco.Build(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./discod.sqlite"
	}

	// Hue defaults
	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(30 * time.Second)
	}
	if cfg.Hue.RateLimitRPS == 0 {
		cfg.Hue.RateLimitRPS = 10.0 // 10 requests per second
	}
	if cfg.Hue.DeviceType == "" {
		cfg.Hue.DeviceType = "discod#daemon"
	}

	// Disco defaults
	if cfg.Disco.Tick == 0 {
		cfg.Disco.Tick = Duration(disco.DefaultTick)
	}
	if cfg.Disco.RefreshInterval == 0 {
		cfg.Disco.RefreshInterval = Duration(100 * time.Millisecond)
	}

	// API defaults
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// envVarPattern matches ${VAR} or ${VAR:default}
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
