// ABOUTME: Configuration loading and parsing for coven-fleet
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete coven-fleet configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Robots   RobotsConfig   `yaml:"robots"`
	Loops    LoopsConfig    `yaml:"loops"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RobotsConfig holds robot workspace and liveness configuration
type RobotsConfig struct {
	WorkspacePath  string `yaml:"workspace_path"`
	RCCBinary      string `yaml:"rcc_binary"`
	WatchManifests bool   `yaml:"watch_manifests"`

	HeartbeatTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	HeartbeatTimeoutRaw string `yaml:"heartbeat_timeout"`
}

// LoopsConfig holds the control loop cadences
type LoopsConfig struct {
	DispatchInterval time.Duration `yaml:"-"`
	ReapInterval     time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	DispatchIntervalRaw string `yaml:"dispatch_interval"`
	ReapIntervalRaw     string `yaml:"reap_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the config file leaves fields unset.
const (
	DefaultHeartbeatTimeout = 90 * time.Second
	DefaultDispatchInterval = time.Minute
	DefaultReapInterval     = 3 * time.Minute
	DefaultRCCBinary        = "rcc"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in unset optional fields.
func (c *Config) applyDefaults() {
	if c.Robots.HeartbeatTimeout == 0 {
		c.Robots.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Robots.RCCBinary == "" {
		c.Robots.RCCBinary = DefaultRCCBinary
	}
	if c.Loops.DispatchInterval == 0 {
		c.Loops.DispatchInterval = DefaultDispatchInterval
	}
	if c.Loops.ReapInterval == 0 {
		c.Loops.ReapInterval = DefaultReapInterval
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Robots.WorkspacePath == "" {
		return fmt.Errorf("robots.workspace_path is required")
	}
	if c.Loops.DispatchInterval <= 0 {
		return fmt.Errorf("loops.dispatch_interval must be positive")
	}
	if c.Loops.ReapInterval <= 0 {
		return fmt.Errorf("loops.reap_interval must be positive")
	}
	if c.Robots.HeartbeatTimeout <= 0 {
		return fmt.Errorf("robots.heartbeat_timeout must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Robots.HeartbeatTimeoutRaw != "" {
		cfg.Robots.HeartbeatTimeout, err = time.ParseDuration(cfg.Robots.HeartbeatTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_timeout %q: %w", cfg.Robots.HeartbeatTimeoutRaw, err)
		}
	}

	if cfg.Loops.DispatchIntervalRaw != "" {
		cfg.Loops.DispatchInterval, err = time.ParseDuration(cfg.Loops.DispatchIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing dispatch_interval %q: %w", cfg.Loops.DispatchIntervalRaw, err)
		}
	}

	if cfg.Loops.ReapIntervalRaw != "" {
		cfg.Loops.ReapInterval, err = time.ParseDuration(cfg.Loops.ReapIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing reap_interval %q: %w", cfg.Loops.ReapIntervalRaw, err)
		}
	}

	return nil
}
