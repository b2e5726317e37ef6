package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/device"
	"gopkg.in/yaml.v3"
)

// Supported platform backends
const (
	BackendGoBLE  = "goble"
	BackendTinyGo = "tinygo"
)

// Config holds application configuration. The default log level "panic" keeps the CLI silent.
type Config struct {
	LogLevel           string        `yaml:"log_level" default:"panic"`
	Backend            string        `yaml:"backend" default:"goble"`
	Scan               ScanConfig    `yaml:"scan"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" default:"30s"`
	ServiceUUID        string        `yaml:"service_uuid" default:"ffe0"`
	CharacteristicUUID string        `yaml:"characteristic_uuid" default:"ffe1"`
	InboxCapacity      int           `yaml:"inbox_capacity" default:"4096"`
	OutputFormat       string        `yaml:"output_format" default:"table"` // table, json
}

// ScanConfig holds discovery settings.
type ScanConfig struct {
	Duration  time.Duration `yaml:"duration" default:"5s"`
	NamedOnly bool          `yaml:"named_only" default:"false"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultConfigPath returns ~/.config/blelink/config.yaml, or "" when the home directory is unknown.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blelink", "config.yaml")
}

// Load reads a YAML config file. Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is set, else the default path when that file
// exists, else the built-in defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if def := DefaultConfigPath(); def != "" {
		if _, err := os.Stat(def); err == nil {
			return Load(def)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking config file: %w", err)
		}
	}
	return DefaultConfig(), nil
}

// Validate checks enumerated fields and UUIDs.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	switch c.Backend {
	case BackendGoBLE, BackendTinyGo:
	default:
		return fmt.Errorf("invalid backend %q: must be %s or %s", c.Backend, BackendGoBLE, BackendTinyGo)
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("invalid output_format %q: must be table or json", c.OutputFormat)
	}
	if _, err := device.ValidateUUID(c.ServiceUUID, c.CharacteristicUUID); err != nil {
		return fmt.Errorf("invalid service/characteristic UUID: %w", err)
	}
	if c.Scan.Duration < 0 {
		return fmt.Errorf("scan.duration must not be negative")
	}
	if c.InboxCapacity <= 0 {
		return fmt.Errorf("inbox_capacity must be positive")
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
