package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ocrdesk/ocrdesk/internal/models"
)

// ClientConfig configures the ocrdesk CLI.
type ClientConfig struct {
	Server         string        `yaml:"server"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	QuietPeriod    time.Duration `yaml:"quiet_period"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	SaveTimeout    time.Duration `yaml:"save_timeout"`
	DefaultType    string        `yaml:"default_type"`
	Editor         EditorConfig  `yaml:"editor"`
}

// EditorConfig tunes the interactive pre-processor.
type EditorConfig struct {
	Enabled      bool `yaml:"enabled"`
	JPEGQuality  int  `yaml:"jpeg_quality"`
	MaxDimension int  `yaml:"max_dimension"`
}

// DefaultClientConfig returns the CLI defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Server:         "http://127.0.0.1:4444",
		LogLevel:       "warn",
		LogFormat:      "console",
		QuietPeriod:    time.Second,
		RequestTimeout: 0,
		SaveTimeout:    30 * time.Second,
		DefaultType:    string(models.SessionTypeTable),
		Editor: EditorConfig{
			Enabled:      true,
			JPEGQuality:  90,
			MaxDimension: 0,
		},
	}
}

// DefaultClientConfigPath is ~/.config/ocrdesk/config.yaml or its platform
// equivalent.
func DefaultClientConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ocrdesk", "config.yaml")
}

// LoadClientConfig reads path (or the default path when empty and present),
// then applies .env and environment overrides.
func LoadClientConfig(path string) (*ClientConfig, error) {
	_ = godotenv.Load()

	cfg := DefaultClientConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultClientConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *ClientConfig) applyEnvOverrides() {
	if v := os.Getenv("OCRDESK_SERVER"); v != "" {
		c.Server = v
	}
	if v := os.Getenv("OCRDESK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("OCRDESK_QUIET_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.QuietPeriod = d
		}
	}
	if v := os.Getenv("OCRDESK_EDITOR"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Editor.Enabled = b
		}
	}
}

// Validate checks the configuration for errors.
func (c *ClientConfig) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("server address is required")
	}
	if c.QuietPeriod <= 0 {
		return fmt.Errorf("quiet_period must be positive")
	}
	if _, err := models.ParseSessionType(c.DefaultType); err != nil {
		return err
	}
	if c.Editor.JPEGQuality < 0 || c.Editor.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 0 and 100")
	}
	return nil
}
