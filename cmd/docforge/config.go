package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full docforge service configuration.
type Config struct {
	Listen        string `yaml:"listen"`
	BaseURL       string `yaml:"base_url"`
	Mode          string `yaml:"mode"` // served | embedded
	ExportURL     string `yaml:"export_url"`
	JournalDB     string `yaml:"journal_db"`
	RetentionDays int    `yaml:"retention_days"`

	// Annotations configures overlay persistence. Persistence is opt-in;
	// annotations are in-memory only by default.
	Annotations AnnotationConfig `yaml:"annotations"`

	// Fallback configures the local headless-Chrome print path.
	Fallback FallbackConfig `yaml:"fallback"`
}

// AnnotationConfig configures the annotation overlay controllers.
type AnnotationConfig struct {
	Persist             bool   `yaml:"persist"`
	DBPath              string `yaml:"db_path"`
	DiscardOnPageChange bool   `yaml:"discard_on_page_change"`
}

// FallbackConfig configures the local print fallback.
type FallbackConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ChromeURL string `yaml:"chrome_url"` // empty = launch a local Chrome
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8090",
		BaseURL:       "http://localhost:8090",
		Mode:          "served",
		JournalDB:     "db/journal.db",
		RetentionDays: 30,
		Annotations: AnnotationConfig{
			Persist:             false,
			DBPath:              "db/annotations.db",
			DiscardOnPageChange: true,
		},
		Fallback: FallbackConfig{
			Enabled: true,
		},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig
// merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.ExportURL == "" {
		return fmt.Errorf("export_url is required")
	}
	switch c.Mode {
	case "served":
		if c.BaseURL == "" {
			return fmt.Errorf("base_url is required in served mode")
		}
	case "embedded":
	default:
		return fmt.Errorf("unsupported mode %q (use served or embedded)", c.Mode)
	}
	if c.JournalDB == "" {
		return fmt.Errorf("journal_db is required")
	}
	if c.Annotations.Persist && c.Annotations.DBPath == "" {
		return fmt.Errorf("annotations.db_path is required when annotations.persist is set")
	}
	return nil
}
