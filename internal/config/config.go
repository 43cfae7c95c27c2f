package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultGlamourStyle = "dark"
	DefaultProjectID    = "default"
	DefaultOverscan     = 5
	DefaultRowRefetch   = "never"

	EnvConfigPath = "SESSION_TRACE_CONFIG"
	EnvHome       = "SESSION_TRACE_HOME"
)

type AppConfig struct {
	ProjectID    string        `yaml:"project"`
	DBPath       string        `yaml:"db_path"`
	TracesDir    string        `yaml:"traces_dir"`
	ExportDir    string        `yaml:"export_dir"`
	LogLevel     string        `yaml:"log_level"`
	LogFile      string        `yaml:"log_file"`
	Overscan     int           `yaml:"overscan"`
	RowRefetch   string        `yaml:"row_refetch"`
	RowStaleTime time.Duration `yaml:"row_stale_time"`
	GlamourStyle string        `yaml:"glamour_style"`
	Reindex      bool          `yaml:"-"`
}

func Defaults() AppConfig {
	return AppConfig{
		ProjectID:    DefaultProjectID,
		LogLevel:     "info",
		Overscan:     DefaultOverscan,
		RowRefetch:   DefaultRowRefetch,
		RowStaleTime: 5 * time.Minute,
		GlamourStyle: DefaultGlamourStyle,
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error. An empty path resolves through DefaultConfigPath.
func Load(path string) (AppConfig, error) {
	cfg := Defaults()
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Finalize fills derived paths and creates the directories they need.
func (c *AppConfig) Finalize() error {
	home, err := DetectHome(c.TracesDir)
	if err != nil {
		return err
	}
	c.TracesDir = home

	if c.DBPath == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		c.DBPath = filepath.Join(userHome, ".local", "share", "session-trace", "index.sqlite")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(filepath.Dir(c.DBPath), "session-trace.log")
	}
	if c.Overscan < 0 {
		c.Overscan = 0
	}
	if c.ProjectID == "" {
		c.ProjectID = DefaultProjectID
	}

	if err := os.MkdirAll(filepath.Dir(c.DBPath), 0o755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	return nil
}

func DefaultConfigPath() (string, error) {
	if fromEnv := os.Getenv(EnvConfigPath); fromEnv != "" {
		return filepath.Clean(fromEnv), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "session-trace", "config.yaml"), nil
}

// DetectHome resolves the traces directory: explicit value, then
// $SESSION_TRACE_HOME, then ~/.session-trace/traces.
func DetectHome(explicit string) (string, error) {
	if explicit != "" {
		return filepath.Clean(explicit), nil
	}
	if fromEnv := os.Getenv(EnvHome); fromEnv != "" {
		return filepath.Clean(fromEnv), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".session-trace", "traces"), nil
}
