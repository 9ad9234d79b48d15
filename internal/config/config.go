// Package config loads the optional pgxray YAML configuration and resolves
// secret references in the connection string.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.pgxray/pgxray.yaml"
)

// Config is the top-level configuration. Every field has a CLI flag
// counterpart; flags override config values.
type Config struct {
	Version  int            `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	Output   OutputConfig   `yaml:"output,omitempty"`
	Sampling SamplingConfig `yaml:"sampling,omitempty"`
	Logging  LogConfig      `yaml:"logging,omitempty"`
}

// DatabaseConfig holds the audited database connection.
type DatabaseConfig struct {
	// Conn is a PostgreSQL connection URI. Supports ${ENV:NAME},
	// ${VAULT:path#key} and ${AWS_SM:secret-name} references.
	Conn string `yaml:"conn"`
}

// OutputConfig holds the artifact paths.
type OutputConfig struct {
	Markdown string `yaml:"markdown,omitempty"`
	DOT      string `yaml:"dot,omitempty"`
	PNG      string `yaml:"png,omitempty"`
}

// SamplingConfig bounds per-table data sampling.
type SamplingConfig struct {
	Limit int `yaml:"limit,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.pgxray/logs/
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the config file. An empty path means the default
// location; a missing file at the default location is not an error and
// yields the defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if cfg.Database.Conn, err = ResolveValue(cfg.Database.Conn); err != nil {
		return nil, fmt.Errorf("resolving connection string: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Output.Markdown == "" {
		c.Output.Markdown = "audit_report.md"
	}
	if c.Output.DOT == "" {
		c.Output.DOT = "er_diagram.dot"
	}
	if c.Output.PNG == "" {
		c.Output.PNG = "er_diagram.png"
	}
	if c.Sampling.Limit == 0 {
		c.Sampling.Limit = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.pgxray/logs/")
	}
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

// ResolveValue resolves secret references in a string value. Plain values
// pass through unchanged.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	var secret string
	var err error
	switch provider {
	case "ENV":
		secret = os.Getenv(ref)
		if secret == "" {
			err = fmt.Errorf("environment variable %s not set", ref)
		}
	case "VAULT":
		secret, err = resolveVault(ref)
	case "AWS_SM":
		secret, err = resolveAWSSecretsManager(ref)
	default:
		err = fmt.Errorf("unknown secrets provider: %s", provider)
	}
	if err != nil {
		return "", err
	}
	return strings.Replace(val, matches[0], secret, 1), nil
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
