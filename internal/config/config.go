package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the recall configuration
type Config struct {
	Stores   StoresConfig   `yaml:"stores"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Server   ServerConfig   `yaml:"server"`
	LogLevel string         `yaml:"log_level"`

	// Keywords overrides the built-in hostility list used by the keyword scanner.
	Keywords []string `yaml:"keywords,omitempty"`
}

// StoresConfig locates the two read-only stores.
type StoresConfig struct {
	MessagesDB  string `yaml:"messages_db"`
	ContactsDir string `yaml:"contacts_dir"`
	// Driver is "sqlite" (modernc, pure Go) or "sqlite3" (mattn, cgo).
	Driver        string `yaml:"driver"`
	WatchContacts bool   `yaml:"watch_contacts"`
}

// DefaultsConfig holds tool argument defaults.
type DefaultsConfig struct {
	Limit          int    `yaml:"limit"`
	DaysBack       int    `yaml:"days_back"`
	Format         string `yaml:"format"`
	ScanLimit      int    `yaml:"scan_limit"`
	GroupCandidate int    `yaml:"group_candidates"`
}

// ServerConfig controls the MCP transport.
type ServerConfig struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	HTTPAddr string `yaml:"http_addr"`
}

// envOverrides mirrors the subset of Config that can be set from RECALL_* variables.
type envOverrides struct {
	MessagesDB    string `envconfig:"MESSAGES_DB"`
	ContactsDir   string `envconfig:"CONTACTS_DIR"`
	Driver        string `envconfig:"DRIVER"`
	WatchContacts *bool  `envconfig:"WATCH_CONTACTS"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
	HTTPAddr      string `envconfig:"HTTP_ADDR"`
	Limit         int    `envconfig:"DEFAULT_LIMIT"`
	DaysBack      *int   `envconfig:"DEFAULT_DAYS_BACK"`
	Format        string `envconfig:"DEFAULT_FORMAT"`
}

// EnvPrefix is the prefix for environment overrides (RECALL_MESSAGES_DB, ...).
const EnvPrefix = "RECALL"

// Default returns the configuration used when no config file exists.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Stores: StoresConfig{
			MessagesDB:  filepath.Join(home, "Library", "Messages", "chat.db"),
			ContactsDir: filepath.Join(home, "Library", "Application Support", "AddressBook"),
			Driver:      "sqlite",
		},
		Defaults: DefaultsConfig{
			Limit:          30,
			DaysBack:       30,
			Format:         "compact",
			ScanLimit:      5000,
			GroupCandidate: 5,
		},
		Server: ServerConfig{
			Name:     "recall",
			Version:  "0.1.0",
			HTTPAddr: "127.0.0.1:11650",
		},
		LogLevel: "info",
	}
}

// GetConfigDir returns the XDG-compliant config directory
func GetConfigDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("RECALL_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "recall"), nil
}

// Load loads config from the config file, then applies RECALL_* environment overrides.
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadFile(filepath.Join(configDir, "config.yaml"))
}

// LoadFile loads config from an explicit path. A missing file yields defaults.
func LoadFile(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to process environment variables: %w", err)
	}
	if env.MessagesDB != "" {
		c.Stores.MessagesDB = os.ExpandEnv(env.MessagesDB)
	}
	if env.ContactsDir != "" {
		c.Stores.ContactsDir = os.ExpandEnv(env.ContactsDir)
	}
	if env.Driver != "" {
		c.Stores.Driver = env.Driver
	}
	if env.WatchContacts != nil {
		c.Stores.WatchContacts = *env.WatchContacts
	}
	if env.LogLevel != "" {
		c.LogLevel = env.LogLevel
	}
	if env.HTTPAddr != "" {
		c.Server.HTTPAddr = env.HTTPAddr
	}
	if env.Limit > 0 {
		c.Defaults.Limit = env.Limit
	}
	if env.DaysBack != nil {
		c.Defaults.DaysBack = *env.DaysBack
	}
	if env.Format != "" {
		c.Defaults.Format = env.Format
	}
	return nil
}

// fillDefaults repairs zero values left by a partial config file.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Stores.MessagesDB == "" {
		c.Stores.MessagesDB = d.Stores.MessagesDB
	}
	if c.Stores.ContactsDir == "" {
		c.Stores.ContactsDir = d.Stores.ContactsDir
	}
	c.Stores.Driver = strings.ToLower(strings.TrimSpace(c.Stores.Driver))
	if c.Stores.Driver == "" {
		c.Stores.Driver = d.Stores.Driver
	}
	if c.Defaults.Limit <= 0 {
		c.Defaults.Limit = d.Defaults.Limit
	}
	if c.Defaults.DaysBack < 0 {
		c.Defaults.DaysBack = d.Defaults.DaysBack
	}
	if c.Defaults.Format == "" {
		c.Defaults.Format = d.Defaults.Format
	}
	if c.Defaults.ScanLimit <= 0 {
		c.Defaults.ScanLimit = d.Defaults.ScanLimit
	}
	if c.Defaults.GroupCandidate <= 0 {
		c.Defaults.GroupCandidate = d.Defaults.GroupCandidate
	}
	if c.Server.Name == "" {
		c.Server.Name = d.Server.Name
	}
	if c.Server.Version == "" {
		c.Server.Version = d.Server.Version
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = d.Server.HTTPAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Save saves the config to the config file
func (c *Config) Save() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
