package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xraph/recur/extension"
)

// Store drivers understood by openStore.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the recurd configuration file.
type Config struct {
	// Config embeds the extension settings, which in turn inline the core
	// recur settings, so every knob lives at the top level of the file.
	extension.Config `yaml:",inline"`

	// Listen is the HTTP address for the serve command.
	Listen string `yaml:"listen"`

	// Store selects and configures the persistence backend.
	Store StoreConfig `yaml:"store"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `yaml:"driver"`

	// DSN is the connection string for the postgres driver.
	DSN string `yaml:"dsn"`
}

// DefaultConfig returns a configuration that serves an in-memory store on
// localhost.
func DefaultConfig() *Config {
	return &Config{
		Config: extension.DefaultConfig(),
		Listen: "127.0.0.1:8080",
		Store:  StoreConfig{Driver: DriverMemory},
	}
}

// Normalize fills in missing values so partially-filled files still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
}

// Validate reports configuration the commands cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q: must be %q or %q", c.Store.Driver, DriverMemory, DriverPostgres)
	}
	return nil
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
