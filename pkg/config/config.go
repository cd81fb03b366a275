// Package config provides configuration loading for streamdsl. A single
// Config structure covers the broker client, the keyed store selection, and
// observability settings; it is loaded from YAML with `${ENV_VAR}`
// substitution.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/streamdsl/pkg/broker"
)

// Config is the top-level streamdsl configuration.
type Config struct {
	// Broker configures the Kafka client.
	Broker broker.Config `yaml:"broker" json:"broker"`

	// Store configures the keyed accumulator store.
	Store StoreConfig `yaml:"store" json:"store"`

	// Observability configures logging.
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// StoreConfig selects and configures the keyed store implementation.
type StoreConfig struct {
	// Type is one of "memory", "sqlite", "mongodb".
	Type string `yaml:"type" json:"type"`

	// Path is the database file for the sqlite store.
	Path string `yaml:"path" json:"path"`

	// URI, Database and Collection configure the mongodb store.
	URI        string `yaml:"uri" json:"uri"`
	Database   string `yaml:"database" json:"database"`
	Collection string `yaml:"collection" json:"collection"`
}

// ObservabilityConfig contains logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level" json:"log_level"`
	Development bool   `yaml:"development" json:"development"`
}

// Default returns a configuration suitable for local development.
func Default() Config {
	return Config{
		Broker: broker.DefaultConfig(),
		Store:  StoreConfig{Type: "memory"},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if len(c.Broker.Brokers) == 0 {
		return fmt.Errorf("broker.brokers must not be empty")
	}
	switch c.Store.Type {
	case "", "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite store")
		}
	case "mongodb":
		if c.Store.URI == "" {
			return fmt.Errorf("store.uri is required for the mongodb store")
		}
	default:
		return fmt.Errorf("unknown store type %q, must be one of: memory, sqlite, mongodb", c.Store.Type)
	}
	return nil
}

// Load loads a configuration from a YAML file.
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: file path is controlled by the caller
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Substitute environment variables
	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// Save saves a configuration to a YAML file.
func Save(filePath string, config interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
