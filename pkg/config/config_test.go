package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestValidate(t *testing.T) {
	t.Run("requires brokers", func(t *testing.T) {
		cfg := Default()
		cfg.Broker.Brokers = nil
		assert.ErrorContains(t, cfg.Validate(), "broker.brokers")
	})

	t.Run("sqlite requires a path", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Type = "sqlite"
		assert.ErrorContains(t, cfg.Validate(), "store.path")

		cfg.Store.Path = "/tmp/store.db"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("mongodb requires a uri", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Type = "mongodb"
		assert.ErrorContains(t, cfg.Validate(), "store.uri")
	})

	t.Run("rejects unknown store types", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Type = "redis"
		assert.ErrorContains(t, cfg.Validate(), "unknown store type")
	})
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("TEST_KAFKA_BROKER", "kafka-1:9092")
	t.Setenv("TEST_SASL_PASSWORD", "secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
broker:
  brokers:
    - ${TEST_KAFKA_BROKER}
  sasl_password: ${TEST_SASL_PASSWORD}
store:
  type: sqlite
  path: /tmp/store.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	var cfg Config
	require.NoError(t, Load(path, &cfg))
	assert.Equal(t, []string{"kafka-1:9092"}, cfg.Broker.Brokers)
	assert.Equal(t, "secret", cfg.Broker.SASLPassword)
	assert.Equal(t, "sqlite", cfg.Store.Type)
}

func TestLoadMissingFile(t *testing.T) {
	var cfg Config
	err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &cfg)
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Broker.Brokers = []string{"kafka-1:9092", "kafka-2:9092"}
	cfg.Store = StoreConfig{Type: "mongodb", URI: "mongodb://localhost:27017", Database: "streamdsl", Collection: "accumulators"}
	require.NoError(t, Save(path, &cfg))

	var loaded Config
	require.NoError(t, Load(path, &loaded))
	assert.Equal(t, cfg, loaded)
}
